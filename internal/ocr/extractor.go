// Package ocr extracts raw text from uploaded documents using external
// poppler/tesseract binaries. Extraction is best-effort: callers treat any
// error as "no text" and continue with fallback metadata.
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"backend/internal/config"

	"github.com/rs/zerolog"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
}

type Extractor struct {
	cfg    config.OCRConfig
	runner Runner
	log    zerolog.Logger
}

func NewExtractor(cfg config.OCRConfig, log zerolog.Logger) *Extractor {
	if cfg.PdftotextBin == "" {
		cfg.PdftotextBin = "pdftotext"
	}
	if cfg.PdftoppmBin == "" {
		cfg.PdftoppmBin = "pdftoppm"
	}
	if cfg.TesseractBin == "" {
		cfg.TesseractBin = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = 16
	}
	log = log.With().Str("component", "ocr").Logger()
	return &Extractor{cfg: cfg, runner: execRunner{log: log}, log: log}
}

// WithRunner swaps the command runner. Used by tests.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract picks a strategy based on file extension. Plain text files are read
// directly; PDFs try their text layer before rasterizing; images go straight
// to tesseract.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ext == ".pdf":
		return e.extractPDF(ctx, path)
	case imageExts[ext]:
		return e.tesseractOCR(ctx, path)
	default:
		return "", fmt.Errorf("unsupported extension: %q", ext)
	}
}

// extractPDF prefers the embedded text layer and falls back to rasterize+OCR
// when the layer is missing or too thin to be usable.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	text, err := e.pdfToText(ctx, path)
	if err == nil && len(strings.TrimSpace(text)) >= e.cfg.MinTextLen {
		return text, nil
	}
	if err != nil {
		e.log.Debug().Err(err).Str("path", path).Msg("pdftotext failed, trying ocr")
	} else {
		e.log.Debug().Str("path", path).Msg("pdf text layer too thin, trying ocr")
	}
	return e.pdfToOCR(ctx, path)
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := e.runner.Run(ctx, e.cfg.PdftotextBin, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "po-ocr-*")
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.log.Warn().Err(rmErr).Str("dir", tmpDir).Msg("failed to remove ocr temp dir")
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, _, err := e.runner.Run(ctx, e.cfg.PdftoppmBin, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix); err != nil {
		return "", err
	}

	// collect generated pngs (page-1.png, page-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	for _, img := range matches {
		txt, ocrErr := e.tesseractOCR(ctx, img)
		if ocrErr != nil {
			e.log.Warn().Err(ocrErr).Str("page", img).Msg("page ocr failed")
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
	}
	return b.String(), nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, _, err := e.runner.Run(ctx, e.cfg.TesseractBin, path, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}
