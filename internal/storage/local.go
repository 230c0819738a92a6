// Package storage persists uploaded documents and generated artifacts on
// local disk under a single media root.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Subdirectories under the media root, one per attachment kind.
const (
	DirProformas      = "proformas"
	DirPurchaseOrders = "purchase_orders"
	DirReceipts       = "receipts"
)

// Local stores files under a root directory and hands out root-relative
// paths. Relative paths are what gets persisted; absolute URLs are resolved
// per-request by the HTTP layer.
type Local struct {
	root string
	log  zerolog.Logger
}

func NewLocal(root string, log zerolog.Logger) (*Local, error) {
	if root == "" {
		root = "./media"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Local{root: root, log: log.With().Str("component", "storage").Logger()}, nil
}

func (l *Local) Root() string { return l.root }

// Save writes the reader's content under dir, uniquifying the file name if it
// is already taken. Returns the stored path relative to the media root.
func (l *Local) Save(dir, filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Join(l.root, dir), 0o755); err != nil {
		return "", fmt.Errorf("create %s dir: %w", dir, err)
	}

	name := sanitizeFilename(filename)
	target := filepath.Join(l.root, dir, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		name = fmt.Sprintf("%s_%s%s", base, uuid.NewString()[:8], ext)
		target = filepath.Join(l.root, dir, name)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("write file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(dir, name)), nil
}

// Abs resolves a stored relative path to an absolute filesystem path.
func (l *Local) Abs(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// Remove deletes a stored file. Best-effort; a missing file is not an error.
func (l *Local) Remove(rel string) {
	if rel == "" {
		return
	}
	if err := os.Remove(l.Abs(rel)); err != nil && !os.IsNotExist(err) {
		l.log.Warn().Err(err).Str("path", rel).Msg("failed to remove stored file")
	}
}

// sanitizeFilename strips path components and characters outside
// [A-Za-z0-9._-], so uploaded names cannot escape the media root.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "upload_" + uuid.NewString()[:8]
	}
	return out
}
