package storage

import (
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return l
}

func TestSave_ReturnsRelativeSlashPath(t *testing.T) {
	l := newTestLocal(t)

	rel, err := l.Save(DirProformas, "proforma.pdf", strings.NewReader("content"))

	require.NoError(t, err)
	assert.Equal(t, "proformas/proforma.pdf", rel)

	data, err := os.ReadFile(l.Abs(rel))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestSave_UniquifiesOnCollision(t *testing.T) {
	l := newTestLocal(t)

	first, err := l.Save(DirReceipts, "receipt.pdf", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := l.Save(DirReceipts, "receipt.pdf", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(second, "receipts/receipt_"))
	assert.True(t, strings.HasSuffix(second, ".pdf"))

	one, err := os.ReadFile(l.Abs(first))
	require.NoError(t, err)
	two, err := os.ReadFile(l.Abs(second))
	require.NoError(t, err)
	assert.Equal(t, "one", string(one))
	assert.Equal(t, "two", string(two))
}

func TestSave_SanitizesFilename(t *testing.T) {
	l := newTestLocal(t)

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{name: "path components stripped", filename: "../../etc/passwd", want: "passwd"},
		{name: "spaces and specials", filename: "my weird file!.pdf", want: "my_weird_file.pdf"},
		{name: "dotfile trimmed", filename: "..hidden.", want: "hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := l.Save(DirProformas, tt.filename, strings.NewReader("x"))
			require.NoError(t, err)
			assert.Equal(t, DirProformas+"/"+tt.want, rel)
		})
	}
}

func TestSave_EmptyFilenameGetsGeneratedName(t *testing.T) {
	l := newTestLocal(t)

	rel, err := l.Save(DirProformas, "???", strings.NewReader("x"))

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "proformas/upload_"))
}

func TestRemove(t *testing.T) {
	l := newTestLocal(t)

	rel, err := l.Save(DirPurchaseOrders, "po.txt", strings.NewReader("x"))
	require.NoError(t, err)

	l.Remove(rel)
	_, statErr := os.Stat(l.Abs(rel))
	assert.True(t, os.IsNotExist(statErr))

	// removing again, or removing nothing, must not panic
	l.Remove(rel)
	l.Remove("")
}
