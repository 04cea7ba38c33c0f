package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/depfacts"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "error", errors.New("boom"))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"err":"boom"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestResolveOutputFormat(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		outPath    string
		explicit   bool
		want       export.Format
	}{
		{"default", "tsv", "", false, export.FormatTSV},
		{"from extension", "tsv", "out.ttl", false, export.FormatTurtle},
		{"unknown extension", "jsonl", "out.txt", false, export.FormatJSONL},
		{"explicit wins", "nt", "out.ttl", true, export.FormatNTriples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveOutputFormat(tt.configured, tt.outPath, tt.explicit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolveOutputFormat("xml", "", true)
	assert.ErrorIs(t, err, depfacts.ErrUnsupportedFormat)
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "sub/c.txt", "sub/d.pdf"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := expandPatterns([]string{
		filepath.Join(dir, "**", "*.txt"),
		filepath.Join(dir, "a.txt"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "sub", "c.txt"),
	}, files)

	_, err = expandPatterns([]string{dir})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "is a directory"))

	_, err = expandPatterns([]string{filepath.Join(dir, "*.docx")})
	assert.Error(t, err)

	_, err = expandPatterns([]string{filepath.Join(dir, "[")})
	assert.Error(t, err)
}
