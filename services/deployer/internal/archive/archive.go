package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// DefaultModTime is stamped on every entry so identical trees produce identical archives.
var DefaultModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Writer produces zip archives of a directory tree.
type Writer struct {
	Level   int
	ModTime time.Time
}

// NewWriter returns a Writer using best compression and a fixed modification time.
func NewWriter() *Writer {
	return &Writer{Level: flate.BestCompression, ModTime: DefaultModTime}
}

// Write archives the regular files below srcDir into out. Entry names are relative to
// srcDir, slash separated and written in lexical order. Symlinks and other special
// files are skipped.
func (w *Writer) Write(ctx context.Context, srcDir string, out io.Writer) error {
	if w == nil {
		return errors.New("nil writer")
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat source dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %q is not a directory", srcDir)
	}

	level := w.Level
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(dst, level)
	})

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}
		return w.addFile(zw, path, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (w *Writer) addFile(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("header for %q: %w", path, err)
	}
	header.Name = name
	header.Method = zip.Deflate
	header.Modified = w.ModTime

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %q: %w", name, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("compress %q: %w", name, err)
	}
	return nil
}
