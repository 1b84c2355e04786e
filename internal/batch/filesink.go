package batch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultDirPerm = 0o750

// FileSink writes entries below a destination directory with atomic writes.
//
// Files are written to a temporary file in the same directory, then renamed
// to the final path on Commit. All paths are resolved through an os.Root, so
// entry paths cannot escape the destination.
type FileSink struct {
	root      *os.Root
	overwrite bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink creates a FileSink that writes to destDir, creating it if needed.
// The sink must be closed when done.
func NewFileSink(destDir string, opts ...FileSinkOption) (*FileSink, error) {
	if err := os.MkdirAll(destDir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", destDir, err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination %s: %w", destDir, err)
	}
	s := &FileSink{root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the destination directory handle.
func (s *FileSink) Close() error {
	return s.root.Close()
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(entry *Entry) bool {
	if s.overwrite {
		return true
	}
	_, err := s.root.Stat(filepath.FromSlash(entry.Path))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(entry *Entry) (Committer, error) {
	destPath := filepath.FromSlash(entry.Path)

	dir := filepath.Dir(destPath)
	if err := s.root.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := filepath.Join(dir, ".dat-"+rand.Text())
	tempFile, err := s.root.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileCommitter{
		destPath: destPath,
		tempPath: tempPath,
		tempFile: tempFile,
		sink:     s,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	destPath string
	tempPath string
	tempFile *os.File
	sink     *FileSink
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file and renames it to the final path.
func (c *fileCommitter) Commit() error {
	root := c.sink.root
	if err := c.tempFile.Close(); err != nil {
		_ = root.Remove(c.tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if c.sink.overwrite {
		if info, err := root.Stat(c.destPath); err == nil && info.IsDir() {
			_ = root.Remove(c.tempPath) //nolint:errcheck // best-effort cleanup
			return &fs.PathError{Op: "commit", Path: c.destPath, Err: errors.New("is a directory")}
		}
	}

	if err := root.Rename(c.tempPath, c.destPath); err != nil {
		_ = root.Remove(c.tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.sink.root.Remove(c.tempPath)
}
