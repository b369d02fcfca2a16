package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig holds configuration for log rotation
type RotationConfig struct {
	// Path is the file to write logs to.
	Path string

	// MaxBytes is the size at which the file is rotated (0 = never rotate).
	MaxBytes int64

	// MaxBackups is the number of rotated files kept as Path.1 .. Path.N,
	// newest first. Defaults to 3.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// RotatingFile is an io.WriteCloser that rotates its file by size. It is safe
// for concurrent use and is meant as a StructuredLogger output.
type RotatingFile struct {
	mu     sync.Mutex
	config RotationConfig
	file   *os.File
	size   int64
}

// NewRotatingFile opens config.Path for appending, creating its directory.
func NewRotatingFile(config RotationConfig) (*RotatingFile, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 3
	}

	rf := &RotatingFile{config: config}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write implements io.Writer. A single write is never split across files.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.config.MaxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.config.MaxBytes {
		if err := rf.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Rotate forces a rotation.
func (rf *RotatingFile) Rotate() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rotate()
}

// Close closes the current file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

// BackupPath returns the path of the n-th newest rotated file.
func (rf *RotatingFile) BackupPath(n int) string {
	name := fmt.Sprintf("%s.%d", rf.config.Path, n)
	if rf.config.Compress {
		name += ".gz"
	}
	return name
}

func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		rf.file = nil
	}

	if err := os.Remove(rf.BackupPath(rf.config.MaxBackups)); err != nil && !os.IsNotExist(err) {
		return err
	}
	for n := rf.config.MaxBackups - 1; n >= 1; n-- {
		if err := os.Rename(rf.BackupPath(n), rf.BackupPath(n+1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	if rf.config.Compress {
		if err := gzipFile(rf.config.Path, rf.BackupPath(1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else if err := os.Rename(rf.config.Path, rf.BackupPath(1)); err != nil && !os.IsNotExist(err) {
		return err
	}

	return rf.open()
}

func (rf *RotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(rf.config.Path), 0750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(rf.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rf.file = file
	rf.size = info.Size()
	return nil
}

// gzipFile compresses src into dst and removes src.
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
