package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	fserrors "fsgate/internal/shared/errors"
)

const (
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// Service is the file-system boundary the file operation engine works
// against. Every returned error carries an errors.Kind so callers never
// inspect OS error codes themselves.
type Service interface {
	ReadTextFile(ctx context.Context, path string) (string, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error)
	WriteTextFile(ctx context.Context, path, content string) error
	Stat(ctx context.Context, path string) (fs.FileInfo, error)
}

// Local implements Service on the host file system.
type Local struct{}

// NewLocal returns the host-backed service.
func NewLocal() *Local {
	return &Local{}
}

// ReadTextFile reads the whole file as text.
func (l *Local) ReadTextFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", classify(err, fmt.Sprintf("read %s", path))
	}
	return string(data), nil
}

// ReadFile reads the whole file as raw bytes.
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("read %s", path))
	}
	return data, nil
}

// ReadDir lists a directory sorted by name.
func (l *Local) ReadDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("list %s", path))
	}
	return entries, nil
}

// WriteTextFile creates parent directories as needed and writes content,
// replacing any existing file.
func (l *Local) WriteTextFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return classify(err, fmt.Sprintf("create parent directories for %s", path))
	}
	perm := os.FileMode(defaultFilePerm)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fserrors.Newf(fserrors.KindTargetIsDirectory, "%s is a directory", path)
		}
		perm = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return classify(err, fmt.Sprintf("write %s", path))
	}
	return nil
}

// Stat returns file metadata.
func (l *Local) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("stat %s", path))
	}
	return info, nil
}

func classify(err error, display string) error {
	return fserrors.Wrap(fserrors.ClassifyIO(err), err, display)
}

var _ Service = (*Local)(nil)
