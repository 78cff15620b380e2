package remote

import (
	"context"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/replicate/cogset/pkg/util/console"
	"github.com/replicate/cogset/pkg/util/files"
)

// LocalBackend handles empty-scheme remotes: a plain directory on the
// local filesystem, reached by hard-linking (falling back to a copy)
// rather than any network transfer.
type LocalBackend struct {
	root string
}

// NewLocalBackend resolves rawPath (expanding a leading "~") to an
// absolute root directory.
func NewLocalBackend(rawPath string) (*LocalBackend, error) {
	expanded, err := homedir.Expand(rawPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, err
	}
	return &LocalBackend{root: abs}, nil
}

func (l *LocalBackend) path(key string) string {
	return filepath.Join(l.root, key)
}

func (l *LocalBackend) Push(ctx context.Context, localPath, key string) error {
	dst := l.path(key)
	console.Debugf("pushing %s to local remote %s", localPath, dst)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Link(localPath, dst); err == nil {
		return nil
	}
	return files.CopyFile(localPath, dst)
}

func (l *LocalBackend) Pull(ctx context.Context, key, localPath string) error {
	src := l.path(key)
	console.Debugf("pulling local remote %s to %s", src, localPath)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	if err := os.Link(src, localPath); err == nil {
		return nil
	}
	return files.CopyFile(src, localPath)
}

func (l *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	return files.Exists(l.path(key))
}
