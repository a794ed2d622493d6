package backup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// fsSink stores snapshots as files under a root directory. Keys map to
// relative paths; refs embed the write timestamp so nothing is overwritten.
type fsSink struct {
	root string
}

// NewFilesystem returns a filesystem-backed sink rooted at path, creating
// it if needed.
func NewFilesystem(root string) (Sink, error) {
	if root == "" {
		root = "./reports/backups"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fsSink{root: root}, nil
}

func (s *fsSink) Driver() Driver { return DriverFilesystem }

// sanitizeKey forbids path traversal and absolute keys.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *fsSink) Write(_ context.Context, key string, data []byte) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	var (
		ref  string
		path string
		f    *os.File
	)
	// O_EXCL guards the append-only contract; on a same-nanosecond
	// collision a fresh timestamp is taken.
	for attempt := 0; ; attempt++ {
		ref = timestampRef(clean, time.Now())
		path = filepath.Join(s.root, filepath.FromSlash(ref))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !os.IsExist(err) || attempt >= 10 {
			return "", err
		}
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *fsSink) Read(_ context.Context, ref string) ([]byte, error) {
	clean, err := sanitizeKey(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(clean)))
}

func (s *fsSink) List(_ context.Context, prefix string) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		ref := filepath.ToSlash(rel)
		if strings.HasPrefix(ref, prefix) {
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(refs)
	return refs, nil
}
