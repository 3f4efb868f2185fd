// Package staging writes an encrypted copy of uploaded photos to disk.
// The database row stays the system of record; staged files are a side copy
// for out-of-band processing.
package staging

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"pg-user-api/internal/utils"
)

// DiskStager seals each photo into <Dir>/<ksuid><ext>.enc.
type DiskStager struct {
	dir string
	key []byte
}

func NewDiskStager(dir string, key []byte) (*DiskStager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir %s: %w", dir, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("staging key must be 32 bytes, got %d", len(key))
	}
	return &DiskStager{dir: abs, key: key}, nil
}

func (s *DiskStager) Stage(ctx context.Context, userID int64, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, utils.NewKSUID()+extension(filename)+".enc")
	if err := utils.EncryptToFile(path, data, s.key); err != nil {
		return "", fmt.Errorf("stage photo for user %d: %w", userID, err)
	}
	return path, nil
}

// Open returns the plaintext of a staged file.
func (s *DiskStager) Open(path string) ([]byte, error) {
	return utils.DecryptFile(path, s.key)
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// NopStager discards photos. Used when staging is disabled.
type NopStager struct{}

func (NopStager) Stage(context.Context, int64, string, []byte) (string, error) { return "", nil }
