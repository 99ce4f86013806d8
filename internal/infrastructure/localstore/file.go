// Package localstore persists attribution slots as JSON files on the local
// disk, the durable store for the terminal client.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/referral-onboarding/internal/domain"
)

// slotFile is the on-disk schema: {code, capturedAt, source}.
type slotFile struct {
	Code       string                   `json:"code"`
	CapturedAt time.Time                `json:"capturedAt"`
	Source     domain.AttributionSource `json:"source"`
}

var unsafeKey = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FileStore writes one file per slot key under dir.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create attribution dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, "attribution-"+unsafeKey.ReplaceAllString(key, "_")+".json")
}

func (s *FileStore) Load(_ context.Context, key string) (*domain.AttributionRecord, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("slot %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", key, err)
	}
	var f slotFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode slot %s: %w", key, err)
	}
	return &domain.AttributionRecord{SlotKey: key, Code: f.Code, CapturedAt: f.CapturedAt, Source: f.Source}, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated slot.
func (s *FileStore) Save(_ context.Context, rec *domain.AttributionRecord) error {
	b, err := json.Marshal(slotFile{Code: rec.Code, CapturedAt: rec.CapturedAt, Source: rec.Source})
	if err != nil {
		return fmt.Errorf("encode slot: %w", err)
	}
	dst := s.path(rec.SlotKey)
	tmp, err := os.CreateTemp(s.dir, ".attribution-*")
	if err != nil {
		return fmt.Errorf("create temp slot: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close slot: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}
