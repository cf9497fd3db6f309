package activity

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Backend interface {
	Load() ([]Record, error)
	Save(records []Record) error
	Close() error
}

type MemoryBackend struct {
	mu      sync.Mutex
	payload []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load() ([]Record, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.payload) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(b.payload, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *MemoryBackend) Save(records []Record) error {
	if b == nil {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payload = payload
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

type JSONFileBackend struct {
	Path string

	mu sync.Mutex
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileBackend) Load() ([]Record, error) {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *JSONFileBackend) Save(records []Record) error {
	if b == nil || strings.TrimSpace(b.Path) == "" {
		return nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := b.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.Path)
}

func (b *JSONFileBackend) Close() error {
	return nil
}
