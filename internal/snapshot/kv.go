package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// KV is a durable key-value store of JSON blobs
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys() ([]string, error)
}

// FileKV keeps every entry in one JSON file, rewritten atomically on change
type FileKV struct {
	path    string
	mu      sync.Mutex
	entries map[string]json.RawMessage
}

// OpenFileKV loads the file at path, creating an empty store if it is missing
func OpenFileKV(path string) (*FileKV, error) {
	kv := &FileKV{
		path:    path,
		entries: make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		return kv, kv.save()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &kv.entries); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
		}
	}

	return kv, nil
}

func (kv *FileKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	v, ok := kv.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (kv *FileKV) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("snapshot value for %q is not valid JSON", key)
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.entries[key] = append(json.RawMessage(nil), value...)
	return kv.save()
}

func (kv *FileKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.entries[key]; !ok {
		return nil
	}
	delete(kv.entries, key)
	return kv.save()
}

func (kv *FileKV) Keys() ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	return sortedKeys(kv.entries), nil
}

// save writes to a temp file and renames it over the real one.
// Callers hold kv.mu.
func (kv *FileKV) save() error {
	data, err := json.Marshal(kv.entries)
	if err != nil {
		return err
	}

	tmp := kv.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	// The journal must be on disk before it replaces the previous file
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, kv.path)
}

// MemoryKV is a KV that lives only in process memory
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

func (kv *MemoryKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	v, ok := kv.entries[key]
	return v, ok, nil
}

func (kv *MemoryKV) Set(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.entries[key] = append([]byte(nil), value...)
	return nil
}

func (kv *MemoryKV) Remove(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.entries, key)
	return nil
}

func (kv *MemoryKV) Keys() ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	return sortedKeys(kv.entries), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
