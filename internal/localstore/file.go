package localstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fileKV struct {
	path string
	mu   sync.Mutex
	data map[string][]byte
}

// NewFileKV opens (or creates) a JSON-file backed store. Every mutation is
// written atomically via a temp file and rename.
func NewFileKV(path string) (KV, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	kv := &fileKV{
		path: path,
		data: map[string][]byte{},
	}
	if err := kv.load(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (kv *fileKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	value, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (kv *fileKV) Put(key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	previous, existed := kv.data[key]
	kv.data[key] = append([]byte(nil), value...)
	if err := kv.saveLocked(); err != nil {
		if existed {
			kv.data[key] = previous
		} else {
			delete(kv.data, key)
		}
		return err
	}
	return nil
}

func (kv *fileKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	previous, existed := kv.data[key]
	if !existed {
		return nil
	}
	delete(kv.data, key)
	if err := kv.saveLocked(); err != nil {
		kv.data[key] = previous
		return err
	}
	return nil
}

func (kv *fileKV) Close() error {
	return nil
}

func (kv *fileKV) load() error {
	data, err := os.ReadFile(kv.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var snapshot map[string][]byte
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = map[string][]byte{}
	}
	kv.data = snapshot
	return nil
}

func (kv *fileKV) saveLocked() error {
	data, err := json.Marshal(kv.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(kv.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(kv.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
