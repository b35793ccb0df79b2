package localstore

import (
	"strings"
	"sync"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV returns a volatile store, used in tests and for ephemeral
// profiles.
func NewMemoryKV() KV {
	return &memoryKV{data: map[string][]byte{}}
}

func (kv *memoryKV) Get(key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	value, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (kv *memoryKV) Put(key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = append([]byte(nil), value...)
	return nil
}

func (kv *memoryKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

func (kv *memoryKV) Close() error {
	return nil
}
