package repository

import (
	"context"
	"sync"
)

// MemoryStorageRepo はプロセス内メモリに保持する保存領域リポジトリ。
// STORAGE_DRIVER=memory とテストで使用する。
type MemoryStorageRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStorageRepo はMemoryStorageRepoを生成する。
func NewMemoryStorageRepo() *MemoryStorageRepo {
	return &MemoryStorageRepo{data: make(map[string][]byte)}
}

// Get は指定キーの値のコピーを返す。
func (r *MemoryStorageRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set は指定キーに値のコピーを保存する。
func (r *MemoryStorageRepo) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte{}, value...)
	return nil
}

// Delete は指定キーを削除する。
func (r *MemoryStorageRepo) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}
