package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 两个本地实现共用同一组行为用例
func runStoreSuite(t *testing.T, s KVStore) {
	ctx := context.Background()

	_, _, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// 首次写入版本必须为 0
	_, err = s.Set(ctx, "cursor", []byte("c1"), 7)
	assert.ErrorIs(t, err, ErrConflict)

	v1, err := s.Set(ctx, "cursor", []byte("c1"), 0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	val, ver, err := s.Get(ctx, "cursor")
	assert.NoError(t, err)
	assert.Equal(t, []byte("c1"), val)
	assert.Equal(t, uint64(1), ver)

	// 过期版本写入被拒绝
	_, err = s.Set(ctx, "cursor", []byte("stale"), 0)
	assert.ErrorIs(t, err, ErrConflict)

	v2, err := s.Set(ctx, "cursor", []byte("c2"), v1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), v2)

	val, _, err = s.Get(ctx, "cursor")
	assert.NoError(t, err)
	assert.Equal(t, []byte("c2"), val)

	assert.ErrorIs(t, s.Delete(ctx, "cursor", v1), ErrConflict)
	assert.NoError(t, s.Delete(ctx, "cursor", v2))
	_, _, err = s.Get(ctx, "cursor")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "kv.db"))
	assert.NoError(t, err)
	defer s.Close()
	runStoreSuite(t, s)
}
