package store

import (
	"context"
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var kvBucket = []byte("kv")

// BoltStore KVStore 的本地文件实现 (bbolt)。
// 值编码: 8 字节大端版本号 + 数据。
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("打开 bolt 数据库失败: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decode(raw []byte) (uint64, []byte) {
	version := binary.BigEndian.Uint64(raw[:8])
	return version, raw[8:]
}

func encode(version uint64, value []byte) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], version)
	copy(out[8:], value)
	return out
}

func (s *BoltStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	var value []byte
	var version uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(kvBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var data []byte
		version, data = decode(raw)
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return value, version, nil
}

func (s *BoltStore) Set(_ context.Context, key string, value []byte, version uint64) (uint64, error) {
	var newVersion uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(kvBucket)
		current := uint64(0)
		if raw := bucket.Get([]byte(key)); raw != nil {
			current, _ = decode(raw)
		}
		if version != current {
			return ErrConflict
		}
		newVersion = current + 1
		return bucket.Put([]byte(key), encode(newVersion, value))
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *BoltStore) Delete(_ context.Context, key string, version uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(kvBucket)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		current, _ := decode(raw)
		if current != version {
			return ErrConflict
		}
		return bucket.Delete([]byte(key))
	})
}
