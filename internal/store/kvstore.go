package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound key 不存在
	ErrNotFound = errors.New("kvstore: record not found")
	// ErrConflict 乐观并发冲突 (版本号不匹配)
	ErrConflict = errors.New("kvstore: version conflict")
)

// KVStore 提供带乐观并发控制的键值存储。
// 配对索引 (PairedWalletIndex)、配对数据 (PairedWalletData) 和收件箱游标
// 以它为唯一事实来源，每次使用都读-改-写，不跨调用缓存。
//
// Set 的 version 必须等于当前版本 (新 key 传 0)，否则返回 ErrConflict；
// 成功返回新版本号。
type KVStore interface {
	Get(ctx context.Context, key string) (value []byte, version uint64, err error)
	Set(ctx context.Context, key string, value []byte, version uint64) (newVersion uint64, err error)
	Delete(ctx context.Context, key string, version uint64) error
}
