package pigeon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"payments-core/internal/store"
)

// 配对状态的持久化键。配对数据按远端公钥 (base64) 分键存储，
// 索引键保存全部远端公钥列表。
const (
	keyPairedWalletIndex = "paired-wallet-index"
	keyPairedWalletData  = "paired-wallet-" // + base64(remotePubKey)
	keyInboxMetadata     = "inbox-metadata"
)

// casRetries 乐观并发写的重试上限
const casRetries = 8

// PairedWalletIndex 所有已配对远端的公钥 (base64)
type PairedWalletIndex struct {
	PublicKeys []string `json:"public_keys"`
}

// PairedWalletData 单个远端的配对信息
type PairedWalletData struct {
	Identifier string    `json:"identifier"`
	Service    string    `json:"service"`
	CreatedAt  time.Time `json:"created_at"`
}

// InboxMetadata 收件箱处理进度
type InboxMetadata struct {
	LastCursor string `json:"last_cursor"`
}

func pairedWalletKey(remotePubKey []byte) string {
	return keyPairedWalletData + base64.StdEncoding.EncodeToString(remotePubKey)
}

// recordStore KV 之上的读-改-写封装。每次访问都重新读，不做内存缓存。
type recordStore struct {
	kv store.KVStore
}

func (r *recordStore) load(ctx context.Context, key string, out interface{}) (uint64, bool, error) {
	value, version, err := r.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if err := json.Unmarshal(value, out); err != nil {
		return 0, false, err
	}
	return version, true, nil
}

// mutate CAS 循环: 读当前值、应用变更、按版本写回，冲突则重读重试
func (r *recordStore) mutate(ctx context.Context, key string, fresh func() interface{}, apply func(record interface{})) error {
	for i := 0; i < casRetries; i++ {
		record := fresh()
		version, _, err := r.load(ctx, key, record)
		if err != nil {
			return err
		}
		apply(record)
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = r.kv.Set(ctx, key, value, version)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		return err
	}
	return store.ErrConflict
}

func (r *recordStore) inboxMetadata(ctx context.Context) (InboxMetadata, error) {
	var meta InboxMetadata
	_, _, err := r.load(ctx, keyInboxMetadata, &meta)
	return meta, err
}

func (r *recordStore) setLastCursor(ctx context.Context, cursor string) error {
	return r.mutate(ctx, keyInboxMetadata,
		func() interface{} { return &InboxMetadata{} },
		func(record interface{}) {
			record.(*InboxMetadata).LastCursor = cursor
		})
}

func (r *recordStore) pairedWallets(ctx context.Context) (PairedWalletIndex, error) {
	var index PairedWalletIndex
	_, _, err := r.load(ctx, keyPairedWalletIndex, &index)
	return index, err
}

func (r *recordStore) pairedWalletData(ctx context.Context, remotePubKey []byte) (*PairedWalletData, error) {
	var data PairedWalletData
	_, found, err := r.load(ctx, pairedWalletKey(remotePubKey), &data)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &data, nil
}

// addPairedWallet 写入配对数据并把公钥加进索引 (幂等)
func (r *recordStore) addPairedWallet(ctx context.Context, remotePubKey []byte, data PairedWalletData) error {
	err := r.mutate(ctx, pairedWalletKey(remotePubKey),
		func() interface{} { return &PairedWalletData{} },
		func(record interface{}) {
			*record.(*PairedWalletData) = data
		})
	if err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(remotePubKey)
	return r.mutate(ctx, keyPairedWalletIndex,
		func() interface{} { return &PairedWalletIndex{} },
		func(record interface{}) {
			index := record.(*PairedWalletIndex)
			for _, existing := range index.PublicKeys {
				if existing == encoded {
					return
				}
			}
			index.PublicKeys = append(index.PublicKeys, encoded)
		})
}
