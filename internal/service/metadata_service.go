package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payments-core/internal/event"
	"payments-core/internal/model"
	"payments-core/internal/sender"
	"payments-core/internal/service/mq"
	"payments-core/pkg/logger"
)

// MetadataService 交易元数据落库 + 事件外发。
// 实现 sender.MetadataWriter。
type MetadataService struct {
	db       *gorm.DB
	producer mq.Producer
	log      *zap.Logger
}

func NewMetadataService(db *gorm.DB, producer mq.Producer) *MetadataService {
	return &MetadataService{
		db:       db,
		producer: producer,
		log:      logger.Log.Named("metadata"),
	}
}

// WriteTxMetadata 幂等落库 (按 tx_hash 去重)，并外发广播事件。
// 事件发送失败只记日志。
func (s *MetadataService) WriteTxMetadata(ctx context.Context, meta sender.TxMetadata) error {
	record := model.TxMetadata{
		TxHash:    meta.TxHash,
		Currency:  meta.CurrencyCode,
		Comment:   meta.Comment,
		FeeRate:   meta.FeeRate,
		FiatCode:  meta.FiatCode,
		FiatRate:  meta.FiatRate,
		CreatedAt: meta.CreatedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_hash"}}, DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return err
	}

	if s.producer != nil {
		payload, _ := json.Marshal(event.TransactionSentEvent{
			TxHash:   meta.TxHash,
			Currency: meta.CurrencyCode,
			Source:   "manual",
		})
		if err := s.producer.Publish(ctx, event.TopicTransactionSent, meta.TxHash, payload); err != nil {
			s.log.Warn("发布交易事件失败", zap.String("hash", meta.TxHash), zap.Error(err))
		}
	}
	return nil
}

// TxMetadataByHash 查询单条元数据
func (s *MetadataService) TxMetadataByHash(ctx context.Context, txHash string) (*model.TxMetadata, error) {
	var record model.TxMetadata
	if err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// RecentTxMetadata 最近广播的交易
func (s *MetadataService) RecentTxMetadata(ctx context.Context, limit int) ([]model.TxMetadata, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []model.TxMetadata
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&records).Error
	return records, err
}
