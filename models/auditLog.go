package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog implements a transactional outbox for the audit trail: the row is
// written inside the same DB transaction as the business change and published
// to Pub/Sub asynchronously after commit by the audit dispatcher.
type AuditLog struct {
	ID              int                `gorm:"primary_key;index:idx_audit_dispatch,priority:2" json:"id"`
	Uuid            string             `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	OutletId        int                `gorm:"index;not null" json:"outlet_id"`
	Action          AuditAction        `gorm:"size:50;not null;index" json:"action"`
	ActorId         int                `gorm:"index;not null" json:"actor_id"`
	TransactionId   *int               `gorm:"index" json:"transaction_id"`
	Snapshot        []byte             `gorm:"type:blob" json:"snapshot"`
	PublishStatus   AuditPublishStatus `gorm:"size:20;not null;default:'PENDING';index:idx_audit_dispatch,priority:1" json:"publish_status"`
	PublishedAt     *time.Time         `gorm:"index" json:"published_at"`
	PublishAttempts int                `gorm:"not null;default:0" json:"publish_attempts"`
	LastError       *string            `gorm:"type:text" json:"last_error"`
	CorrelationId   string             `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// RecordAudit writes the audit row inside the caller's DB transaction. It does
// NOT publish; the dispatcher picks up PENDING rows after commit.
func RecordAudit(ctx context.Context, tx *gorm.DB, action AuditAction, transactionId *int, snapshot interface{}) error {
	snapshotJSON, err := utils.MarshalToJSON(snapshot)
	if err != nil {
		return err
	}

	outletId, _ := utils.GetOutletIdFromContext(ctx)
	actorId, _ := utils.GetUserIdFromContext(ctx)

	record := AuditLog{
		Uuid:          uuid.NewString(),
		OutletId:      outletId,
		Action:        action,
		ActorId:       actorId,
		TransactionId: transactionId,
		Snapshot:      []byte(snapshotJSON),
		PublishStatus: AuditPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

// FetchPendingAuditLogs returns the oldest unpublished rows, capped at limit.
func FetchPendingAuditLogs(ctx context.Context, limit int) ([]*AuditLog, error) {
	db := config.GetDB()
	var logs []*AuditLog
	err := db.WithContext(ctx).
		Where("publish_status = ?", AuditPublishStatusPending).
		Order("id").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func MarkAuditPublished(ctx context.Context, id int) error {
	db := config.GetDB()
	now := time.Now()
	return db.WithContext(ctx).Model(&AuditLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":   AuditPublishStatusPublished,
			"published_at":     &now,
			"publish_attempts": gorm.Expr("publish_attempts + 1"),
			"last_error":       nil,
		}).Error
}

func MarkAuditFailed(ctx context.Context, id int, publishErr error) error {
	db := config.GetDB()
	msg := publishErr.Error()
	return db.WithContext(ctx).Model(&AuditLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":   AuditPublishStatusFailed,
			"publish_attempts": gorm.Expr("publish_attempts + 1"),
			"last_error":       &msg,
		}).Error
}
