package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

// The audit trail is an outbox: RecordAudit writes rows inside the engine's
// DB transaction and this dispatcher publishes them to Pub/Sub after commit.
// Publishing is fire-and-forget from the engine's perspective; a sale never
// rolls back because the audit sink is down.

const auditDispatchBatchSize = 100

var auditNudge = make(chan struct{}, 1)

// NudgeAuditDispatcher wakes the dispatcher loop without blocking. Safe to
// call when no dispatcher is running.
func NudgeAuditDispatcher() {
	select {
	case auditNudge <- struct{}{}:
	default:
	}
}

// DispatchPendingAudits publishes one batch of PENDING audit rows and returns
// how many went out. Per-row publish failures are recorded on the row and do
// not abort the batch.
func DispatchPendingAudits(ctx context.Context) (int, error) {
	logger := config.GetLogger()

	pending, err := models.FetchPendingAuditLogs(ctx, auditDispatchBatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, record := range pending {
		msg := config.AuditMessage{
			ID:            record.ID,
			OutletId:      record.OutletId,
			ActionTime:    record.CreatedAt,
			Action:        string(record.Action),
			ActorId:       record.ActorId,
			TransactionId: utils.DereferencePtr(record.TransactionId),
			Snapshot:      record.Snapshot,
			CorrelationId: record.CorrelationId,
		}
		if _, err := config.PublishAuditMessage(ctx, msg); err != nil {
			config.LogError(logger, moduleName, "DispatchPendingAudits", "publish failed", record.ID, err)
			if markErr := models.MarkAuditFailed(ctx, record.ID, err); markErr != nil {
				config.LogError(logger, moduleName, "DispatchPendingAudits", "mark failed", record.ID, markErr)
			}
			continue
		}
		if err := models.MarkAuditPublished(ctx, record.ID); err != nil {
			config.LogError(logger, moduleName, "DispatchPendingAudits", "mark published", record.ID, err)
			continue
		}
		published++
	}
	return published, nil
}

// RunAuditDispatcher loops until ctx is cancelled, draining the outbox on
// every nudge and at least once per interval.
func RunAuditDispatcher(ctx context.Context, interval time.Duration) {
	logger := config.GetLogger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-auditNudge:
		case <-ticker.C:
		}

		for {
			published, err := DispatchPendingAudits(ctx)
			if err != nil {
				config.LogError(logger, moduleName, "RunAuditDispatcher", "dispatch pass failed", nil, err)
				break
			}
			if published < auditDispatchBatchSize {
				break
			}
		}
	}
}
