package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"gorm.io/gorm"
)

// Offline terminals queue sales locally and push them later, possibly more
// than once. Each push routes through CreateTransaction keyed by the
// terminal's client ref, so a replay returns the stored transaction instead
// of selling stock twice.

const syncHandlerName = "pos.transaction.create"

// beginSyncIdempotency inserts STARTED for (outlet, handler, clientRef).
// skip=true with the stored transaction id means the work already succeeded.
func beginSyncIdempotency(tx *gorm.DB, outletId int, clientRef string) (skip bool, resultId int, err error) {
	key := models.IdempotencyKey{
		OutletId:    outletId,
		HandlerName: syncHandlerName,
		ClientRef:   clientRef,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, 0, nil
	} else if !isDuplicateKeyErr(err) {
		return false, 0, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("outlet_id = ? AND handler_name = ? AND client_ref = ?", outletId, syncHandlerName, clientRef).
		First(&existing).Error; err != nil {
		return false, 0, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		if existing.ResultId == nil {
			return false, 0, ErrDuplicateClientRef
		}
		return true, *existing.ResultId, nil
	case models.IdempotencyStatusStarted:
		// Another worker may still be processing; a stale row gets retried
		// by reusing it.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, 0, ErrSyncInProgress
		}
		fallthrough
	default:
		return false, 0, tx.Model(&models.IdempotencyKey{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
	}
}

func markSyncSucceeded(tx *gorm.DB, outletId int, clientRef string, resultId int) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("outlet_id = ? AND handler_name = ? AND client_ref = ?", outletId, syncHandlerName, clientRef).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusSucceeded,
			"result_id":  &resultId,
			"last_error": nil,
		}).Error
}

func markSyncFailed(ctx context.Context, outletId int, clientRef string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&models.IdempotencyKey{}).
		Where("outlet_id = ? AND handler_name = ? AND client_ref = ?", outletId, syncHandlerName, clientRef).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": &msg,
		}).Error
}

// SyncResult reports the outcome of one pushed offline sale.
type SyncResult struct {
	ClientRef   string              `json:"client_ref"`
	Transaction *models.Transaction `json:"transaction"`
	Err         error               `json:"-"`
	Error       string              `json:"error,omitempty"`
}

// SyncOfflineTransactions pushes a batch of queued sales through the engine
// one by one. A failed sale does not stop the batch; each result carries its
// own outcome so the terminal can re-queue only the failures.
func SyncOfflineTransactions(ctx context.Context, cmds []*CreateTransactionCommand) []SyncResult {
	logger := config.GetLogger()

	results := make([]SyncResult, 0, len(cmds))
	for _, cmd := range cmds {
		result := SyncResult{ClientRef: cmd.ClientRef}

		transaction, err := CreateTransaction(ctx, cmd)
		if err != nil {
			result.Err = err
			result.Error = err.Error()
			config.LogError(logger, moduleName, "SyncOfflineTransactions", "offline sale failed", cmd.ClientRef, err)
			if cmd.ClientRef != "" {
				if markErr := markSyncFailed(ctx, cmd.OutletId, cmd.ClientRef, err); markErr != nil {
					config.LogError(logger, moduleName, "SyncOfflineTransactions", "mark failed", cmd.ClientRef, markErr)
				}
			}
		} else {
			result.Transaction = transaction
		}
		results = append(results, result)
	}
	return results
}
