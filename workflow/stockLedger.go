package workflow

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerEntry is one requested quantity change. Delta is signed: negative for
// outgoing stock (sales), positive for restores and inbound adjustments.
type LedgerEntry struct {
	OutletId      int
	ProductId     int
	VariantId     *int
	Type          models.StockMovementType
	Delta         decimal.Decimal
	TransactionId *int
	UserId        int
	Notes         string
	CorrelationId string
}

// AppendMovements is the only writer of stock quantities. For each entry it
// locks the product/variant row, recomputes the quantity, and inserts the
// movement row — all inside the caller's DB transaction, so the mutated
// quantity and its ledger row commit together or not at all.
//
// Entries are applied in ascending (product id, variant id) order regardless
// of input order, so concurrent checkouts over overlapping products cannot
// deadlock on lock ordering.
func AppendMovements(tx *gorm.DB, logger *logrus.Logger, entries []LedgerEntry) ([]*models.StockMovement, error) {
	ordered := make([]LedgerEntry, len(entries))
	copy(ordered, entries)
	sortLedgerEntries(ordered)

	movements := make([]*models.StockMovement, 0, len(ordered))
	for _, entry := range ordered {
		movement, err := appendOne(tx, logger, entry)
		if err != nil {
			return nil, err
		}
		if movement != nil {
			movements = append(movements, movement)
		}
	}
	return movements, nil
}

func sortLedgerEntries(entries []LedgerEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && ledgerEntryLess(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func ledgerEntryLess(a, b LedgerEntry) bool {
	if a.ProductId != b.ProductId {
		return a.ProductId < b.ProductId
	}
	if (a.VariantId == nil) != (b.VariantId == nil) {
		return a.VariantId == nil
	}
	if a.VariantId == nil {
		return false
	}
	return *a.VariantId < *b.VariantId
}

// appendOne performs the locked read-modify-write for a single entry.
// Entries against untracked entities record nothing: there is no quantity to
// move and no invariant to keep.
func appendOne(tx *gorm.DB, logger *logrus.Logger, entry LedgerEntry) (*models.StockMovement, error) {
	var (
		before  decimal.Decimal
		tracked bool
		name    string
	)

	if entry.VariantId == nil {
		var product models.Product
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entry.ProductId).
			First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %d", ErrNotFound, entry.ProductId)
			}
			return nil, classifyDBError(err)
		}
		before = product.StockQty
		tracked = product.TracksStock()
		name = product.Name
	} else {
		var variant models.ProductVariant
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND product_id = ?", *entry.VariantId, entry.ProductId).
			First(&variant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: variant %d", ErrNotFound, *entry.VariantId)
			}
			return nil, classifyDBError(err)
		}
		before = variant.StockQty
		tracked = variant.TracksStock()
		name = variant.Name
	}

	if !tracked {
		return nil, nil
	}

	after := before.Add(entry.Delta)
	if after.IsNegative() {
		logger.WithFields(logrus.Fields{
			"product_id": entry.ProductId,
			"variant_id": entry.VariantId,
			"before":     before.String(),
			"delta":      entry.Delta.String(),
		}).Warn("stock would go negative")
		return nil, fmt.Errorf("%w: %s (have %s, need %s)",
			ErrNegativeStock, name, before.String(), entry.Delta.Neg().String())
	}

	if entry.VariantId == nil {
		if err := tx.Model(&models.Product{}).
			Where("id = ?", entry.ProductId).
			Update("stock_qty", after).Error; err != nil {
			return nil, err
		}
	} else {
		if err := tx.Model(&models.ProductVariant{}).
			Where("id = ?", *entry.VariantId).
			Update("stock_qty", after).Error; err != nil {
			return nil, err
		}
	}

	movement := models.StockMovement{
		Uuid:          uuid.NewString(),
		OutletId:      entry.OutletId,
		ProductId:     entry.ProductId,
		VariantId:     entry.VariantId,
		Type:          entry.Type,
		Qty:           entry.Delta,
		BeforeQty:     before,
		AfterQty:      after,
		TransactionId: entry.TransactionId,
		UserId:        entry.UserId,
		Notes:         entry.Notes,
		CorrelationId: entry.CorrelationId,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// ReverseMovements builds and applies the exact inverse of every movement a
// transaction caused. referenceTxId is the transaction the restore rows point
// at: the original for voids, the refund transaction for refunds.
func ReverseMovements(tx *gorm.DB, logger *logrus.Logger, sourceTxId int, referenceTxId *int, movementType models.StockMovementType, userId int, notes string, correlationId string) ([]*models.StockMovement, error) {
	originals, err := models.MovementsForTransaction(tx, sourceTxId)
	if err != nil {
		return nil, err
	}

	entries := make([]LedgerEntry, 0, len(originals))
	for _, m := range originals {
		entries = append(entries, LedgerEntry{
			OutletId:      m.OutletId,
			ProductId:     m.ProductId,
			VariantId:     m.VariantId,
			Type:          movementType,
			Delta:         m.Qty.Neg(),
			TransactionId: referenceTxId,
			UserId:        userId,
			Notes:         notes,
			CorrelationId: correlationId,
		})
	}
	return AppendMovements(tx, logger, entries)
}
