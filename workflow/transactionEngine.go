package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	moduleName          = "TransactionEngine"
	outletLockType      = "pos-transaction"
	outletStockLockType = "pos-stock"
)

func correlationId(ctx context.Context) string {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func actorId(ctx context.Context) int {
	id, _ := utils.GetUserIdFromContext(ctx)
	return id
}

// loadCatalog fetches every product, variant, and combo the cart references
// and snapshots them for expansion and pre-checks. The snapshot is advisory;
// the stock ledger re-reads under row locks before writing.
func loadCatalog(ctx context.Context, cmd *CreateTransactionCommand) (map[int]*models.Combo, *Catalog, error) {
	cat := NewCatalog()
	combos := make(map[int]*models.Combo)

	for _, line := range cmd.Lines {
		switch line.ItemType {
		case models.TransactionItemTypeProduct:
			product, err := models.GetProduct(ctx, *line.ProductId)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: product %d", ErrNotFound, *line.ProductId)
			}
			cat.AddProduct(product)
			if line.VariantId != nil {
				variant, err := models.GetVariantOfProduct(ctx, product.ID, *line.VariantId)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: variant %d", ErrNotFound, *line.VariantId)
				}
				cat.AddVariant(product.Name, variant)
			}
		case models.TransactionItemTypeCombo:
			if _, ok := combos[*line.ComboId]; ok {
				continue
			}
			combo, err := models.GetCombo(ctx, *line.ComboId)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: combo %d", ErrNotFound, *line.ComboId)
			}
			combos[combo.ID] = combo
			for _, item := range combo.Items {
				product, err := models.GetProduct(ctx, item.ProductId)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: product %d", ErrNotFound, item.ProductId)
				}
				cat.AddProduct(product)
				if item.VariantId != nil {
					variant, err := models.GetVariantOfProduct(ctx, product.ID, *item.VariantId)
					if err != nil {
						return nil, nil, fmt.Errorf("%w: variant %d", ErrNotFound, *item.VariantId)
					}
					cat.AddVariant(product.Name, variant)
				}
			}
		}
	}
	return combos, cat, nil
}

// CreateTransaction runs the full checkout: resolve the cart, claim an
// invoice number, persist the transaction aggregate, and apply stock deltas
// through the ledger — all in one DB transaction. ClientRef, when present,
// makes the call idempotent: a replay returns the stored result.
func CreateTransaction(ctx context.Context, cmd *CreateTransactionCommand) (*models.Transaction, error) {
	logger := config.GetLogger()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	outlet, err := models.GetOutlet(ctx, cmd.OutletId)
	if err != nil {
		return nil, fmt.Errorf("%w: outlet %d", ErrNotFound, cmd.OutletId)
	}
	taxRate, serviceChargeRate, err := models.GetOutletRates(ctx, cmd.OutletId)
	if err != nil {
		return nil, err
	}

	if err := utils.OutletLock(ctx, cmd.OutletId, outletLockType, moduleName, "CreateTransaction"); err != nil {
		return nil, err
	}

	combos, cat, err := loadCatalog(ctx, cmd)
	if err != nil {
		return nil, err
	}
	items, requirements, err := BuildLines(cmd, combos, cat)
	if err != nil {
		return nil, err
	}
	if err := CheckStockRequirements(requirements, cat); err != nil {
		return nil, err
	}
	totals := ComputeTotals(items, cmd.Discount, cmd.DiscountType, taxRate, serviceChargeRate, cmd.PaidAmount)

	userId := actorId(ctx)
	corrId := correlationId(ctx)
	now := time.Now()

	db := config.GetDB()
	tx := db.Begin()

	if cmd.ClientRef != "" {
		skip, resultId, err := beginSyncIdempotency(tx, cmd.OutletId, cmd.ClientRef)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if skip {
			tx.Rollback()
			return models.GetTransaction(ctx, resultId)
		}
	}

	invoiceNumber, err := models.NextInvoiceNumber(tx, outlet.ID, outlet.Code, now)
	if err != nil {
		tx.Rollback()
		return nil, classifySequenceClaimErr(err)
	}

	transactionUuid := cmd.ClientRef
	if transactionUuid == "" {
		transactionUuid = uuid.NewString()
	}
	transaction := models.Transaction{
		Uuid:                transactionUuid,
		InvoiceNumber:       invoiceNumber,
		OutletId:            cmd.OutletId,
		CashierId:           userId,
		CustomerId:          cmd.CustomerId,
		Status:              models.TransactionStatusCompleted,
		Subtotal:            totals.Subtotal,
		DiscountAmount:      totals.DiscountAmount,
		TaxAmount:           totals.TaxAmount,
		ServiceChargeAmount: totals.ServiceChargeAmount,
		TotalAmount:         totals.TotalAmount,
		PaidAmount:          cmd.PaidAmount,
		ChangeAmount:        totals.ChangeAmount,
		PaymentMethod:       cmd.PaymentMethod,
		Notes:               cmd.Notes,
		Items:               items,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyErr(err) {
			return nil, ErrDuplicateClientRef
		}
		return nil, classifyDBError(err)
	}

	entries := make([]LedgerEntry, 0, len(requirements))
	for _, req := range requirements {
		if !req.Tracked {
			continue
		}
		entries = append(entries, LedgerEntry{
			OutletId:      cmd.OutletId,
			ProductId:     req.ProductId,
			VariantId:     req.VariantId,
			Type:          models.StockMovementTypeSale,
			Delta:         req.Qty.Neg(),
			TransactionId: &transaction.ID,
			UserId:        userId,
			Notes:         "sale " + invoiceNumber,
			CorrelationId: corrId,
		})
	}
	if _, err := AppendMovements(tx, logger, entries); err != nil {
		tx.Rollback()
		config.LogError(logger, moduleName, "CreateTransaction", "stock ledger append failed", invoiceNumber, err)
		return nil, err
	}

	if err := models.RecordAudit(ctx, tx, models.AuditActionTransactionCreate, &transaction.ID, transaction); err != nil {
		tx.Rollback()
		return nil, err
	}

	if cmd.ClientRef != "" {
		if err := markSyncSucceeded(tx, cmd.OutletId, cmd.ClientRef, transaction.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyDBError(err)
	}

	NudgeAuditDispatcher()
	return &transaction, nil
}

// VoidTransaction cancels a completed sale: every stock movement the sale
// caused is reversed through the ledger and the transaction becomes voided.
// Retrying a void of an already-voided sale returns ErrAlreadyFinal.
func VoidTransaction(ctx context.Context, cmd *VoidTransactionCommand) (*models.Transaction, error) {
	logger := config.GetLogger()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	header, err := models.GetTransaction(ctx, cmd.TransactionId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, cmd.TransactionId)
		}
		return nil, err
	}

	if err := utils.OutletLock(ctx, header.OutletId, outletLockType, moduleName, "VoidTransaction"); err != nil {
		return nil, err
	}

	userId := actorId(ctx)
	corrId := correlationId(ctx)

	db := config.GetDB()
	tx := db.Begin()

	transaction, err := models.FetchTransactionForChange(tx, cmd.TransactionId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, cmd.TransactionId)
		}
		return nil, classifyDBError(err)
	}

	if transaction.Status.IsFinal() {
		tx.Rollback()
		return nil, ErrAlreadyFinal
	}
	if transaction.Status != models.TransactionStatusCompleted {
		tx.Rollback()
		return nil, fmt.Errorf("%w: cannot void a %s transaction", ErrInvalidState, transaction.Status)
	}

	if _, err := ReverseMovements(tx, logger, transaction.ID, &transaction.ID,
		models.StockMovementTypeIn, userId, "void "+transaction.InvoiceNumber, corrId); err != nil {
		tx.Rollback()
		config.LogError(logger, moduleName, "VoidTransaction", "stock reversal failed", transaction.InvoiceNumber, err)
		return nil, err
	}

	now := time.Now()
	if err := tx.Model(&models.Transaction{}).
		Where("id = ?", transaction.ID).
		Updates(map[string]interface{}{
			"status":      models.TransactionStatusVoided,
			"void_reason": &cmd.Reason,
			"voided_at":   &now,
			"voided_by":   &userId,
		}).Error; err != nil {
		tx.Rollback()
		return nil, classifyDBError(err)
	}

	if err := models.RecordAudit(ctx, tx, models.AuditActionTransactionVoid, &transaction.ID, transaction); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyDBError(err)
	}

	NudgeAuditDispatcher()
	return models.GetTransaction(ctx, transaction.ID)
}

// refundPlanLine pairs one original item with the quantity being taken back.
type refundPlanLine struct {
	item *models.TransactionItem
	qty  decimal.Decimal
}

func buildRefundPlan(original *models.Transaction, cmd *RefundTransactionCommand) ([]refundPlanLine, error) {
	byId := make(map[int]*models.TransactionItem, len(original.Items))
	for i := range original.Items {
		byId[original.Items[i].ID] = &original.Items[i]
	}

	if len(cmd.Lines) == 0 {
		plan := make([]refundPlanLine, 0, len(original.Items))
		for i := range original.Items {
			plan = append(plan, refundPlanLine{item: &original.Items[i], qty: original.Items[i].Qty})
		}
		return plan, nil
	}

	plan := make([]refundPlanLine, 0, len(cmd.Lines))
	seen := make(map[int]bool, len(cmd.Lines))
	for _, line := range cmd.Lines {
		item, ok := byId[line.ItemId]
		if !ok {
			return nil, fmt.Errorf("%w: item %d does not belong to transaction %d", ErrNotFound, line.ItemId, original.ID)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("%w: item %d listed twice", ErrInvalidRefund, item.ID)
		}
		seen[item.ID] = true
		if line.Qty.GreaterThan(item.Qty) {
			return nil, fmt.Errorf("%w: item %d has qty %s, requested %s",
				ErrInvalidRefund, item.ID, item.Qty.String(), line.Qty.String())
		}
		plan = append(plan, refundPlanLine{item: item, qty: line.Qty})
	}
	return plan, nil
}

// RefundTransaction reverses some or all items of a completed sale by
// creating a new negative-value transaction linked to the original. Stock
// returns through the ledger using the quantities and costs frozen at sale
// time, so a combo refund restores exactly what the sale deducted. The
// original becomes refunded even for a partial refund; both the updated
// original and the refund transaction are returned.
func RefundTransaction(ctx context.Context, cmd *RefundTransactionCommand) (*models.Transaction, *models.Transaction, error) {
	logger := config.GetLogger()

	if err := cmd.Validate(); err != nil {
		return nil, nil, err
	}

	header, err := models.GetTransaction(ctx, cmd.TransactionId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: transaction %d", ErrNotFound, cmd.TransactionId)
		}
		return nil, nil, err
	}

	if err := utils.OutletLock(ctx, header.OutletId, outletLockType, moduleName, "RefundTransaction"); err != nil {
		return nil, nil, err
	}

	outlet, err := models.GetOutlet(ctx, header.OutletId)
	if err != nil {
		return nil, nil, err
	}

	userId := actorId(ctx)
	corrId := correlationId(ctx)
	now := time.Now()

	db := config.GetDB()
	tx := db.Begin()

	original, err := models.FetchTransactionForChange(tx, cmd.TransactionId)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: transaction %d", ErrNotFound, cmd.TransactionId)
		}
		return nil, nil, classifyDBError(err)
	}

	if original.Status.IsFinal() {
		tx.Rollback()
		return nil, nil, ErrAlreadyFinal
	}
	if original.Status != models.TransactionStatusCompleted {
		tx.Rollback()
		return nil, nil, fmt.Errorf("%w: cannot refund a %s transaction", ErrInvalidState, original.Status)
	}

	plan, err := buildRefundPlan(original, cmd)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	refundItems, restoreEntries, refundSubtotal := buildRefundItems(plan, original.OutletId, userId, corrId)

	full := refundSubtotal.Equal(original.Subtotal)
	var discountAmount, taxAmount, serviceChargeAmount decimal.Decimal
	if full {
		discountAmount = original.DiscountAmount
		taxAmount = original.TaxAmount
		serviceChargeAmount = original.ServiceChargeAmount
	} else if original.Subtotal.IsZero() {
		discountAmount, taxAmount, serviceChargeAmount = decimal.Zero, decimal.Zero, decimal.Zero
	} else {
		// Proportional share of the refunded items.
		ratio := refundSubtotal.Div(original.Subtotal)
		discountAmount = original.DiscountAmount.Mul(ratio).Round(4)
		taxAmount = original.TaxAmount.Mul(ratio).Round(4)
		serviceChargeAmount = original.ServiceChargeAmount.Mul(ratio).Round(4)
	}
	refundTotal := refundSubtotal.Sub(discountAmount).Add(taxAmount).Add(serviceChargeAmount)

	invoiceNumber, err := models.NextInvoiceNumber(tx, outlet.ID, outlet.Code, now)
	if err != nil {
		tx.Rollback()
		return nil, nil, classifySequenceClaimErr(err)
	}

	refundTx := models.Transaction{
		Uuid:                  uuid.NewString(),
		InvoiceNumber:         invoiceNumber,
		OutletId:              original.OutletId,
		CashierId:             userId,
		CustomerId:            original.CustomerId,
		Status:                models.TransactionStatusCompleted,
		Subtotal:              refundSubtotal.Neg(),
		DiscountAmount:        discountAmount.Neg(),
		TaxAmount:             taxAmount.Neg(),
		ServiceChargeAmount:   serviceChargeAmount.Neg(),
		TotalAmount:           refundTotal.Neg(),
		PaymentMethod:         original.PaymentMethod,
		Notes:                 cmd.Reason,
		OriginalTransactionId: &original.ID,
		Items:                 refundItems,
	}
	if err := tx.Create(&refundTx).Error; err != nil {
		tx.Rollback()
		return nil, nil, classifyDBError(err)
	}

	for i := range restoreEntries {
		restoreEntries[i].TransactionId = &refundTx.ID
		restoreEntries[i].Notes = "refund " + original.InvoiceNumber
	}
	if _, err := AppendMovements(tx, logger, restoreEntries); err != nil {
		tx.Rollback()
		config.LogError(logger, moduleName, "RefundTransaction", "stock restore failed", original.InvoiceNumber, err)
		return nil, nil, err
	}

	if err := tx.Model(&models.Transaction{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"status":                models.TransactionStatusRefunded,
			"refund_transaction_id": &refundTx.ID,
			"refund_amount":         refundTotal,
			"refund_reason":         &cmd.Reason,
			"refunded_at":           &now,
			"refunded_by":           &userId,
		}).Error; err != nil {
		tx.Rollback()
		return nil, nil, classifyDBError(err)
	}

	if err := models.RecordAudit(ctx, tx, models.AuditActionTransactionRefund, &refundTx.ID, refundTx); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, nil, classifyDBError(err)
	}

	NudgeAuditDispatcher()
	updated, err := models.GetTransaction(ctx, original.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, &refundTx, nil
}

// buildRefundItems mirrors the planned lines as negative-quantity items under
// the refund transaction and derives the ledger restores from quantities
// frozen at sale time. TransactionId/Notes on the entries are filled in after
// the refund transaction row exists.
func buildRefundItems(plan []refundPlanLine, outletId int, userId int, corrId string) ([]models.TransactionItem, []LedgerEntry, decimal.Decimal) {
	items := make([]models.TransactionItem, 0, len(plan))
	entries := make([]LedgerEntry, 0, len(plan))
	subtotal := decimal.Zero

	addEntry := func(productId int, variantId *int, qty decimal.Decimal) {
		for i := range entries {
			if entries[i].ProductId == productId && intPtrEqual(entries[i].VariantId, variantId) {
				entries[i].Delta = entries[i].Delta.Add(qty)
				return
			}
		}
		entries = append(entries, LedgerEntry{
			OutletId:      outletId,
			ProductId:     productId,
			VariantId:     variantId,
			Type:          models.StockMovementTypeRefund,
			Delta:         qty,
			UserId:        userId,
			CorrelationId: corrId,
		})
	}

	for _, line := range plan {
		item := line.item
		lineTotal := item.UnitPrice.Mul(line.qty)
		subtotal = subtotal.Add(lineTotal)

		itemId := item.ID
		refundItem := models.TransactionItem{
			ItemType:       item.ItemType,
			ProductId:      item.ProductId,
			VariantId:      item.VariantId,
			ComboId:        item.ComboId,
			Name:           item.Name,
			Qty:            line.qty.Neg(),
			UnitPrice:      item.UnitPrice,
			TotalPrice:     lineTotal.Neg(),
			RefundedItemId: &itemId,
		}

		if item.ItemType == models.TransactionItemTypeCombo {
			details := make([]models.TransactionItemDetail, 0, len(item.Details))
			for _, d := range item.Details {
				// Frozen detail qty is the line total; scale to the refunded
				// share of the line.
				share := d.Qty.Div(item.Qty).Mul(line.qty)
				details = append(details, models.TransactionItemDetail{
					ProductId: d.ProductId,
					VariantId: d.VariantId,
					Qty:       share.Neg(),
					UnitCost:  d.UnitCost,
				})
				addEntry(d.ProductId, d.VariantId, share)
			}
			refundItem.Details = details
		} else if item.ProductId != nil {
			addEntry(*item.ProductId, item.VariantId, line.qty)
		}

		items = append(items, refundItem)
	}
	return items, entries, subtotal
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// AdjustStock applies a manual quantity correction through the same ledger
// gate sales use, so the movement-sum invariant keeps holding.
func AdjustStock(ctx context.Context, cmd *AdjustStockCommand) (*models.StockMovement, error) {
	logger := config.GetLogger()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if err := utils.OutletLock(ctx, cmd.OutletId, outletStockLockType, moduleName, "AdjustStock"); err != nil {
		return nil, err
	}

	userId := actorId(ctx)
	corrId := correlationId(ctx)

	db := config.GetDB()
	tx := db.Begin()

	movements, err := AppendMovements(tx, logger, []LedgerEntry{{
		OutletId:      cmd.OutletId,
		ProductId:     cmd.ProductId,
		VariantId:     cmd.VariantId,
		Type:          models.StockMovementTypeAdjust,
		Delta:         cmd.Delta,
		UserId:        userId,
		Notes:         cmd.Reason,
		CorrelationId: corrId,
	}})
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(movements) == 0 {
		// Untracked entity: nothing to adjust.
		tx.Rollback()
		return nil, fmt.Errorf("product %d does not track stock", cmd.ProductId)
	}

	if err := models.RecordAudit(ctx, tx, models.AuditActionStockAdjust, nil, movements[0]); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, classifyDBError(err)
	}

	NudgeAuditDispatcher()
	return movements[0], nil
}
