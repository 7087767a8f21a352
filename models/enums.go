package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusVoided    TransactionStatus = "voided"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

func (s TransactionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *TransactionStatus) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return fmt.Errorf("transaction status: %w", err)
	}
	switch TransactionStatus(str) {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusVoided, TransactionStatusRefunded:
		*s = TransactionStatus(str)
	default:
		return fmt.Errorf("invalid transaction status %q", str)
	}
	return nil
}

// IsFinal reports whether the status is terminal (no further transitions).
func (s TransactionStatus) IsFinal() bool {
	return s == TransactionStatusVoided || s == TransactionStatusRefunded
}

type TransactionItemType string

const (
	TransactionItemTypeProduct TransactionItemType = "product"
	TransactionItemTypeCombo   TransactionItemType = "combo"
)

func (t TransactionItemType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *TransactionItemType) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return fmt.Errorf("transaction item type: %w", err)
	}
	switch TransactionItemType(str) {
	case TransactionItemTypeProduct, TransactionItemTypeCombo:
		*t = TransactionItemType(str)
	default:
		return fmt.Errorf("invalid transaction item type %q", str)
	}
	return nil
}

type StockMovementType string

const (
	StockMovementTypeIn     StockMovementType = "in"
	StockMovementTypeOut    StockMovementType = "out"
	StockMovementTypeAdjust StockMovementType = "adjust"
	StockMovementTypeSale   StockMovementType = "sale"
	StockMovementTypeRefund StockMovementType = "refund"
)

func (t StockMovementType) Value() (driver.Value, error) {
	return string(t), nil
}

func (t *StockMovementType) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return fmt.Errorf("stock movement type: %w", err)
	}
	switch StockMovementType(str) {
	case StockMovementTypeIn, StockMovementTypeOut, StockMovementTypeAdjust, StockMovementTypeSale, StockMovementTypeRefund:
		*t = StockMovementType(str)
	default:
		return fmt.Errorf("invalid stock movement type %q", str)
	}
	return nil
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodQr       PaymentMethod = "qr"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

func (m PaymentMethod) Value() (driver.Value, error) {
	return string(m), nil
}

func (m *PaymentMethod) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return fmt.Errorf("payment method: %w", err)
	}
	switch PaymentMethod(str) {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodQr, PaymentMethodTransfer:
		*m = PaymentMethod(str)
	default:
		return fmt.Errorf("invalid payment method %q", str)
	}
	return nil
}

type AuditAction string

const (
	AuditActionTransactionCreate AuditAction = "transaction.create"
	AuditActionTransactionVoid   AuditAction = "transaction.void"
	AuditActionTransactionRefund AuditAction = "transaction.refund"
	AuditActionStockAdjust       AuditAction = "stock.adjust"
)

type AuditPublishStatus string

const (
	AuditPublishStatusPending   AuditPublishStatus = "PENDING"
	AuditPublishStatusPublished AuditPublishStatus = "PUBLISHED"
	AuditPublishStatusFailed    AuditPublishStatus = "FAILED"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.New("value must be string")
	}
}
