package workflow

import (
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrInactiveProduct    = errors.New("product is inactive")
	ErrInactiveCombo      = errors.New("combo is inactive")
	ErrInvalidCombo       = errors.New("combo has no items")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNegativeStock      = errors.New("stock would go negative")
	ErrInvalidState       = errors.New("invalid transaction state for this operation")
	ErrAlreadyFinal       = errors.New("transaction is already in a final state")
	ErrInvalidRefund      = errors.New("refund exceeds refundable quantity")
	ErrDuplicateClientRef = errors.New("client ref already processed")
	ErrSyncInProgress     = errors.New("sync for this client ref is in progress")

	// ErrConcurrentUpdate marks deadlock / lock-wait-timeout commits; callers
	// may retry the whole operation.
	ErrConcurrentUpdate = errors.New("concurrent update, retry the operation")
)

// StockShortfall describes one product/variant that cannot cover the
// requested quantity.
type StockShortfall struct {
	ProductId int
	VariantId *int
	Name      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

// InsufficientStockError carries the full shortfall list so the POS client
// can show every failing line at once. errors.Is(err, ErrInsufficientStock)
// matches it.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
	// MaxQty is set on combo checks: how many whole combo units the current
	// stock still covers.
	MaxQty *decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: requested %s, available %s",
			s.Name, s.Requested.String(), s.Available.String()))
	}
	msg := "insufficient stock: " + strings.Join(parts, "; ")
	if e.MaxQty != nil {
		msg += "; max purchasable: " + e.MaxQty.String()
	}
	return msg
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// isRetryableMySQLErr reports deadlock (1213) and lock wait timeout (1205).
func isRetryableMySQLErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1205 || mysqlErr.Number == 1213
	}
	return false
}

// classifyDBError maps driver-level contention errors onto ErrConcurrentUpdate
// and passes everything else through unchanged.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableMySQLErr(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}

// classifySequenceClaimErr additionally treats duplicate-key (1062) as a
// transient conflict: two first-sales-of-the-day can race the counter-row
// insert, and the loser only needs to retry.
func classifySequenceClaimErr(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return classifyDBError(err)
}
