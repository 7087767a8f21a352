package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"bitbucket.org/mmdatafocus/pos_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression coverage for the stock-ledger engine against real MySQL + Redis:
// create/void roundtrip, frozen combo refunds, offline-sync dedup, and the
// last-unit race. Run with INTEGRATION_TESTS=1 (requires docker).

func setupEngineTest(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "pos_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test Cashier")
	ctx = utils.SetCorrelationIdInContext(ctx, "itest")
	return ctx
}

func seedOutlet(t *testing.T, ctx context.Context, code string) *models.Outlet {
	t.Helper()
	outlet, err := models.CreateOutlet(ctx, &models.NewOutlet{Name: "Outlet " + code, Code: code})
	if err != nil {
		t.Fatalf("CreateOutlet: %v", err)
	}
	return outlet
}

func seedProduct(t *testing.T, ctx context.Context, outletId int, sku string, price int64, opening int64) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		OutletId:   &outletId,
		Name:       "Product " + sku,
		Sku:        sku,
		SalesPrice: decimal.NewFromInt(price),
	})
	if err != nil {
		t.Fatalf("CreateProduct(%s): %v", sku, err)
	}
	if opening > 0 {
		if _, err := workflow.AdjustStock(ctx, &workflow.AdjustStockCommand{
			OutletId:  outletId,
			ProductId: product.ID,
			Delta:     decimal.NewFromInt(opening),
			Reason:    "opening stock",
		}); err != nil {
			t.Fatalf("AdjustStock(%s): %v", sku, err)
		}
	}
	return product
}

func productQty(t *testing.T, ctx context.Context, id int) decimal.Decimal {
	t.Helper()
	product, err := models.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct(%d): %v", id, err)
	}
	return product.StockQty
}

func assertLedgerMatches(t *testing.T, ctx context.Context, productId int) {
	t.Helper()
	sum, err := models.SumMovementDeltas(ctx, productId, nil)
	if err != nil {
		t.Fatalf("SumMovementDeltas(%d): %v", productId, err)
	}
	qty := productQty(t, ctx, productId)
	if !sum.Equal(qty) {
		t.Fatalf("ledger sum %s != stock_qty %s for product %d", sum, qty, productId)
	}
}

func TestTransactionEngine_CreateVoidRoundtrip(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS1")
	product := seedProduct(t, ctx, outlet.ID, "CV-001", 2500, 10)

	sale, err := workflow.CreateTransaction(ctx, &workflow.CreateTransactionCommand{
		OutletId:      outlet.ID,
		PaymentMethod: models.PaymentMethodCash,
		PaidAmount:    decimal.NewFromInt(7500),
		Lines: []workflow.CreateTransactionLine{
			{ItemType: models.TransactionItemTypeProduct, ProductId: &product.ID, Qty: decimal.NewFromInt(3)},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	wantInvoice := fmt.Sprintf("POS1-%s-0001", time.Now().Format("20060102"))
	if sale.InvoiceNumber != wantInvoice {
		t.Fatalf("invoice = %q, want %q", sale.InvoiceNumber, wantInvoice)
	}
	if sale.Status != models.TransactionStatusCompleted {
		t.Fatalf("status = %s, want completed", sale.Status)
	}
	if got := productQty(t, ctx, product.ID); !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("stock after sale = %s, want 7", got)
	}

	voided, err := workflow.VoidTransaction(ctx, &workflow.VoidTransactionCommand{
		TransactionId: sale.ID,
		Reason:        "cashier mistake",
	})
	if err != nil {
		t.Fatalf("VoidTransaction: %v", err)
	}
	if voided.Status != models.TransactionStatusVoided {
		t.Fatalf("status = %s, want voided", voided.Status)
	}
	if got := productQty(t, ctx, product.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stock after void = %s, want 10", got)
	}
	assertLedgerMatches(t, ctx, product.ID)

	db := config.GetDB()
	var movements []models.StockMovement
	if err := db.WithContext(ctx).
		Where("transaction_id = ?", sale.ID).Order("id").Find(&movements).Error; err != nil {
		t.Fatalf("load movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("got %d movements for sale, want sale + void restore", len(movements))
	}
	if movements[0].Type != models.StockMovementTypeSale || movements[1].Type != models.StockMovementTypeIn {
		t.Fatalf("movement types = %s/%s, want sale/in", movements[0].Type, movements[1].Type)
	}
	if !movements[1].AfterQty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("restore after_qty = %s, want 10", movements[1].AfterQty)
	}

	// Retrying the void must hit the terminal-state check.
	if _, err := workflow.VoidTransaction(ctx, &workflow.VoidTransactionCommand{
		TransactionId: sale.ID,
		Reason:        "again",
	}); !errors.Is(err, workflow.ErrAlreadyFinal) {
		t.Fatalf("second void err = %v, want ErrAlreadyFinal", err)
	}
}

// A combo refund must restore what the sale deducted, not what the combo
// contains today.
func TestTransactionEngine_RefundUsesFrozenComboDetails(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS2")
	bun := seedProduct(t, ctx, outlet.ID, "BUN-001", 500, 20)
	patty := seedProduct(t, ctx, outlet.ID, "PAT-001", 1500, 20)

	combo, err := models.CreateCombo(ctx, &models.NewCombo{
		Name:  "Burger Set",
		Price: decimal.NewFromInt(5000),
		Items: []models.NewComboItem{
			{ProductId: bun.ID, Qty: decimal.NewFromInt(2)},
			{ProductId: patty.ID, Qty: decimal.NewFromInt(1)},
		},
	})
	if err != nil {
		t.Fatalf("CreateCombo: %v", err)
	}

	sale, err := workflow.CreateTransaction(ctx, &workflow.CreateTransactionCommand{
		OutletId:      outlet.ID,
		PaymentMethod: models.PaymentMethodCash,
		PaidAmount:    decimal.NewFromInt(10000),
		Lines: []workflow.CreateTransactionLine{
			{ItemType: models.TransactionItemTypeCombo, ComboId: &combo.ID, Qty: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if got := productQty(t, ctx, bun.ID); !got.Equal(decimal.NewFromInt(16)) {
		t.Fatalf("bun stock after sale = %s, want 16", got)
	}

	// Change the combo definition after the sale; the refund must ignore it.
	if _, err := models.UpdateCombo(ctx, combo.ID, &models.NewCombo{
		Name:  "Burger Set",
		Price: decimal.NewFromInt(5000),
		Items: []models.NewComboItem{
			{ProductId: bun.ID, Qty: decimal.NewFromInt(5)},
		},
	}); err != nil {
		t.Fatalf("UpdateCombo: %v", err)
	}

	original, refund, err := workflow.RefundTransaction(ctx, &workflow.RefundTransactionCommand{
		TransactionId: sale.ID,
		Reason:        "customer returned",
	})
	if err != nil {
		t.Fatalf("RefundTransaction: %v", err)
	}
	if refund.OriginalTransactionId == nil || *refund.OriginalTransactionId != sale.ID {
		t.Fatalf("refund not linked to original")
	}
	if !refund.Subtotal.Equal(decimal.NewFromInt(-10000)) {
		t.Fatalf("refund subtotal = %s, want -10000", refund.Subtotal)
	}

	if got := productQty(t, ctx, bun.ID); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("bun stock after refund = %s, want 20", got)
	}
	if got := productQty(t, ctx, patty.ID); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("patty stock after refund = %s, want 20", got)
	}
	assertLedgerMatches(t, ctx, bun.ID)
	assertLedgerMatches(t, ctx, patty.ID)

	if original.Status != models.TransactionStatusRefunded {
		t.Fatalf("original status = %s, want refunded", original.Status)
	}
	if original.RefundTransactionId == nil || *original.RefundTransactionId != refund.ID {
		t.Fatalf("original not linked to refund")
	}
}

func TestTransactionEngine_OfflineSyncDedup(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS3")
	product := seedProduct(t, ctx, outlet.ID, "SYNC-001", 1000, 10)

	cmd := &workflow.CreateTransactionCommand{
		ClientRef:     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		OutletId:      outlet.ID,
		PaymentMethod: models.PaymentMethodCash,
		PaidAmount:    decimal.NewFromInt(2000),
		Lines: []workflow.CreateTransactionLine{
			{ItemType: models.TransactionItemTypeProduct, ProductId: &product.ID, Qty: decimal.NewFromInt(2)},
		},
	}

	results := workflow.SyncOfflineTransactions(ctx, []*workflow.CreateTransactionCommand{cmd})
	if results[0].Err != nil {
		t.Fatalf("first sync: %v", results[0].Err)
	}
	first := results[0].Transaction

	// Replay of the same queued sale must return the stored result.
	results = workflow.SyncOfflineTransactions(ctx, []*workflow.CreateTransactionCommand{cmd})
	if results[0].Err != nil {
		t.Fatalf("replay sync: %v", results[0].Err)
	}
	if results[0].Transaction.ID != first.ID {
		t.Fatalf("replay created transaction %d, want %d", results[0].Transaction.ID, first.ID)
	}

	if got := productQty(t, ctx, product.ID); !got.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("stock = %s, want 8 (deducted once)", got)
	}
	assertLedgerMatches(t, ctx, product.ID)
}

func TestTransactionEngine_ConcurrentSalesOfLastUnit(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS4")
	product := seedProduct(t, ctx, outlet.ID, "RACE-001", 9999, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.CreateTransaction(ctx, &workflow.CreateTransactionCommand{
				OutletId:      outlet.ID,
				PaymentMethod: models.PaymentMethodCash,
				PaidAmount:    decimal.NewFromInt(9999),
				Lines: []workflow.CreateTransactionLine{
					{ItemType: models.TransactionItemTypeProduct, ProductId: &product.ID, Qty: decimal.NewFromInt(1)},
				},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, workflow.ErrNegativeStock) &&
			!errors.Is(err, workflow.ErrInsufficientStock) &&
			!errors.Is(err, workflow.ErrConcurrentUpdate) {
			t.Fatalf("unexpected failure: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d sales succeeded, want exactly 1", succeeded)
	}
	if got := productQty(t, ctx, product.ID); !got.IsZero() {
		t.Fatalf("stock = %s, want 0", got)
	}
	assertLedgerMatches(t, ctx, product.ID)
}

func TestTransactionEngine_InsufficientStockKeepsNothing(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS5")
	product := seedProduct(t, ctx, outlet.ID, "LOW-001", 1000, 2)

	_, err := workflow.CreateTransaction(ctx, &workflow.CreateTransactionCommand{
		OutletId:      outlet.ID,
		PaymentMethod: models.PaymentMethodCash,
		PaidAmount:    decimal.NewFromInt(5000),
		Lines: []workflow.CreateTransactionLine{
			{ItemType: models.TransactionItemTypeProduct, ProductId: &product.ID, Qty: decimal.NewFromInt(5)},
		},
	})
	if !errors.Is(err, workflow.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	db := config.GetDB()
	var txCount int64
	if err := db.WithContext(ctx).Model(&models.Transaction{}).
		Where("outlet_id = ?", outlet.ID).Count(&txCount).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if txCount != 0 {
		t.Fatalf("failed sale persisted %d transactions", txCount)
	}
	if got := productQty(t, ctx, product.ID); !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("stock = %s, want untouched 2", got)
	}
}

// Rate reads are cached in redis; an upsert must evict the cached entry so
// the next sale picks up the new rates.
func TestOutletRates_CacheInvalidatedOnUpsert(t *testing.T) {
	ctx := setupEngineTest(t)
	outlet := seedOutlet(t, ctx, "POS6")

	if _, err := models.UpsertOutletSetting(ctx, &models.NewOutletSetting{
		OutletId: outlet.ID,
		TaxRate:  decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("UpsertOutletSetting: %v", err)
	}
	tax, _, err := models.GetOutletRates(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetOutletRates: %v", err)
	}
	if !tax.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("tax rate = %s, want 5", tax)
	}

	// Warm the cache, then change the rate behind it.
	if _, _, err := models.GetOutletRates(ctx, outlet.ID); err != nil {
		t.Fatalf("GetOutletRates (cached): %v", err)
	}
	if _, err := models.UpsertOutletSetting(ctx, &models.NewOutletSetting{
		OutletId: outlet.ID,
		TaxRate:  decimal.NewFromInt(8),
	}); err != nil {
		t.Fatalf("UpsertOutletSetting: %v", err)
	}

	tax, _, err = models.GetOutletRates(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("GetOutletRates after upsert: %v", err)
	}
	if !tax.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("tax rate after upsert = %s, want 8 (stale cache?)", tax)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("pos-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=pos_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
