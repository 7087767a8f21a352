package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
)

func validCreateCommand() *CreateTransactionCommand {
	return &CreateTransactionCommand{
		OutletId:      1,
		PaymentMethod: models.PaymentMethodCash,
		PaidAmount:    dec(5000),
		Lines: []CreateTransactionLine{
			{ItemType: models.TransactionItemTypeProduct, ProductId: intp(1), Qty: dec(2)},
		},
	}
}

func TestCreateTransactionCommand_Valid(t *testing.T) {
	if err := validCreateCommand().Validate(); err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}
}

func TestCreateTransactionCommand_RejectsEmptyCart(t *testing.T) {
	cmd := validCreateCommand()
	cmd.Lines = nil
	if err := cmd.Validate(); err == nil {
		t.Fatal("empty cart accepted")
	}
}

func TestCreateTransactionCommand_RejectsZeroQty(t *testing.T) {
	cmd := validCreateCommand()
	cmd.Lines[0].Qty = decimal.Zero
	if err := cmd.Validate(); err == nil {
		t.Fatal("zero qty accepted")
	}
}

func TestCreateTransactionCommand_RejectsComboLineWithProductId(t *testing.T) {
	cmd := validCreateCommand()
	cmd.Lines[0].ItemType = models.TransactionItemTypeCombo
	// ProductId still set, ComboId missing.
	if err := cmd.Validate(); err == nil {
		t.Fatal("combo line carrying product_id accepted")
	}
}

func TestCreateTransactionCommand_RejectsBadPaymentMethod(t *testing.T) {
	cmd := validCreateCommand()
	cmd.PaymentMethod = models.PaymentMethod("barter")
	if err := cmd.Validate(); err == nil {
		t.Fatal("unknown payment method accepted")
	}
}

func TestCreateTransactionCommand_RejectsMalformedClientRef(t *testing.T) {
	cmd := validCreateCommand()
	cmd.ClientRef = "not-a-uuid"
	if err := cmd.Validate(); err == nil {
		t.Fatal("malformed client ref accepted")
	}
}

func TestCreateTransactionCommand_AcceptsClientRefUuid(t *testing.T) {
	cmd := validCreateCommand()
	cmd.ClientRef = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	if err := cmd.Validate(); err != nil {
		t.Fatalf("uuid client ref rejected: %v", err)
	}
}

func TestVoidTransactionCommand_RequiresReason(t *testing.T) {
	cmd := &VoidTransactionCommand{TransactionId: 1}
	if err := cmd.Validate(); err == nil {
		t.Fatal("void without reason accepted")
	}
}

func TestRefundTransactionCommand_RejectsNonPositiveLineQty(t *testing.T) {
	cmd := &RefundTransactionCommand{
		TransactionId: 1,
		Reason:        "damaged",
		Lines:         []RefundTransactionLine{{ItemId: 2, Qty: decimal.Zero}},
	}
	if err := cmd.Validate(); err == nil {
		t.Fatal("zero refund qty accepted")
	}
}

func TestAdjustStockCommand_RejectsZeroDelta(t *testing.T) {
	cmd := &AdjustStockCommand{OutletId: 1, ProductId: 1, Reason: "recount"}
	if err := cmd.Validate(); err == nil {
		t.Fatal("zero delta accepted")
	}
}
