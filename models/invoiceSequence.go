package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvoiceSequence holds one counter per (outlet, calendar day). NextSeq is the
// number the next invoice will take; the row is locked for the duration of the
// caller's DB transaction so two sales can never print the same number.
type InvoiceSequence struct {
	ID        int       `gorm:"primary_key" json:"id"`
	OutletId  int       `gorm:"not null;index:uniq_invoice_seq,unique" json:"outlet_id"`
	SeqDate   string    `gorm:"size:8;not null;index:uniq_invoice_seq,unique" json:"seq_date"` // YYYYMMDD
	NextSeq   int       `gorm:"not null;default:1" json:"next_seq"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NextInvoiceNumber claims the next number for the outlet's day inside the
// caller's DB transaction and returns it formatted as
// {outletCode}-{YYYYMMDD}-{sequence}. If the transaction rolls back the claim
// rolls back with it, so gaps only appear on commit failures elsewhere.
func NextInvoiceNumber(tx *gorm.DB, outletId int, outletCode string, at time.Time) (string, error) {
	seqDate := at.Format("20060102")

	var seq InvoiceSequence
	if err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(InvoiceSequence{OutletId: outletId, SeqDate: seqDate}).
		Attrs(InvoiceSequence{NextSeq: 1}).
		FirstOrCreate(&seq).Error; err != nil {
		return "", err
	}

	if err := tx.Exec(
		"UPDATE invoice_sequences SET next_seq = next_seq + 1 WHERE id = ?",
		seq.ID,
	).Error; err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%04d", outletCode, seqDate, seq.NextSeq), nil
}
