package workflow

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestClassifyDBError_MapsLockConflicts(t *testing.T) {
	for _, number := range []uint16{1205, 1213} {
		err := classifyDBError(fmt.Errorf("commit: %w", &mysqlDriver.MySQLError{Number: number}))
		if !errors.Is(err, ErrConcurrentUpdate) {
			t.Fatalf("number %d: err = %v, want ErrConcurrentUpdate", number, err)
		}
	}
}

func TestClassifyDBError_PassesOthersThrough(t *testing.T) {
	base := errors.New("broken pipe")
	if err := classifyDBError(base); err != base {
		t.Fatalf("err = %v, want passthrough", err)
	}
	if err := classifyDBError(nil); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestClassifySequenceClaimErr_DuplicateKeyIsRetryable(t *testing.T) {
	// Two first-sales-of-the-day racing the counter-row insert: the loser's
	// 1062 must surface as a retryable conflict, not a raw driver error.
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry '1-20260828' for key 'uniq_invoice_seq'"}
	err := classifySequenceClaimErr(fmt.Errorf("claim sequence: %w", dup))
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("err = %v, want ErrConcurrentUpdate", err)
	}

	if err := classifySequenceClaimErr(nil); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	err = classifySequenceClaimErr(&mysqlDriver.MySQLError{Number: 1213})
	if !errors.Is(err, ErrConcurrentUpdate) {
		t.Fatalf("deadlock err = %v, want ErrConcurrentUpdate", err)
	}
}
