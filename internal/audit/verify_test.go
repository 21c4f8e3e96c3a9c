package audit

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var claimColumns = []string{
	"id", "transaction_id", "action_type", "table_name", "row_id", "changes",
	"device_id", "app_id", "user_id", "ip_address", "hash", "created_at",
}

func claimRow(e Entry) []driver.Value {
	return []driver.Value{
		e.ID, e.TransactionID, string(e.Action), e.TableName, e.RowID, e.Changes,
		e.DeviceID, e.AppID, e.UserID, e.IPAddress, e.Hash, e.CreatedAt,
	}
}

func TestVerifierRunMarksRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	intact := sampleEntry()
	intact.Hash = ComputeHash(intact)

	tampered := sampleEntry()
	tampered.ID = "01J9ZX3TAMPERED00000000000"
	tampered.Hash = ComputeHash(tampered)
	tampered.Changes = `{"surname":{"old":"Doe","new":"Mallory"}}` // altered after stamping

	rows := sqlmock.NewRows(claimColumns).
		AddRow(claimRow(intact)...).
		AddRow(claimRow(tampered)...)

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from\s+audit_logs\s+where hash_verified is null`).
		WithArgs(100).
		WillReturnRows(rows)
	mock.ExpectExec(`update audit_logs set hash_verified`).
		WithArgs(intact.ID, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`update audit_logs set hash_verified`).
		WithArgs(tampered.ID, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := NewVerifier(db, 100).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Verified != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVerifierRunEmptyBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select (.+) from\s+audit_logs`).
		WithArgs(10000).
		WillReturnRows(sqlmock.NewRows(claimColumns))
	mock.ExpectCommit()

	report, err := NewVerifier(db, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Verified != 0 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreInsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	first := sampleEntry()
	first.Hash = ComputeHash(first)
	second := sampleEntry()
	second.ID = "01J9ZX3TESTENTRY0000000001"
	second.RowID = "p2"
	second.IPAddress = ""
	second.Hash = ComputeHash(second)

	mock.ExpectExec(`insert into audit_logs\(`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := NewPGStore(db)
	if err := store.Insert(context.Background(), []Entry{first, second}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

