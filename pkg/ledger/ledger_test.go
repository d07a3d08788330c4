package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "nested", "transactions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *GormStore) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(),
		Transaction{TransactionID: "TX-1", InvoiceID: "INV-100", BankName: "DBS", Amount: 1234.5, RecipientName: "Acme", SenderName: "Globex"},
		Transaction{TransactionID: "TX-2", InvoiceID: "INV-200", BankName: "OCBC", Amount: 99, RecipientName: "Acme", SenderName: "Initech"},
	))
}

func TestGormStore_Lookup(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)
	ctx := context.Background()

	tx, ok, err := store.Lookup(ctx, "INV-100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "TX-1", tx.TransactionID)
	assert.Equal(t, StateUnpaid, tx.ReconciliationState)

	_, ok, err = store.Lookup(ctx, "INV-404")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Lookup(ctx, "  ")
	assert.Error(t, err)
}

func TestGormStore_MarkReconciled(t *testing.T) {
	store := openTestStore(t)
	seed(t, store)
	ctx := context.Background()

	n, err := store.CountUnreconciled(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, store.MarkReconciled(ctx, "INV-100", "Email from Globex, $1,234.50"))

	tx, _, err := store.Lookup(ctx, "INV-100")
	require.NoError(t, err)
	assert.Equal(t, StatePaid, tx.ReconciliationState)
	assert.Equal(t, "Email from Globex, $1,234.50", tx.EmailDetails)

	n, err = store.CountUnreconciled(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, store.MarkReconciled(ctx, "INV-404", "x"), ErrNotFound)
}

func TestTransaction_Report(t *testing.T) {
	tx := Transaction{TransactionID: "TX-1", InvoiceID: "INV-100", BankName: "DBS", Amount: 1234.5, RecipientName: "Acme", SenderName: "Globex"}
	assert.Equal(t,
		"invoice_id: INV-100\nbank_name: DBS\ntransaction_id: TX-1\namount: $1,234.50\nrecipient_name: Acme\nsender_name: Globex",
		tx.Report())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$0.00", FormatAmount(0))
	assert.Equal(t, "$1,000,000.10", FormatAmount(1000000.1))
	assert.Equal(t, "-$5.25", FormatAmount(-5.25))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.ErrorContains(t, err, "unsupported driver")

	_, err = Open("postgres", "")
	assert.ErrorContains(t, err, "dsn is required")
}

func TestSQLiteFilePath(t *testing.T) {
	tests := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"data/tx.db", "data/tx.db", true},
		{"data/tx.db?_pragma=busy_timeout(5000)", "data/tx.db", true},
		{"file:data/tx.db?mode=memory", "", false},
		{"file:/tmp/tx.db", "/tmp/tx.db", true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			path, ok := sqliteFilePath(tt.dsn)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, path)
		})
	}
}
