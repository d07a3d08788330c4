// Package ledger is the transaction ledger invoices are reconciled
// against. It is backed by gorm over SQLite or Postgres.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Reconciliation states.
const (
	StateUnpaid = "UNPAID"
	StatePaid   = "PAID"
)

// ErrNotFound indicates no transaction carries the invoice id.
var ErrNotFound = errors.New("transaction not found")

// Transaction is one ledger row.
type Transaction struct {
	TransactionID       string  `gorm:"column:transaction_id;primaryKey;size:191"`
	InvoiceID           string  `gorm:"column:invoice_id;index;size:191;not null"`
	BankName            string  `gorm:"column:bank_name;size:255"`
	Amount              float64 `gorm:"column:amount"`
	RecipientName       string  `gorm:"column:recipient_name;size:255"`
	SenderName          string  `gorm:"column:sender_name;size:255"`
	ReconciliationState string  `gorm:"column:reconciliation_state;size:32;not null;default:UNPAID"`
	EmailDetails        string  `gorm:"column:email_details"`
}

// TableName implements gorm's tabler.
func (Transaction) TableName() string { return "transactions" }

// FormatAmount renders an amount as "$1,234.50".
func FormatAmount(amount float64) string {
	if amount < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -amount)
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// Report renders the six fields reported to agents, one per line.
func (t Transaction) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invoice_id: %s\n", t.InvoiceID)
	fmt.Fprintf(&b, "bank_name: %s\n", t.BankName)
	fmt.Fprintf(&b, "transaction_id: %s\n", t.TransactionID)
	fmt.Fprintf(&b, "amount: %s\n", FormatAmount(t.Amount))
	fmt.Fprintf(&b, "recipient_name: %s\n", t.RecipientName)
	fmt.Fprintf(&b, "sender_name: %s", t.SenderName)
	return b.String()
}

// Store reads and reconciles ledger transactions.
type Store interface {
	// Lookup returns the transaction for invoiceID. ok is false when
	// there is none.
	Lookup(ctx context.Context, invoiceID string) (tx Transaction, ok bool, err error)

	// MarkReconciled sets the invoice's transactions to PAID and attaches
	// details. It returns ErrNotFound when no row matches.
	MarkReconciled(ctx context.Context, invoiceID, details string) error

	// CountUnreconciled counts transactions still UNPAID.
	CountUnreconciled(ctx context.Context) (int64, error)
}

// GormStore is a Store over gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Open connects to the ledger and migrates its schema. driver is "sqlite"
// (the default) or "postgres".
func Open(driver, dsn string) (*GormStore, error) {
	db, err := openGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.AutoMigrate(&Transaction{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Insert adds transactions. Rows without a state start UNPAID.
func (s *GormStore) Insert(ctx context.Context, txs ...Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	for i := range txs {
		if txs[i].ReconciliationState == "" {
			txs[i].ReconciliationState = StateUnpaid
		}
	}
	if err := s.db.WithContext(ctx).Create(&txs).Error; err != nil {
		return fmt.Errorf("insert transactions: %w", err)
	}
	return nil
}

// Lookup implements Store.
func (s *GormStore) Lookup(ctx context.Context, invoiceID string) (Transaction, bool, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return Transaction{}, false, errors.New("invoice id is required")
	}

	var tx Transaction
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("transaction_id").
		Take(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, fmt.Errorf("lookup invoice %s: %w", invoiceID, err)
	}
	return tx, true, nil
}

// MarkReconciled implements Store.
func (s *GormStore) MarkReconciled(ctx context.Context, invoiceID, details string) error {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return errors.New("invoice id is required")
	}

	res := s.db.WithContext(ctx).Model(&Transaction{}).
		Where("invoice_id = ?", invoiceID).
		Updates(map[string]any{
			"reconciliation_state": StatePaid,
			"email_details":        details,
		})
	if res.Error != nil {
		return fmt.Errorf("reconcile invoice %s: %w", invoiceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: invoice %s", ErrNotFound, invoiceID)
	}
	return nil
}

// CountUnreconciled implements Store.
func (s *GormStore) CountUnreconciled(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Transaction{}).
		Where("reconciliation_state = ?", StateUnpaid).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unreconciled: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "transactions.db"
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	path, ok := sqliteFilePath(dsn)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}

// sqliteFilePath extracts the file behind a SQLite DSN. In-memory DSNs
// have none.
func sqliteFilePath(dsn string) (string, bool) {
	lower := strings.ToLower(dsn)
	if lower == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return "", false
	}
	if !strings.HasPrefix(lower, "file:") {
		path, _, _ := strings.Cut(dsn, "?")
		return path, true
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
		return path, true
	}
	if strings.EqualFold(parsed.Query().Get("mode"), "memory") {
		return "", false
	}
	if parsed.Path != "" {
		return parsed.Path, true
	}
	if parsed.Opaque != "" {
		path, _, _ := strings.Cut(parsed.Opaque, "?")
		return path, true
	}
	return "", false
}
