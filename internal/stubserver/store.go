// ABOUTME: SQLite order store for the stub backend using modernc.org/sqlite
// ABOUTME: Provides order persistence, verification codes, and seed data

package stubserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kunjal/agent-console/internal/mcp"
)

var (
	// ErrOrderNotFound is returned when an order does not exist or belongs
	// to a different user.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidCode is returned when a verification code does not match
	// any code issued for the order.
	ErrInvalidCode = errors.New("invalid verification code")
)

// StoredOrder is an order row with its issued verification codes.
type StoredOrder struct {
	OrderID           string
	UserID            string
	CustomerName      string
	Status            string
	Items             []string
	Total             float64
	Date              time.Time
	VerificationCodes []string
}

// OrderStore persists orders and verification codes in SQLite.
type OrderStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOrderStore opens a SQLite store at the given path. The schema is
// created if it doesn't exist. Parent directories are created if needed.
func NewOrderStore(path string) (*OrderStore, error) {
	logger := slog.Default().With("component", "orderstore")

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &OrderStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("order store initialized", "path", path)
	return s, nil
}

func (s *OrderStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			status TEXT NOT NULL,
			items TEXT NOT NULL,
			total REAL NOT NULL,
			date INTEGER NOT NULL,
			verification_codes TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *OrderStore) Close() error {
	return s.db.Close()
}

// Put inserts or replaces an order.
func (s *OrderStore) Put(o StoredOrder) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling items: %w", err)
	}
	codes, err := json.Marshal(o.VerificationCodes)
	if err != nil {
		return fmt.Errorf("marshaling verification codes: %w", err)
	}
	if o.VerificationCodes == nil {
		codes = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO orders
			(order_id, user_id, customer_name, status, items, total, date, verification_codes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.UserID, o.CustomerName, o.Status, string(items), o.Total,
		o.Date.Unix(), string(codes))
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// Get returns an order scoped to its owning user.
func (s *OrderStore) Get(userID, orderID string) (StoredOrder, error) {
	row := s.db.QueryRow(`
		SELECT order_id, user_id, customer_name, status, items, total, date, verification_codes
		FROM orders WHERE order_id = ? AND user_id = ?`, orderID, userID)
	return scanOrder(row)
}

// GetAny returns an order regardless of owner. Used for resource reads.
func (s *OrderStore) GetAny(orderID string) (StoredOrder, error) {
	row := s.db.QueryRow(`
		SELECT order_id, user_id, customer_name, status, items, total, date, verification_codes
		FROM orders WHERE order_id = ?`, orderID)
	return scanOrder(row)
}

// List returns up to limit orders for a user, newest first, optionally
// filtered by status.
func (s *OrderStore) List(userID, statusFilter string, limit int) ([]StoredOrder, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT order_id, user_id, customer_name, status, items, total, date, verification_codes
		FROM orders WHERE user_id = ?`
	args := []any{userID}
	if statusFilter != "" {
		query += " AND status = ?"
		args = append(args, statusFilter)
	}
	query += " ORDER BY date DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []StoredOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// AddVerificationCode appends a code to the order's issued codes.
func (s *OrderStore) AddVerificationCode(userID, orderID, code string) error {
	o, err := s.Get(userID, orderID)
	if err != nil {
		return err
	}
	o.VerificationCodes = append(o.VerificationCodes, code)
	return s.Put(o)
}

// Cancel marks an order cancelled after redeeming the verification code.
// The code must have been issued for the order and is consumed on success.
func (s *OrderStore) Cancel(userID, orderID, code string) (StoredOrder, error) {
	o, err := s.Get(userID, orderID)
	if err != nil {
		return StoredOrder{}, err
	}

	idx := -1
	for i, c := range o.VerificationCodes {
		if c == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		return StoredOrder{}, ErrInvalidCode
	}

	o.VerificationCodes = append(o.VerificationCodes[:idx], o.VerificationCodes[idx+1:]...)
	o.Status = mcp.StatusCancelled
	if err := s.Put(o); err != nil {
		return StoredOrder{}, err
	}
	s.logger.Info("order cancelled", "order_id", orderID)
	return o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (StoredOrder, error) {
	var o StoredOrder
	var items, codes string
	var date int64
	err := row.Scan(&o.OrderID, &o.UserID, &o.CustomerName, &o.Status,
		&items, &o.Total, &date, &codes)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredOrder{}, ErrOrderNotFound
	}
	if err != nil {
		return StoredOrder{}, fmt.Errorf("scanning order: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return StoredOrder{}, fmt.Errorf("parsing items: %w", err)
	}
	if err := json.Unmarshal([]byte(codes), &o.VerificationCodes); err != nil {
		return StoredOrder{}, fmt.Errorf("parsing verification codes: %w", err)
	}
	o.Date = time.Unix(date, 0).UTC()
	return o, nil
}

// Seed loads the sample orders used by local development. Existing rows
// with the same order ids are replaced.
func (s *OrderStore) Seed() error {
	base := time.Unix(1708000000, 0).UTC()
	day := 24 * time.Hour

	samples := []StoredOrder{
		{OrderID: "ORD-001", UserID: "user-001", CustomerName: "Kunjal Bhavsar", Status: mcp.StatusProcessing, Items: []string{"Laptop"}, Total: 1299.99, Date: base},
		{OrderID: "ORD-002", UserID: "user-001", CustomerName: "Kunjal Bhavsar", Status: mcp.StatusShipped, Items: []string{"Mouse"}, Total: 49.99, Date: base.Add(day)},
		{OrderID: "ORD-003", UserID: "user-001", CustomerName: "Kunjal Bhavsar", Status: mcp.StatusDelivered, Items: []string{"Keyboard"}, Total: 89.99, Date: base.Add(2 * day)},
		{OrderID: "ORD-004", UserID: "user-001", CustomerName: "Kunjal Bhavsar", Status: mcp.StatusProcessing, Items: []string{"Monitor"}, Total: 499.99, Date: base.Add(3 * day)},
		{OrderID: "ORD-005", UserID: "user-002", CustomerName: "Indian Wizard", Status: mcp.StatusProcessing, Items: []string{"Tablet"}, Total: 399.99, Date: base.Add(4 * day)},
		{OrderID: "ORD-006", UserID: "user-002", CustomerName: "Indian Wizard", Status: mcp.StatusShipped, Items: []string{"USB-C Hub"}, Total: 79.99, Date: base.Add(5 * day)},
		{OrderID: "ORD-007", UserID: "user-002", CustomerName: "Indian Wizard", Status: mcp.StatusDelivered, Items: []string{"Headphones"}, Total: 199.99, Date: base.Add(6 * day)},
		{OrderID: "ORD-008", UserID: "user-002", CustomerName: "Indian Wizard", Status: mcp.StatusProcessing, Items: []string{"Webcam"}, Total: 149.99, Date: base.Add(7 * day)},
	}

	for _, o := range samples {
		if err := s.Put(o); err != nil {
			return fmt.Errorf("seeding %s: %w", o.OrderID, err)
		}
	}
	s.logger.Info("seeded sample orders", "count", len(samples))
	return nil
}
