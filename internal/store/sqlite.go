package store

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"troquel/internal/vsm"
)

// Schema is the DDL for the trace and order tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS production_orders (
		order_number TEXT PRIMARY KEY COLLATE NOCASE,
		customer TEXT DEFAULT '', product TEXT DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0 CHECK(quantity >= 0),
		status TEXT DEFAULT '', delivery_date TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS order_stages (
		order_number TEXT NOT NULL COLLATE NOCASE,
		position INTEGER NOT NULL,
		stage_name TEXT NOT NULL,
		PRIMARY KEY (order_number, position),
		FOREIGN KEY (order_number) REFERENCES production_orders(order_number) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS trace_records (
		id TEXT PRIMARY KEY,
		order_id TEXT DEFAULT '', stage_name TEXT DEFAULT '',
		recorded_at DATETIME,
		payload TEXT NOT NULL,
		fingerprint TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trace_records_order ON trace_records(order_id)`,
}

// Migrate creates the trace and order tables.
func Migrate(db *sql.DB) error {
	for _, ddl := range Schema {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("store migration: %w", err)
		}
	}
	return nil
}

// SQLStore keeps traces append-only in SQLite alongside the order catalog.
// Trace payloads are stored as received and normalized on every load.
type SQLStore struct {
	DB         *sql.DB
	Normalizer *vsm.Normalizer
}

// Load reads every order and trace.
func (s *SQLStore) Load() (vsm.Dataset, error) {
	orders, err := s.Orders()
	if err != nil {
		return vsm.Dataset{}, err
	}
	traces, err := s.Traces()
	if err != nil {
		return vsm.Dataset{}, err
	}
	return vsm.Dataset{Traces: traces, Orders: orders}, nil
}

// Traces returns the normalized traces in insertion order.
func (s *SQLStore) Traces() ([]vsm.TraceRecord, error) {
	rows, err := s.DB.Query("SELECT id, payload FROM trace_records ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	n := s.normalizer()
	var traces []vsm.TraceRecord
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			log.Printf("store: trace %s: unreadable payload: %v", id, err)
		}
		traces = append(traces, n.Normalize(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logDegraded("trace_records", traces)
	return traces, nil
}

// AppendTraces stores raws in order. A record identical to one already
// stored is counted as a duplicate and skipped.
func (s *SQLStore) AppendTraces(raws []map[string]any) (ImportResult, error) {
	res := ImportResult{IDs: []string{}}
	tx, err := s.DB.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	n := s.normalizer()
	for i, raw := range raws {
		if raw == nil {
			raw = map[string]any{}
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			return res, fmt.Errorf("trace %d: %w", i, err)
		}
		rec := n.Normalize(raw)
		if len(rec.Warnings) > 0 {
			res.Degraded++
		}
		var recordedAt any
		if rec.HasTimestamp() {
			recordedAt = rec.Timestamp.UTC().Format("2006-01-02 15:04:05")
		}
		id := uuid.NewString()
		result, err := tx.Exec(`INSERT OR IGNORE INTO trace_records (id, order_id, stage_name, recorded_at, payload, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, rec.OrderID, rec.StageName, recordedAt, string(payload), Fingerprint(payload))
		if err != nil {
			return res, fmt.Errorf("insert trace %d: %w", i, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			res.Duplicates++
			continue
		}
		res.Inserted++
		res.IDs = append(res.IDs, id)
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

// Fingerprint is the BLAKE2b-256 digest of a canonical trace payload.
// encoding/json sorts map keys, so equal records share a fingerprint.
func Fingerprint(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Orders returns the order catalog with stage sequences, oldest first.
func (s *SQLStore) Orders() ([]vsm.Order, error) {
	rows, err := s.DB.Query(`SELECT order_number, COALESCE(customer,''), COALESCE(product,''), quantity,
		COALESCE(status,''), COALESCE(delivery_date,'') FROM production_orders ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	var orders []vsm.Order
	index := map[string]int{}
	for rows.Next() {
		var o vsm.Order
		if err := rows.Scan(&o.OrderNumber, &o.Customer, &o.Product, &o.Quantity, &o.Status, &o.DeliveryDate); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.StageSequence = []string{}
		index[strings.ToLower(o.OrderNumber)] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stages, err := s.DB.Query("SELECT order_number, stage_name FROM order_stages ORDER BY order_number, position")
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer stages.Close()
	for stages.Next() {
		var num, name string
		if err := stages.Scan(&num, &name); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		if i, ok := index[strings.ToLower(num)]; ok {
			orders[i].StageSequence = append(orders[i].StageSequence, name)
		}
	}
	return orders, stages.Err()
}

// CreateOrder inserts o and its stage sequence.
func (s *SQLStore) CreateOrder(o vsm.Order) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow("SELECT COUNT(*) FROM production_orders WHERE order_number=?", strings.TrimSpace(o.OrderNumber)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateOrder
	}
	_, err = tx.Exec(`INSERT INTO production_orders (order_number, customer, product, quantity, status, delivery_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(o.OrderNumber), o.Customer, o.Product, o.Quantity, o.Status, o.DeliveryDate)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, stage := range o.StageSequence {
		if _, err := tx.Exec("INSERT INTO order_stages (order_number, position, stage_name) VALUES (?, ?, ?)",
			strings.TrimSpace(o.OrderNumber), i, stage); err != nil {
			return fmt.Errorf("insert stage %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// SetStatus updates the status label of an order.
func (s *SQLStore) SetStatus(orderNumber, status string) error {
	res, err := s.DB.Exec("UPDATE production_orders SET status=?, updated_at=CURRENT_TIMESTAMP WHERE order_number=?",
		status, strings.TrimSpace(orderNumber))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Import copies JSON collections into s. Existing orders and duplicate
// traces are skipped, and an order the database refuses is logged without
// stopping the import.
func (s *SQLStore) Import(src *JSONFiles) (orders int, traces ImportResult, err error) {
	list, err := src.Orders()
	if err != nil {
		return 0, traces, err
	}
	for _, o := range list {
		switch err := s.CreateOrder(o); {
		case errors.Is(err, ErrDuplicateOrder):
			continue
		case err != nil:
			log.Printf("store: import order %q skipped: %v", o.OrderNumber, err)
			continue
		}
		orders++
	}
	raws, err := src.RawTraces()
	if err != nil {
		return orders, traces, err
	}
	traces, err = s.AppendTraces(raws)
	return orders, traces, err
}

func (s *SQLStore) normalizer() *vsm.Normalizer {
	if s.Normalizer == nil {
		return vsm.DefaultNormalizer()
	}
	return s.Normalizer
}
