package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"troquel/internal/models"
	"troquel/internal/store"

	_ "modernc.org/sqlite"
)

// SetupTestDB creates a standard in-memory SQLite database for testing
// with foreign keys enabled and the order, trace and audit tables created.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	// Every connection to :memory: is a fresh database.
	testDB.SetMaxOpenConns(1)
	t.Cleanup(func() { testDB.Close() })

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := store.Migrate(testDB); err != nil {
		t.Fatalf("Failed to create store tables: %v", err)
	}
	createTables(t, testDB)
	return testDB
}

func createTables(t *testing.T, db *sql.DB) {
	t.Helper()
	tables := []struct {
		name string
		ddl  string
	}{
		{"audit_log", `CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			module TEXT NOT NULL,
			action TEXT NOT NULL,
			record_id TEXT NOT NULL,
			username TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
		{"data_exports", `CREATE TABLE IF NOT EXISTS data_exports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			format TEXT NOT NULL,
			record_count INTEGER DEFAULT 0,
			username TEXT DEFAULT '',
			exported_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`},
	}
	for _, tbl := range tables {
		if _, err := db.Exec(tbl.ddl); err != nil {
			t.Fatalf("Failed to create %s table: %v", tbl.name, err)
		}
	}
}

// SeedOrder inserts an order and its stage sequence.
func SeedOrder(t *testing.T, db *sql.DB, number string, quantity int, status string, stages ...string) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO production_orders (order_number, quantity, status) VALUES (?, ?, ?)",
		number, quantity, status); err != nil {
		t.Fatalf("Failed to seed order %s: %v", number, err)
	}
	for i, s := range stages {
		if _, err := db.Exec("INSERT INTO order_stages (order_number, position, stage_name) VALUES (?, ?, ?)",
			number, i, s); err != nil {
			t.Fatalf("Failed to seed stage %s: %v", s, err)
		}
	}
}

// JSONRequest creates an HTTP request with a JSON body.
func JSONRequest(method, path string, body interface{}) *http.Request {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// DecodeError decodes an error body written by response.Err.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}
