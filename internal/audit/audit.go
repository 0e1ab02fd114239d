package audit

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"troquel/internal/models"
)

// Action constants.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionImport = "IMPORT"
	ActionExport = "EXPORT"
)

// UserHeader names the operator on requests coming through the plant
// gateway. Requests without it are attributed to "system".
const UserHeader = "X-Operator"

// LogAudit writes one audit_log row. Failures are logged, never returned.
func LogAudit(db *sql.DB, r *http.Request, action, module, recordID, summary string) {
	var ip, agent string
	if r != nil {
		ip, agent = GetClientIP(r), r.UserAgent()
	}
	_, err := db.Exec(`INSERT INTO audit_log (username, action, module, record_id, summary, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		GetUsername(r), action, module, recordID, summary, ip, agent)
	if err != nil {
		log.Printf("audit log error: %v", err)
	}
}

// GetUsername returns the operator named on r.
func GetUsername(r *http.Request) string {
	if r == nil {
		return "system"
	}
	if u := strings.TrimSpace(r.Header.Get(UserHeader)); u != "" {
		return u
	}
	return "system"
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// LogDataExport records a report download in data_exports, falling back to
// the audit log when that table is unavailable.
func LogDataExport(db *sql.DB, r *http.Request, module, format string, recordCount int) {
	username := GetUsername(r)
	_, err := db.Exec(`INSERT INTO data_exports (entity_type, format, record_count, username, exported_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`, module, format, recordCount, username)
	if err != nil {
		summary := fmt.Sprintf("Exported %d records from %s as %s", recordCount, module, format)
		LogAudit(db, r, ActionExport, module, "", summary)
	}
}

// ForRecord returns the newest audit entries for one record of module,
// newest first. Record ids compare case-insensitively.
func ForRecord(db *sql.DB, module, recordID string, limit int) ([]models.AuditEntry, error) {
	rows, err := db.Query(`SELECT id, COALESCE(username,''), action, module, record_id, COALESCE(summary,''),
		COALESCE(ip_address,''), COALESCE(user_agent,''), created_at
		FROM audit_log WHERE module=? AND record_id=? COLLATE NOCASE ORDER BY id DESC LIMIT ?`, module, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
