// Package store reads trace records and production orders for the VSM
// pipeline, either from JSON collections on disk or from SQLite.
package store

import (
	"errors"
	"log"

	"troquel/internal/vsm"
)

// Loader reads the full trace and order collections in one pass.
type Loader interface {
	Load() (vsm.Dataset, error)
}

// ErrDuplicateOrder is returned when an order number already exists.
var ErrDuplicateOrder = errors.New("store: order already exists")

// ErrOrderNotFound is returned when updating an unknown order.
var ErrOrderNotFound = errors.New("store: order not found")

// ImportResult reports what an append of raw traces did.
type ImportResult struct {
	Inserted   int      `json:"inserted"`
	Duplicates int      `json:"duplicates"`
	Degraded   int      `json:"degraded"`
	IDs        []string `json:"ids"`
}

// logDegraded writes one summary line for traces that were kept with
// null fields.
func logDegraded(source string, traces []vsm.TraceRecord) {
	n := 0
	for _, t := range traces {
		if len(t.Warnings) > 0 {
			n++
		}
	}
	if n > 0 {
		log.Printf("store: %s: %d of %d trace records degraded", source, n, len(traces))
	}
}
