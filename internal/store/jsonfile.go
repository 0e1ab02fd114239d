package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"troquel/internal/vsm"
)

// JSONFiles reads the trace and order collections kept as JSON documents by
// the capture stations. A missing or empty file is an empty collection.
type JSONFiles struct {
	Dir        string
	TracesFile string
	OrdersFile string
	Normalizer *vsm.Normalizer
}

// Load reads both collections.
func (j *JSONFiles) Load() (vsm.Dataset, error) {
	raws, err := j.RawTraces()
	if err != nil {
		return vsm.Dataset{}, err
	}
	orders, err := j.Orders()
	if err != nil {
		return vsm.Dataset{}, err
	}
	traces := j.normalizer().NormalizeAll(raws)
	logDegraded(j.TracesFile, traces)
	return vsm.Dataset{Traces: traces, Orders: orders}, nil
}

// RawTraces returns the trace documents as decoded, in file order. Elements
// that are not objects are kept as empty records so positions still match
// the file.
func (j *JSONFiles) RawTraces() ([]map[string]any, error) {
	items, err := readCollection(filepath.Join(j.Dir, j.TracesFile))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		var raw map[string]any
		if err := json.Unmarshal(item, &raw); err != nil {
			log.Printf("store: %s: record %d is not an object: %v", j.TracesFile, i, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		out = append(out, raw)
	}
	return out, nil
}

// Orders returns the order documents in file order. Records that cannot be
// read as an order are logged and skipped.
func (j *JSONFiles) Orders() ([]vsm.Order, error) {
	items, err := readCollection(filepath.Join(j.Dir, j.OrdersFile))
	if err != nil {
		return nil, err
	}
	out := make([]vsm.Order, 0, len(items))
	for i, item := range items {
		o, err := decodeOrder(item)
		if err != nil {
			log.Printf("store: %s: skipping order record %d: %v", j.OrdersFile, i, err)
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// orderDoc shadows Order.Quantity so that numeric strings are accepted.
type orderDoc struct {
	vsm.Order
	Quantity any `json:"quantity"`
}

func decodeOrder(item json.RawMessage) (vsm.Order, error) {
	var doc orderDoc
	if err := json.Unmarshal(item, &doc); err != nil {
		return vsm.Order{}, err
	}
	o := doc.Order
	o.Quantity = 0
	if doc.Quantity != nil {
		q := vsm.Resolve(map[string]any{"quantity": doc.Quantity}, []string{"quantity"})
		if q == nil {
			return vsm.Order{}, fmt.Errorf("quantity %v is not a number", doc.Quantity)
		}
		if math.Abs(*q) > math.MaxInt32 {
			return vsm.Order{}, fmt.Errorf("quantity %v out of range", doc.Quantity)
		}
		o.Quantity = int(math.Trunc(*q))
	}
	return o, nil
}

func (j *JSONFiles) normalizer() *vsm.Normalizer {
	if j.Normalizer == nil {
		return vsm.DefaultNormalizer()
	}
	return j.Normalizer
}

// readCollection accepts either a JSON array or a single object, which is
// treated as a one-element collection.
func readCollection(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] != '[' {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}
