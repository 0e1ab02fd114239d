package vsm

import (
	"errors"
	"fmt"
)

// ErrNoData means there is nothing real to aggregate. Callers fall back to
// the simulator; it is never fatal.
var ErrNoData = errors.New("vsm: no data")

// NoDataError carries the order that was requested and why no data exists.
type NoDataError struct {
	OrderID string
	Reason  string
}

func (e *NoDataError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("vsm: no data: %s", e.Reason)
	}
	return fmt.Sprintf("vsm: no data for order %q: %s", e.OrderID, e.Reason)
}

// Is makes errors.Is(err, ErrNoData) hold for every NoDataError.
func (e *NoDataError) Is(target error) bool {
	return target == ErrNoData
}

const (
	reasonNoOrders      = "no orders recorded"
	reasonNoTraces      = "no trace records"
	reasonOrderNotFound = "order not found"
)
