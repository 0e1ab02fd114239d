package validation

import (
	"fmt"
	"strings"
	"time"

	"troquel/internal/vsm"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := time.Parse("2006-01-02", value)
	if err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidateNonNegativeInt checks a field is >= 0.
func ValidateNonNegativeInt(ve *ValidationErrors, field string, value int) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateNonNegativeFloat checks a field is >= 0.
func ValidateNonNegativeFloat(ve *ValidationErrors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// ValidateMaxLength checks a string does not exceed max characters.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// Limits on order input.
const (
	MaxQuantity     = 10000000
	MaxStages       = 50
	MaxStringLength = 255
)

// ValidateOrder checks an order before it is stored.
func ValidateOrder(o vsm.Order) *ValidationErrors {
	ve := &ValidationErrors{}
	RequireField(ve, "order_number", o.OrderNumber)
	ValidateMaxLength(ve, "order_number", o.OrderNumber, MaxStringLength)
	ValidateMaxLength(ve, "customer", o.Customer, MaxStringLength)
	ValidateMaxLength(ve, "product", o.Product, MaxStringLength)
	ValidateNonNegativeInt(ve, "quantity", o.Quantity)
	if o.Quantity > MaxQuantity {
		ve.Add("quantity", fmt.Sprintf("exceeds maximum of %d", MaxQuantity))
	}
	ValidateDate(ve, "delivery_date", o.DeliveryDate)
	if len(o.StageSequence) > MaxStages {
		ve.Add("stage_sequence", fmt.Sprintf("at most %d stages", MaxStages))
	}
	// Repeated stages are accepted; each occurrence gets its own row.
	for i, s := range o.StageSequence {
		if strings.TrimSpace(s) == "" {
			ve.Add(fmt.Sprintf("stage_sequence[%d]", i), "is required")
		}
	}
	return ve
}

// ValidateStageTable checks an externally supplied stage table.
func ValidateStageTable(rows []vsm.StageAggregate) *ValidationErrors {
	ve := &ValidationErrors{}
	if len(rows) == 0 {
		ve.Add("stages", "is required")
	}
	for i, r := range rows {
		prefix := fmt.Sprintf("stages[%d].", i)
		RequireField(ve, prefix+"stage_name", r.StageName)
		ValidateNonNegativeFloat(ve, prefix+"cycle_time", r.CycleTime)
		ValidateNonNegativeFloat(ve, prefix+"idle_time", r.IdleTime)
		ValidateNonNegativeFloat(ve, prefix+"setup_time", r.SetupTime)
		ValidateNonNegativeFloat(ve, prefix+"total_time", r.TotalTime)
		ValidateNonNegativeInt(ve, prefix+"error_count", r.ErrorCount)
		ValidateNonNegativeInt(ve, prefix+"reject_count", r.RejectCount)
	}
	return ve
}
