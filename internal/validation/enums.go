package validation

import (
	"fmt"
	"strings"
)

// Enum values accepted by the API.
var (
	ValidExportFormats = []string{"csv", "xlsx"}
	ValidFallbacks     = []string{"none", "simulate"}
)

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}
