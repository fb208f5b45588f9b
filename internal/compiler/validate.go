package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/dirsync/internal/model"
)

// Validation error codes (E100-E199)
const (
	ErrProfileNoEntities   = "E101" // at least one entity required
	ErrEntityNameNotNormal = "E102" // entity name carries a Cv/Institution prefix or Clone suffix
	ErrDuplicateField      = "E103" // field listed twice
	ErrProtectedPrefix     = "E104" // protected prefix empty or malformed
	ErrFieldNotSyncable    = "E105" // field can never be synchronized
	ErrSyncFlagProtected   = "E106" // sync flag lives in an excluded namespace
)

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled profile for rules the CUE schema cannot express.
// Returns all errors found (does not fail-fast).
func Validate(p *model.Profile) []ValidationError {
	var errs []ValidationError

	// E101
	if len(p.Entities) == 0 {
		errs = append(errs, ValidationError{
			Field:   "entities",
			Message: "at least one entity is required",
			Code:    ErrProfileNoEntities,
		})
	}

	// E104
	prefix := p.ProtectedPrefix
	if strings.TrimSpace(prefix) == "" || strings.HasSuffix(prefix, ".") || strings.Contains(prefix, " ") {
		errs = append(errs, ValidationError{
			Field:   "protected_prefix",
			Message: fmt.Sprintf("invalid protected prefix %q", prefix),
			Code:    ErrProtectedPrefix,
		})
	}

	errs = append(errs, checkDuplicates("person_sync_fields", p.PersonSyncFields)...)
	errs = append(errs, checkDuplicates("order_sensitive", p.OrderSensitive)...)
	errs = append(errs, checkDuplicates("ignored_fields", p.IgnoredFields)...)

	// E105: an allow-listed person field that is also ignored never syncs
	for i, f := range p.PersonSyncFields {
		if p.IsIgnored(f) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("person_sync_fields[%d]", i),
				Message: fmt.Sprintf("field %q is ignored and can never sync", f),
				Code:    ErrFieldNotSyncable,
			})
		}
	}

	for _, e := range p.Entities {
		path := "entities." + e.Name

		// E102
		if model.Normalize(e.Name) != e.Name {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("entity name must be the institutional type, got %q (use %q)", e.Name, model.Normalize(e.Name)),
				Code:    ErrEntityNameNotNormal,
			})
		}

		// E106: a sync flag that is diffed away cannot be read reliably
		if e.SyncFlag != "" && p.IsFlagField(e.SyncFlag) {
			errs = append(errs, ValidationError{
				Field:   path + ".sync_flag",
				Message: fmt.Sprintf("sync flag %q lives in the protected namespace", e.SyncFlag),
				Code:    ErrSyncFlagProtected,
			})
		}

		errs = append(errs, checkDuplicates(path+".authority_fields", e.AuthorityFields)...)
	}

	return errs
}

// checkDuplicates reports E103 for every repeated entry.
func checkDuplicates(path string, fields []string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if seen[f] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", path, i),
				Message: fmt.Sprintf("duplicate field %q", f),
				Code:    ErrDuplicateField,
			})
		}
		seen[f] = true
	}
	return errs
}
