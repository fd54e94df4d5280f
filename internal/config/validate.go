package config

import (
	"fmt"

	"github.com/bucktownnz/release/internal/ingest"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a merged refiner config for semantic errors. It returns a
// slice of all validation errors found (empty if valid). The project may
// still come from a flag, so it is validated by the CLI after the merge.
func Validate(cfg *FileConfig) []ValidationError {
	var errs []ValidationError
	r := cfg.Refiner

	if r.Temperature < 0 || r.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "refiner.temperature",
			Message: fmt.Sprintf("must be between 0 and 2, got %g", r.Temperature),
		})
	}
	if r.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "refiner.max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", r.MaxTokens),
		})
	}
	if r.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "refiner.concurrency",
			Message: fmt.Sprintf("must be at least 1, got %d", r.Concurrency),
		})
	}
	if r.Squad != "" && r.SquadsFile == "" {
		errs = append(errs, ValidationError{
			Field:   "refiner.squad",
			Message: "requires refiner.squads_file to be set",
		})
	}

	for key := range r.ColumnOverrides {
		if !ingest.KnownColumn(key) {
			errs = append(errs, ValidationError{
				Field:   "refiner.column_overrides",
				Message: fmt.Sprintf("unknown column %q (known: %v)", key, ingest.ColumnNames()),
			})
		}
	}

	return errs
}
