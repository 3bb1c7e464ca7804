package excel

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"student-progress-sync/internal/model"
	"student-progress-sync/pkg/errors"
)

type Validator struct {
	handleRegex *regexp.Regexp
	emailRegex  *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		handleRegex: regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,24}$`),
		emailRegex:  regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	}
}

func (v *Validator) Validate(ctx context.Context, rows []model.RosterRow) error {
	if len(rows) == 0 {
		return errors.ErrSchemaValidation
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		if err := v.ValidateRow(row); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		key := strings.ToLower(row.Handle)
		if first, dup := seen[key]; dup {
			return fmt.Errorf("row %d: %w", i+2, errors.ValidationError{
				Field:   "handle",
				Value:   row.Handle,
				Message: fmt.Sprintf("duplicates row %d", first+2),
			})
		}
		seen[key] = i
	}

	return nil
}

// ValidateRow checks one student record; the API uses it for single adds.
func (v *Validator) ValidateRow(row model.RosterRow) error {
	if len(row.Name) == 0 || len(row.Name) > 255 {
		return errors.ValidationError{
			Field:   "name",
			Value:   row.Name,
			Message: "must be 1-255 characters",
		}
	}

	if !v.emailRegex.MatchString(row.Email) {
		return errors.ValidationError{
			Field:   "email",
			Value:   row.Email,
			Message: "must be a valid email address",
		}
	}

	if !v.handleRegex.MatchString(row.Handle) {
		return errors.ValidationError{
			Field:   "handle",
			Value:   row.Handle,
			Message: "must be 3-24 letters, digits, '_', '.' or '-'",
		}
	}

	if len(row.Phone) > 64 {
		return errors.ValidationError{
			Field:   "phone",
			Value:   row.Phone,
			Message: "must be at most 64 characters",
		}
	}

	return nil
}
