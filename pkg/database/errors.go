package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or has no domain meaning.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation
	case "23503":
		if strings.Contains(pqErr.Constraint, "product_id") {
			return errors.Conflict("product is referenced by stock movements")
		}
		return errors.BadRequest("referenced record does not exist")

	// Not null violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.InvalidField(col, "must not be empty")

	// lock_not_available, serialization_failure, deadlock_detected
	case "55P03", "40001", "40P01":
		return errors.Busy("product")

	default:
		return nil
	}
}

// mapCheckConstraint maps CHECK constraint names to field-level validation errors.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "current_stock"):
		return errors.InvalidField("current_stock", "must not be negative")
	case strings.Contains(constraint, "min_stock"):
		return errors.InvalidField("min_stock", "must not be negative")
	case strings.Contains(constraint, "threshold"):
		return errors.InvalidField("max_stock", "must be greater than or equal to min_stock")
	case strings.Contains(constraint, "quantity"):
		return errors.InvalidField("quantity", "must be greater than 0")
	case strings.Contains(constraint, "after_stock"):
		return errors.InvalidField("quantity", "would drive stock below zero")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "code"):
		return "a product with this code already exists"
	default:
		return "a record with these values already exists"
	}
}

// Translate returns the mapped AppError for err, or err unchanged
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
