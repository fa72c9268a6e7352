package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error or has no dedicated mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// check_violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// unique_violation
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// foreign_key_violation
	case "23503":
		return errors.InvalidInput("referenced record does not exist")

	// not_null_violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// invalid_text_representation, e.g. a malformed uuid
	case "22P02":
		return errors.InvalidInput("malformed value")

	// serialization_failure, deadlock_detected
	case "40001", "40P01":
		return errors.Conflict("concurrent update, retry the request")

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lots_quantities"):
		return errors.InvalidInput("lot quantities must satisfy 0 <= reserved <= current <= initial")

	case strings.Contains(constraint, "order_lines_delivered"):
		return errors.InvalidInput("delivered quantity must stay between 0 and the requested quantity")

	case strings.Contains(constraint, "movements_quantity"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	default:
		return errors.InvalidInput("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lots_product_lot_number"):
		return "a lot with this number already exists for the product"
	case strings.Contains(constraint, "movements_number"):
		return "a movement with this number already exists"
	case strings.Contains(constraint, "orders_number"):
		return "an order with this number already exists"
	default:
		return "a record with these values already exists"
	}
}
