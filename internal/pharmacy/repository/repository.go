// Package repository persists pharmacy state in PostgreSQL. Every method
// runs on the transaction carried by ctx when there is one.
package repository

import (
	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/pkg/database"
)

// mapErr turns constraint violations into AppErrors and passes everything
// else through.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if appErr := database.MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}

// isUUID reports whether id can be compared against a uuid column.
// Anything else would make Postgres reject the whole statement.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
