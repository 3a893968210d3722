package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/vidrag/internal/store"
)

// Sentinel errors for database operations.
var (
	// ErrTransactionConflict indicates concurrent writes touched the same records.
	// Callers may retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// HNSW index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound aliases store.ErrNotFound so callers can match either.
	ErrNotFound = store.ErrNotFound
)

// wrapQueryError inspects a SurrealDB error and wraps it with the matching
// sentinel. Unknown errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
		if strings.Contains(msg, "Incorrect vector dimension") || (strings.Contains(msg, "dimension") && strings.Contains(msg, "vector")) {
			return fmt.Errorf("%w: %s", ErrDimensionMismatch, msg)
		}
	}

	return err
}
