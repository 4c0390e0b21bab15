package repository

import (
	"errors"
	"fmt"

	"github.com/arkana-app/access-api/internal/storeguard"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres reports serialization failures and deadlocks with these
// SQLSTATEs; both clear on retry.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// classify marks transient postgres conflicts as retryable so the store
// guard re-runs the transaction instead of surfacing an outage. All other
// errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected:
			return fmt.Errorf("%w: %v", storeguard.ErrRetryable, err)
		}
	}

	return err
}
