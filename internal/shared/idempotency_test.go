package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "idempotency_keys_pkey"}
	require.True(t, isUniqueViolation(dup))

	// Pool and tx helpers wrap driver errors before they surface.
	require.True(t, isUniqueViolation(fmt.Errorf("exec insert: %w", dup)))

	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, isUniqueViolation(errors.New("connection refused")))
	require.False(t, isUniqueViolation(nil))
}
