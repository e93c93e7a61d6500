package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"custodial-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdempotencyLog() *domain.IdempotencyLog {
	return &domain.IdempotencyLog{
		Key:           domain.BuildTransferIdempotencyKey(uuid.New(), "retry-001"),
		TransactionID: uuid.New(),
		ResponseJSON:  []byte(`{"reference":"TXN-0123456789ABCDEF","status":"success"}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestIdempotencyRepo_Create(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewIdempotencyRepo(mock)
	log := newTestIdempotencyLog()

	mock.ExpectExec("INSERT INTO idempotency_logs").
		WithArgs(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), tx, log)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Create_Conflict(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewIdempotencyRepo(mock)
	log := newTestIdempotencyLog()

	mock.ExpectExec("INSERT INTO idempotency_logs").
		WithArgs(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := repo.Create(context.Background(), tx, log)
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
	assert.ErrorContains(t, err, log.Key)
}

func TestIdempotencyRepo_Create_DriverError(t *testing.T) {
	mock, tx := beginTx(t)
	repo := NewIdempotencyRepo(mock)
	log := newTestIdempotencyLog()

	mock.ExpectExec("INSERT INTO idempotency_logs").
		WithArgs(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "55P03"})

	err := repo.Create(context.Background(), tx, log)
	assert.True(t, errors.Is(err, domain.ErrLockTimeout))
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	log := newTestIdempotencyLog()

	mock.ExpectQuery("SELECT key, transaction_id, response_json, created_at").
		WithArgs(log.Key).
		WillReturnRows(pgxmock.NewRows([]string{"key", "transaction_id", "response_json", "created_at"}).
			AddRow(log.Key, log.TransactionID, log.ResponseJSON, log.CreatedAt))

	result, err := repo.Get(context.Background(), log.Key)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, log.TransactionID, result.TransactionID)
	assert.Equal(t, log.ResponseJSON, result.ResponseJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT key, transaction_id, response_json, created_at").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
}
