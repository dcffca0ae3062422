package repository

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafflio/platform/internal/domain"
)

// --- Helper Tests ---

type fakeRows struct {
	values []int
	pos    int
	err    error
	closed bool
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.values) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...interface{}) error {
	*(dest[0].(*int)) = f.values[f.pos-1]
	return nil
}

func (f *fakeRows) Err() error { return f.err }
func (f *fakeRows) Close()     { f.closed = true }

func TestCollectNumbers(t *testing.T) {
	t.Run("sorted output", func(t *testing.T) {
		rows := &fakeRows{values: []int{42, 7, 19}}
		numbers, err := collectNumbers(rows)
		require.NoError(t, err)
		assert.Equal(t, []int{7, 19, 42}, numbers)
		assert.True(t, rows.closed)
	})

	t.Run("empty is not nil", func(t *testing.T) {
		numbers, err := collectNumbers(&fakeRows{})
		require.NoError(t, err)
		assert.NotNil(t, numbers)
		assert.Empty(t, numbers)
	})

	t.Run("rows error", func(t *testing.T) {
		_, err := collectNumbers(&fakeRows{values: []int{1}, err: errors.New("conn reset")})
		require.Error(t, err)
	})
}

func TestUniqueIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids := uniqueIDs([]uuid.UUID{a, b, a, a})
	assert.Equal(t, []string{a.String(), b.String()}, ids)
	assert.Empty(t, uniqueIDs(nil))
}

func TestMapPgError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_cbu_key"}, domain.CodeConflict},
		{"foreign key", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, domain.CodeValidation},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "tickets_owner_consistent"}, domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapPgError("insert", tt.err)
			assert.True(t, domain.HasCode(err, tt.wantCode))
		})
	}

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := errors.New("timeout")
		err := mapPgError("insert account", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "insert account")
	})

	t.Run("duplicate names the constraint", func(t *testing.T) {
		err := mapPgError("insert account", &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "accounts_cbu_key"})
		assert.Contains(t, err.Error(), "accounts_cbu_key")
	})
}

func TestSortBySeq(t *testing.T) {
	events := []domain.OutboxDraft{{SeqID: 9}, {SeqID: 2}, {SeqID: 5}}
	sortBySeq(events)
	assert.Equal(t, int64(2), events[0].SeqID)
	assert.Equal(t, int64(5), events[1].SeqID)
	assert.Equal(t, int64(9), events[2].SeqID)
}
