package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/berfenger/smlmeter2mqtt/pkg/sml"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, "meter_snapshots", zap.NewNop())
	require.NoError(t, err)
	return store, mock
}

func TestSave(t *testing.T) {
	require := require.New(t)

	store, mock := newMockStore(t)
	capturedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	snapshot := &sml.MeterSnapshot{
		CapturedAt: capturedAt,
		VendorID:   "EMH",
		DeviceID:   "06-45-4D-48-01-02-71-5A-72-7E",
		Obis180:    decimal.NewNullDecimal(decimal.RequireFromString("28069.1772")),
		Obis280:    decimal.NewNullDecimal(decimal.RequireFromString("35352.5595")),
		Obis1570:   decimal.NewNullDecimal(decimal.NewFromInt(3072)),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO meter_snapshots")).
		WithArgs(capturedAt, "EMH", "06-45-4D-48-01-02-71-5A-72-7E",
			"28069.1772", nil, "35352.5595", nil, "3072", "OUT").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(store.Save(context.Background(), snapshot, sml.PowerDirectionOut))
	require.NoError(mock.ExpectationsWereMet())
}

func TestSaveError(t *testing.T) {
	assert := assert.New(t)

	store, mock := newMockStore(t)
	failure := errors.New("connection refused")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO meter_snapshots")).WillReturnError(failure)

	err := store.Save(context.Background(), &sml.MeterSnapshot{}, sml.PowerDirectionUnknown)
	assert.ErrorIs(err, failure)
	assert.NoError(mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	require := require.New(t)

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS meter_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(store.Migrate(context.Background()))
	require.NoError(mock.ExpectationsWereMet())
}

func TestInvalidTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewStore(db, "snapshots;drop", zap.NewNop())
	assert.Error(t, err)
}
