package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fuelwatch-backend/internal/model"
)

// newMockStore creates a store over a sqlmock connection.
func newMockStore(t *testing.T, opts Options) (Store, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewGormStore(gormDB, opts), mock
}

func TestInsertPricesBatch_RetryAccounting(t *testing.T) {
	s, mock := newMockStore(t, Options{
		PriceChunkSize: 1,
		WriteRetries:   3,
		RetryBackoff:   time.Millisecond,
	})

	// First chunk fails all three attempts; second chunk succeeds.
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "price_observations"`)).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "price_observations"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	now := time.Now().UTC()
	result := s.InsertPricesBatch(context.Background(), []model.PriceObservation{
		{StationID: 1, FuelType: model.FuelE10, PricePence: 139, RecordedAt: now},
		{StationID: 2, FuelType: model.FuelE10, PricePence: 141, RecordedAt: now},
	})

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Errored, "a chunk that exhausts retries is counted, not fatal")
	assert.Equal(t, []int{0}, result.Failed, "the lost record is identified by its input index")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStationIDs_ChunkedQueries(t *testing.T) {
	s, mock := newMockStore(t, Options{LookupChunkSize: 2})

	// Five ids with a chunk size of two means exactly three SELECTs.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id","external_id" FROM "stations"`)).
		WithArgs("GB-001", "GB-002").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id"}).
			AddRow(1, "GB-001").AddRow(2, "GB-002"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id","external_id" FROM "stations"`)).
		WithArgs("GB-003", "GB-004").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id"}).
			AddRow(3, "GB-003"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id","external_id" FROM "stations"`)).
		WithArgs("GB-005").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id"}))

	resolved, err := s.ResolveStationIDs(context.Background(),
		[]string{"GB-001", "GB-002", "GB-003", "GB-004", "GB-005"})
	require.NoError(t, err)

	assert.Len(t, resolved, 3)
	assert.Equal(t, uint64(2), resolved["GB-002"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
