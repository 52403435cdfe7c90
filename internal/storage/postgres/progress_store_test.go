package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/lewandolfski/driving-school-scraper/internal/store"
)

func TestProgressExists(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://rijlessen.nl/rijscholen/meppel").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := st.Exists(context.Background(), "https://rijlessen.nl/rijscholen/meppel")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressUpsertWritesCompletionMark(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := store.ProgressRecord{
		UnitURL:      "https://rijlessen.nl/rijscholen/meppel",
		UnitIndex:    3,
		TotalUnits:   120,
		SchoolsFound: 7,
		CompletedAt:  now,
	}

	mock.ExpectExec("INSERT INTO scrape_progress").
		WithArgs(rec.UnitURL, rec.UnitIndex, rec.TotalUnits, rec.SchoolsFound, rec.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCompletedReturnsUnitURLs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT city_url FROM scrape_progress").
		WillReturnRows(pgxmock.NewRows([]string{"city_url"}).
			AddRow("https://rijlessen.nl/rijscholen/amsterdam").
			AddRow("https://rijlessen.nl/rijscholen/meppel"))

	urls, err := st.ListCompleted(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://rijlessen.nl/rijscholen/amsterdam",
		"https://rijlessen.nl/rijscholen/meppel",
	}, urls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressInitCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scrape_progress").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
