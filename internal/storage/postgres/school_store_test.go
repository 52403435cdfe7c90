package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

func TestUpsertSchoolInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewSchoolStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rating := 4.8
	reviews := 120
	rec := school.School{
		Name:        "Rijschool Jansen",
		Address:     "Hoofdstraat 12 Meppel",
		URL:         "https://rijlessen.nl/rijscholen/meppel/rijschool-jansen",
		Phone:       "+31 6 12 34 56 78",
		Email:       "info@jansen.nl",
		Rating:      &rating,
		ReviewCount: &reviews,
		Courses: []school.CourseFact{
			{Type: "success_rate", Value: 92, Description: "92% slagingspercentage"},
		},
		Source:    "https://rijlessen.nl",
		ScrapedAt: now,
	}

	mock.ExpectExec("INSERT INTO driving_schools").
		WithArgs(
			rec.Name,
			rec.Address,
			rec.URL,
			rec.Phone,
			rec.Email,
			rec.Website,
			rec.Rating,
			rec.ReviewCount,
			rec.SuccessRate,
			rec.PriceRange,
			[]byte(`[{"type":"success_rate","value":92,"description":"92% slagingspercentage"}]`),
			rec.Source,
			rec.ScrapedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.Upsert(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSchoolRequiresName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewSchoolStoreWithPool(mock)
	require.NoError(t, err)

	err = st.Upsert(context.Background(), school.School{Address: "Meppel"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAllScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewSchoolStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rating := 4.8
	reviews := 120

	columns := []string{
		"name", "address", "url", "phone", "email", "website", "rating",
		"review_count", "success_rate", "price_range", "courses", "source", "scraped_at",
	}
	mock.ExpectQuery("SELECT name, address").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(
				"Rijschool Jansen", "Meppel", "https://rijlessen.nl/rijscholen/meppel/rijschool-jansen",
				"+31 6 12 34 56 78", "info@jansen.nl", "", &rating, &reviews, (*int)(nil), "",
				[]byte(`[{"type":"success_rate","value":92,"description":"92% slagingspercentage"}]`),
				"https://rijlessen.nl", now,
			).
			AddRow(
				"Verkeersschool Visser", "Utrecht", "", "", "", "",
				(*float64)(nil), (*int)(nil), (*int)(nil), "", []byte(nil), "", now,
			))

	schools, err := st.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, schools, 2)

	first := schools[0]
	require.Equal(t, "Rijschool Jansen", first.Name)
	require.NotNil(t, first.Rating)
	require.InDelta(t, 4.8, *first.Rating, 0.001)
	require.NotNil(t, first.ReviewCount)
	require.Equal(t, 120, *first.ReviewCount)
	require.Len(t, first.Courses, 1)
	require.Equal(t, 92, first.Courses[0].Value)

	second := schools[1]
	require.Equal(t, "Verkeersschool Visser", second.Name)
	require.Nil(t, second.Rating)
	require.Empty(t, second.Courses)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSchoolStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewSchoolStoreWithPool(nil)
	require.Error(t, err)
}
