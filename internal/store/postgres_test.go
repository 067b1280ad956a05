package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/visitorlabs/profiler/internal/metrics"
	"github.com/visitorlabs/profiler/internal/profile"
)

func mustDocJSON(t *testing.T, doc profile.VisitorProfile) []byte {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func TestPostgresUpsertSiteInsertsOnFirstVisit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO visitors").
		WithArgs("visitor-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.UpsertSite(context.Background(), "visitor-1", profile.SiteEntry{Address: "example.com"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertSiteUpdatesWithVersionGuard(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	existing := profile.VisitorProfile{
		VisitorID: "visitor-1",
		Sites:     []profile.SiteEntry{{Address: "old.test", Summary: "kept"}},
	}
	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "version"}).
			AddRow(mustDocJSON(t, existing), int64(4)))
	mock.ExpectExec("UPDATE visitors").
		WithArgs("visitor-1", pgxmock.AnyArg(), int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.UpsertSite(context.Background(), "visitor-1", profile.SiteEntry{Address: "new.test"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertSiteRetriesLostInsertRace(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	// First attempt: row is missing, but the insert loses to a concurrent
	// writer. Second attempt: the row now exists and the update succeeds.
	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO visitors").
		WithArgs("visitor-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "version"}).
			AddRow(mustDocJSON(t, profile.VisitorProfile{VisitorID: "visitor-1"}), int64(1)))
	mock.ExpectExec("UPDATE visitors").
		WithArgs("visitor-1", pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.UpsertSite(context.Background(), "visitor-1", profile.SiteEntry{Address: "example.com"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertSiteGivesUpAfterConflicts(t *testing.T) {
	t.Parallel()
	metrics.Init()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	doc := mustDocJSON(t, profile.VisitorProfile{VisitorID: "visitor-1"})
	for i := 0; i < casRetries; i++ {
		mock.ExpectQuery("SELECT doc, version FROM visitors").
			WithArgs("visitor-1").
			WillReturnRows(pgxmock.NewRows([]string{"doc", "version"}).
				AddRow(doc, int64(i+1)))
		mock.ExpectExec("UPDATE visitors").
			WithArgs("visitor-1", pgxmock.AnyArg(), int64(i+1)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	}

	err = s.UpsertSite(context.Background(), "visitor-1", profile.SiteEntry{Address: "example.com"})
	require.ErrorIs(t, err, profile.ErrWriteConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertCategoriesMissingVisitor(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnError(pgx.ErrNoRows)

	err = s.UpsertCategories(context.Background(), "visitor-1", "example.com", nil)
	require.ErrorIs(t, err, profile.ErrSiteNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSite(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	existing := profile.VisitorProfile{
		VisitorID: "visitor-1",
		Sites: []profile.SiteEntry{{
			Address: "example.com",
			Summary: "A movie blog.",
		}},
	}
	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("visitor-1").
		WillReturnRows(pgxmock.NewRows([]string{"doc", "version"}).
			AddRow(mustDocJSON(t, existing), int64(1)))

	entry, err := s.GetSite(context.Background(), "visitor-1", "example.com")
	require.NoError(t, err)
	require.Equal(t, "A movie blog.", entry.Summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT doc, version FROM visitors").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, profile.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
