package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/visitorlabs/profiler/internal/profile"
)

func TestMemoryGetUnknownVisitor(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	_, err := s.Get(context.Background(), "visitor-1")
	require.ErrorIs(t, err, profile.ErrNotFound)
}

func TestMemoryUpsertSitePreservesSiblings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "a.test", Summary: "one"}))
	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "b.test", Summary: "two"}))
	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "a.test", Summary: "updated"}))

	doc, err := s.Get(ctx, "visitor-1")
	require.NoError(t, err)
	require.Equal(t, "visitor-1", doc.VisitorID)
	require.Len(t, doc.Sites, 2)
	require.Equal(t, "updated", doc.Sites[0].Summary)
	require.Equal(t, "two", doc.Sites[1].Summary)
}

func TestMemoryUpsertCategoriesRequiresExistingSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	categories := []profile.Category{{Category: "Genres", Labels: []string{"Action"}}}

	err := s.UpsertCategories(ctx, "visitor-1", "a.test", categories)
	require.ErrorIs(t, err, profile.ErrSiteNotFound)

	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "a.test"}))
	err = s.UpsertCategories(ctx, "visitor-1", "b.test", categories)
	require.ErrorIs(t, err, profile.ErrSiteNotFound)

	require.NoError(t, s.UpsertCategories(ctx, "visitor-1", "a.test", categories))
	entry, err := s.GetSite(ctx, "visitor-1", "a.test")
	require.NoError(t, err)
	require.Equal(t, categories, entry.Categories)
}

func TestMemoryVisitorsAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "a.test"}))

	_, err := s.GetSite(ctx, "visitor-2", "a.test")
	require.ErrorIs(t, err, profile.ErrNotFound)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.UpsertSite(ctx, "visitor-1", profile.SiteEntry{Address: "a.test", Summary: "original"}))

	doc, err := s.Get(ctx, "visitor-1")
	require.NoError(t, err)
	doc.Sites[0].Summary = "mutated"

	fresh, err := s.Get(ctx, "visitor-1")
	require.NoError(t, err)
	require.Equal(t, "original", fresh.Sites[0].Summary)
}

func TestMemoryGetCopiesNestedSlices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	entry := profile.SiteEntry{
		Address: "a.test",
		Questions: profile.QuestionSet{
			{Question: "Which genres do you enjoy?", Options: []string{"Action", "Drama"}},
		},
		Categories: []profile.Category{
			{Category: "Genres", Labels: []string{"Action"}},
		},
	}
	require.NoError(t, s.UpsertSite(ctx, "visitor-1", entry))

	doc, err := s.Get(ctx, "visitor-1")
	require.NoError(t, err)
	doc.Sites[0].Questions[0].Options[0] = "mutated"
	doc.Sites[0].Categories[0].Labels[0] = "mutated"

	// The caller's upserted entry must not alias the document either.
	entry.Questions[0].Question = "mutated"
	entry.Categories[0].Category = "mutated"

	fresh, err := s.GetSite(ctx, "visitor-1", "a.test")
	require.NoError(t, err)
	require.Equal(t, "Action", fresh.Questions[0].Options[0])
	require.Equal(t, "Which genres do you enjoy?", fresh.Questions[0].Question)
	require.Equal(t, "Action", fresh.Categories[0].Labels[0])
	require.Equal(t, "Genres", fresh.Categories[0].Category)
}
