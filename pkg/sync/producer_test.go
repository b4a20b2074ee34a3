package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/moss/pkg/models"
)

func TestProducerCollect(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	retryCfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}

	t.Run("identical timestamps across batch boundaries collect each id once", func(t *testing.T) {
		// Five rows share one modified value, so every batch boundary over
		// them lands inside a tie and only the id tie-break advances the
		// cursor.
		repo := &fakeFilmWorks{rows: []models.ChangedRow{
			{ID: "film-1", Modified: base},
			{ID: "film-2", Modified: base},
			{ID: "film-3", Modified: base},
			{ID: "film-4", Modified: base},
			{ID: "film-5", Modified: base},
			{ID: "film-6", Modified: base.Add(time.Minute)},
		}}

		producer := NewProducer(repo, 2, retryCfg, getTestLogger())
		result, err := producer.Collect(ctx, time.Time{}, 1)
		require.NoError(t, err)

		assert.Equal(t, []string{"film-1", "film-2", "film-3", "film-4", "film-5", "film-6"}, result.FilmIDs)
		assert.True(t, result.MaxModified.Equal(base.Add(time.Minute)))
		assert.True(t, result.HasResults)
		assert.Equal(t, 4, repo.calls, "six rows at batch size two take three full batches and one empty one")
	})

	t.Run("rows at the checkpoint instant are excluded", func(t *testing.T) {
		repo := &fakeFilmWorks{rows: []models.ChangedRow{
			{ID: "film-old", Modified: base},
			{ID: "film-new", Modified: base.Add(time.Second)},
		}}

		producer := NewProducer(repo, 2, retryCfg, getTestLogger())
		result, err := producer.Collect(ctx, base, 1)
		require.NoError(t, err)

		assert.Equal(t, []string{"film-new"}, result.FilmIDs)
	})

	t.Run("empty source yields no results", func(t *testing.T) {
		producer := NewProducer(&fakeFilmWorks{}, 2, retryCfg, getTestLogger())
		result, err := producer.Collect(ctx, time.Time{}, 1)
		require.NoError(t, err)

		assert.Empty(t, result.FilmIDs)
		assert.False(t, result.HasResults)
		assert.True(t, result.MaxModified.IsZero())
	})
}

func TestEnricherCollect(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	retryCfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}

	t.Run("tied link rows dedupe films across single-row batches", func(t *testing.T) {
		// Batch size one over four tied rows forces a cursor step at every
		// row; two rows point at the same film and must fold into one id.
		source := &fakeLinks{rows: []models.LinkRow{
			{ID: "link-1", FilmWorkID: "film-1", Modified: base},
			{ID: "link-2", FilmWorkID: "film-2", Modified: base},
			{ID: "link-3", FilmWorkID: "film-1", Modified: base},
			{ID: "link-4", FilmWorkID: "film-3", Modified: base},
		}}

		enricher := NewEnricher("genre links", source, 1, retryCfg, getTestLogger())
		result, err := enricher.Collect(ctx, time.Time{}, 1)
		require.NoError(t, err)

		assert.Equal(t, []string{"film-1", "film-2", "film-3"}, result.FilmIDs)
		assert.True(t, result.MaxModified.Equal(base))
		assert.Equal(t, 5, source.calls)
	})

	t.Run("collect all fetches the backlog in one unlimited pass", func(t *testing.T) {
		source := &fakeLinks{rows: []models.LinkRow{
			{ID: "link-1", FilmWorkID: "film-1", Modified: base},
			{ID: "link-2", FilmWorkID: "film-2", Modified: base},
			{ID: "link-3", FilmWorkID: "film-3", Modified: base.Add(time.Minute)},
		}}

		enricher := NewEnricher("person links", source, 1, retryCfg, getTestLogger())
		result, err := enricher.CollectAll(ctx, time.Time{}, 1)
		require.NoError(t, err)

		assert.Equal(t, []string{"film-1", "film-2", "film-3"}, result.FilmIDs)
		assert.True(t, result.MaxModified.Equal(base.Add(time.Minute)))
		assert.Equal(t, 1, source.calls, "the unlimited pass must not page")
	})
}
