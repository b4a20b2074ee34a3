package sync

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/repositories/filmdetails"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/retry"
)

// Merger hydrates the flat changed-id sets back into fully joined row sets
// ready for denormalization.
type Merger struct {
	repo     filmdetails.FilmDetailsRepository
	retryCfg RetryConfig
	logger   ectologger.Logger
}

// NewMerger creates a new Merger
func NewMerger(repo filmdetails.FilmDetailsRepository, retryCfg RetryConfig, logger ectologger.Logger) *Merger {
	return &Merger{
		repo:     repo,
		retryCfg: retryCfg.withDefaults(),
		logger:   logger,
	}
}

// FilmRows fetches the joined film/genre/person rows for the given film ids
// and the maximum modified value among them.
func (m *Merger) FilmRows(ctx context.Context, filmIDs []string) ([]models.FilmDetailsRow, time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Merger.FilmRows")
	defer span.End()

	rows, err := retry.Do(ctx, m.logger, "merge film rows", m.retryCfg.MaxAttempts, m.retryCfg.BaseDelay, func() ([]models.FilmDetailsRow, error) {
		return m.repo.FilmRows(ctx, filmIDs)
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	var maxModified time.Time
	for _, row := range rows {
		if row.Modified.After(maxModified) {
			maxModified = row.Modified
		}
	}

	return rows, maxModified, nil
}

// PersonRows fetches the person/film rows for every person participating in
// the given films, with each person's complete film list.
func (m *Merger) PersonRows(ctx context.Context, filmIDs []string) ([]models.PersonFilmRow, time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Merger.PersonRows")
	defer span.End()

	rows, err := retry.Do(ctx, m.logger, "merge person rows", m.retryCfg.MaxAttempts, m.retryCfg.BaseDelay, func() ([]models.PersonFilmRow, error) {
		return m.repo.PersonRows(ctx, filmIDs)
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	var maxModified time.Time
	for _, row := range rows {
		if row.Modified.After(maxModified) {
			maxModified = row.Modified
		}
	}

	return rows, maxModified, nil
}
