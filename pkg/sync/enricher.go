package sync

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/retry"
)

// LinkSource yields link rows whose effective modification time follows the
// cursor. A non-positive limit means no limit.
type LinkSource interface {
	ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error)
}

// EnrichResult carries the film ids touched through a dependency edge.
type EnrichResult struct {
	FilmIDs     []string
	MaxModified time.Time
	HasResults  bool
}

// Enricher walks a join table and maps dependency changes back onto the
// films they affect, so edits to genres and persons ripple into the film
// index.
type Enricher struct {
	name      string
	source    LinkSource
	batchSize int
	retryCfg  RetryConfig
	logger    ectologger.Logger
}

// NewEnricher creates a new Enricher
func NewEnricher(name string, source LinkSource, batchSize int, retryCfg RetryConfig, logger ectologger.Logger) *Enricher {
	return &Enricher{
		name:      name,
		source:    source,
		batchSize: batchSize,
		retryCfg:  retryCfg.withDefaults(),
		logger:    logger,
	}
}

// Collect drains the link backlog in batches and returns the deduplicated
// film id set.
func (e *Enricher) Collect(ctx context.Context, modifiedAfter time.Time, runNumber int) (*EnrichResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Enricher.Collect")
	defer span.End()

	result := &EnrichResult{}
	seen := map[string]bool{}
	cursor := models.Cursor{Modified: modifiedAfter}

	for {
		rows, err := e.fetch(ctx, cursor, e.batchSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		e.fold(result, seen, rows)

		last := rows[len(rows)-1]
		cursor = models.Cursor{Modified: last.Modified, ID: last.ID}

		if len(rows) < e.batchSize {
			break
		}
	}

	e.finish(ctx, result, runNumber, modifiedAfter)
	return result, nil
}

// CollectAll fetches the whole backlog in one pass. The person index
// rebuilds full documents, so a partial film list is never acceptable.
func (e *Enricher) CollectAll(ctx context.Context, modifiedAfter time.Time, runNumber int) (*EnrichResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Enricher.CollectAll")
	defer span.End()

	result := &EnrichResult{}
	seen := map[string]bool{}

	rows, err := e.fetch(ctx, models.Cursor{Modified: modifiedAfter}, 0)
	if err != nil {
		return nil, err
	}
	e.fold(result, seen, rows)

	e.finish(ctx, result, runNumber, modifiedAfter)
	return result, nil
}

func (e *Enricher) fetch(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error) {
	return retry.Do(ctx, e.logger, e.name+" batch", e.retryCfg.MaxAttempts, e.retryCfg.BaseDelay, func() ([]models.LinkRow, error) {
		return e.source.ChangedSince(ctx, cursor, limit)
	})
}

func (e *Enricher) fold(result *EnrichResult, seen map[string]bool, rows []models.LinkRow) {
	for _, row := range rows {
		if !seen[row.FilmWorkID] {
			seen[row.FilmWorkID] = true
			result.FilmIDs = append(result.FilmIDs, row.FilmWorkID)
		}
		if row.Modified.After(result.MaxModified) {
			result.MaxModified = row.Modified
		}
	}
}

func (e *Enricher) finish(ctx context.Context, result *EnrichResult, runNumber int, modifiedAfter time.Time) {
	result.HasResults = len(result.FilmIDs) > 0
	if result.HasResults {
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"run":            runNumber,
			"enricher":       e.name,
			"films":          len(result.FilmIDs),
			"modified_after": modifiedAfter,
		}).Info("Collected films touched by dependency changes")
	}
}
