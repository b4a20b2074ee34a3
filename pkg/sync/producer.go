package sync

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/repositories/filmwork"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/retry"
)

// RetryConfig bounds backoff on source queries.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	return c
}

// ProducerResult is the full changed set for one run.
type ProducerResult struct {
	FilmIDs     []string
	MaxModified time.Time
	HasResults  bool
}

// Producer finds root-entity rows modified after the checkpoint, draining
// the backlog in keyset-paginated batches.
type Producer struct {
	repo      filmwork.FilmWorkRepository
	batchSize int
	retryCfg  RetryConfig
	logger    ectologger.Logger
}

// NewProducer creates a new Producer
func NewProducer(repo filmwork.FilmWorkRepository, batchSize int, retryCfg RetryConfig, logger ectologger.Logger) *Producer {
	return &Producer{
		repo:      repo,
		batchSize: batchSize,
		retryCfg:  retryCfg.withDefaults(),
		logger:    logger,
	}
}

// Collect returns every film id modified after modifiedAfter, in modified
// order, plus the maximum modified value observed. The checkpoint only
// advances once the downstream pipeline for these ids has completed.
func (p *Producer) Collect(ctx context.Context, modifiedAfter time.Time, runNumber int) (*ProducerResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Producer.Collect")
	defer span.End()

	result := &ProducerResult{}
	cursor := models.Cursor{Modified: modifiedAfter}

	for {
		rows, err := retry.Do(ctx, p.logger, "producer batch", p.retryCfg.MaxAttempts, p.retryCfg.BaseDelay, func() ([]models.ChangedRow, error) {
			return p.repo.ChangedSince(ctx, cursor, p.batchSize)
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			result.FilmIDs = append(result.FilmIDs, row.ID)
			if row.Modified.After(result.MaxModified) {
				result.MaxModified = row.Modified
			}
		}

		last := rows[len(rows)-1]
		cursor = models.Cursor{Modified: last.Modified, ID: last.ID}

		if len(rows) < p.batchSize {
			break
		}
	}

	result.HasResults = len(result.FilmIDs) > 0
	if result.HasResults {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"run":            runNumber,
			"films":          len(result.FilmIDs),
			"modified_after": modifiedAfter,
		}).Info("Collected changed film works")
	}

	return result, nil
}
