package genrelink

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
)

// GenreLinkRepository reads the genre dependency class: genre_film_work rows
// whose own timestamp OR whose genre's timestamp moved past the checkpoint.
// The join row detects added/removed links; the parent side makes a plain
// genre rename ripple to every film that references it.
type GenreLinkRepository interface {
	ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error)
}

// Repository implements GenreLinkRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new genre link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ChangedSince returns one batch of link rows whose effective timestamp
// (greatest of link and genre modified) is past the cursor.
func (r *Repository) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error) {
	ctx, span := tracing.StartSpan(ctx, "GenreLinkRepository.ChangedSince")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("gfw.id", "gfw.film_work_id", "GREATEST(gfw.modified, g.modified) AS modified")
	sb.From("content.genre_film_work gfw")
	sb.Join("content.genre g", "g.id = gfw.genre_id")
	sb.WhereCursor("GREATEST(gfw.modified, g.modified)", "gfw.id", cursor)
	sb.OrderBy("GREATEST(gfw.modified, g.modified)", "gfw.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()

	var rows []models.LinkRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query changed genre links")
		return nil, fmt.Errorf("failed to query changed genre links: %w", err)
	}

	return rows, nil
}
