package filmwork

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
)

// FilmWorkRepository reads changed root entities from content.film_work.
type FilmWorkRepository interface {
	ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.ChangedRow, error)
}

// Repository implements FilmWorkRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new film work repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "content.film_work"

// ChangedSince returns one batch of film rows modified after the cursor,
// ordered by (modified, id) so identical timestamps at a batch boundary
// cannot skip rows.
func (r *Repository) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.ChangedRow, error) {
	ctx, span := tracing.StartSpan(ctx, "FilmWorkRepository.ChangedSince")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "modified")
	sb.From(tableName)
	sb.WhereCursor("modified", "id", cursor)
	sb.OrderBy("modified", "id")
	sb.Limit(limit)

	query, args := sb.Build()

	var rows []models.ChangedRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query changed film works")
		return nil, fmt.Errorf("failed to query changed film works: %w", err)
	}

	return rows, nil
}
