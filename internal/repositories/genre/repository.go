package genre

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
)

// GenreRepository reads changed genre rows for the genres index.
type GenreRepository interface {
	ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.Genre, error)
}

// Repository implements GenreRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new genre repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "content.genre"

// ChangedSince returns one batch of genre rows modified after the cursor.
func (r *Repository) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.Genre, error) {
	ctx, span := tracing.StartSpan(ctx, "GenreRepository.ChangedSince")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "description", "created", "modified")
	sb.From(tableName)
	sb.WhereCursor("modified", "id", cursor)
	sb.OrderBy("modified", "id")
	sb.Limit(limit)

	query, args := sb.Build()

	var rows []models.Genre
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query changed genres")
		return nil, fmt.Errorf("failed to query changed genres: %w", err)
	}

	return rows, nil
}
