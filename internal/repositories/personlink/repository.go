package personlink

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
)

// PersonLinkRepository reads the person dependency class: person_film_work
// rows whose own timestamp or whose person's timestamp moved past the
// checkpoint.
type PersonLinkRepository interface {
	ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error)
}

// Repository implements PersonLinkRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) changedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error) {
	sb := database.NewSelectBuilder()
	sb.Select("pfw.id", "pfw.film_work_id", "GREATEST(pfw.modified, p.modified) AS modified")
	sb.From("content.person_film_work pfw")
	sb.Join("content.person p", "p.id = pfw.person_id")
	sb.WhereCursor("GREATEST(pfw.modified, p.modified)", "pfw.id", cursor)
	sb.OrderBy("GREATEST(pfw.modified, p.modified)", "pfw.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()

	var rows []models.LinkRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query changed person links")
		return nil, fmt.Errorf("failed to query changed person links: %w", err)
	}

	return rows, nil
}

// ChangedSince returns link rows past the cursor. A non-positive limit
// returns the whole backlog in one pass; the persons index rebuilds whole
// documents, so the film set of an affected person must never be truncated
// by a batch limit.
func (r *Repository) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error) {
	ctx, span := tracing.StartSpan(ctx, "PersonLinkRepository.ChangedSince")
	defer span.End()

	return r.changedSince(ctx, cursor, limit)
}
