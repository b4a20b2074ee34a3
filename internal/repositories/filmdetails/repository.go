package filmdetails

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/huandu/go-sqlbuilder"
)

// FilmDetailsRepository joins affected film ids back to full denormalized
// row sets for the transform stage.
type FilmDetailsRepository interface {
	FilmRows(ctx context.Context, filmIDs []string) ([]models.FilmDetailsRow, error)
	PersonRows(ctx context.Context, filmIDs []string) ([]models.PersonFilmRow, error)
}

// Repository implements FilmDetailsRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new film details repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FilmRows returns one flattened row per (film, genre, person-with-role)
// combination for the given film ids. Genre and person sides are left
// joins: a film with no links still produces a row.
func (r *Repository) FilmRows(ctx context.Context, filmIDs []string) ([]models.FilmDetailsRow, error) {
	ctx, span := tracing.StartSpan(ctx, "FilmDetailsRepository.FilmRows")
	defer span.End()

	if len(filmIDs) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(
		"fw.id AS fw_id",
		"fw.title",
		"fw.description",
		"fw.rating",
		"GREATEST(fw.modified, COALESCE(gfw.modified, fw.modified), COALESCE(g.modified, fw.modified), COALESCE(pfw.modified, fw.modified), COALESCE(p.modified, fw.modified)) AS modified",
		"g.id AS g_id",
		"g.name AS genre_name",
		"p.id AS p_id",
		"p.full_name",
		"pfw.role",
	)
	sb.From("content.film_work fw")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "content.genre_film_work gfw", "gfw.film_work_id = fw.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "content.genre g", "g.id = gfw.genre_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "content.person_film_work pfw", "pfw.film_work_id = fw.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "content.person p", "p.id = pfw.person_id")
	sb.Where(sb.In("fw.id", sqlbuilder.List(filmIDs)))

	query, args := sb.Build()

	var rows []models.FilmDetailsRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query film detail rows")
		return nil, fmt.Errorf("failed to query film detail rows: %w", err)
	}

	return rows, nil
}

// PersonRows returns (person, film, role) rows for every person appearing in
// the given films, including that person's other films, so a rebuilt person
// document always carries the complete film list.
func (r *Repository) PersonRows(ctx context.Context, filmIDs []string) ([]models.PersonFilmRow, error) {
	ctx, span := tracing.StartSpan(ctx, "FilmDetailsRepository.PersonRows")
	defer span.End()

	if len(filmIDs) == 0 {
		return nil, nil
	}

	inner := database.NewSelectBuilder()
	inner.Select("person_id")
	inner.From("content.person_film_work")
	inner.Where(inner.In("film_work_id", sqlbuilder.List(filmIDs)))

	sb := database.NewSelectBuilder()
	sb.Select(
		"p.id AS p_id",
		"p.full_name",
		"pfw.film_work_id AS fw_id",
		"pfw.role",
		"GREATEST(p.modified, pfw.modified) AS modified",
	)
	sb.From("content.person p")
	sb.Join("content.person_film_work pfw", "pfw.person_id = p.id")
	sb.Where(fmt.Sprintf("p.id IN (%s)", sb.Var(inner)))

	query, args := sb.Build()

	var rows []models.PersonFilmRow
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to query person film rows")
		return nil, fmt.Errorf("failed to query person film rows: %w", err)
	}

	return rows, nil
}
