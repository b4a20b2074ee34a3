// Package sync implements the incremental synchronization pipeline: detect
// changed rows in Postgres, ripple dependency edits onto the films they
// touch, merge the joined rows, transform them into denormalized documents
// and bulk-load them into the search index, checkpointing progress so any
// interruption resumes without loss.
package sync

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/repositories/genre"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/events"
	"github.com/Ramsey-B/moss/pkg/metrics"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/retry"
	"github.com/Ramsey-B/moss/pkg/search"
	"github.com/Ramsey-B/moss/pkg/state"
	"github.com/Ramsey-B/moss/pkg/transform"
	"github.com/pkg/errors"
)

// ErrSyncInProgress is returned when the checkpoint says a run is already in
// flight. At process startup it means the previous process died mid-run.
var ErrSyncInProgress = errors.New("synchronization already in progress")

// DocumentLoader writes transformed documents into the search index.
type DocumentLoader interface {
	LoadFilms(ctx context.Context, documents map[string]models.FilmDocument) error
	LoadGenres(ctx context.Context, documents map[string]models.GenreDocument) error
	LoadPersons(ctx context.Context, documents map[string]models.PersonDocument) error
}

// EventPublisher announces upserted documents to downstream consumers.
type EventPublisher interface {
	PublishDocumentEvents(ctx context.Context, batch []events.DocumentEvent) error
}

// Orchestrator drives the pipeline as a small state machine persisted in the
// checkpoint: START when a run begins, FINISH when the backlog is drained,
// ERROR when a run aborts. The modified_after high-water mark only advances
// after a changed set has been loaded end to end.
type Orchestrator struct {
	state          *state.State
	producer       *Producer
	genreEnricher  *Enricher
	personEnricher *Enricher
	merger         *Merger
	genres         genre.GenreRepository
	loader         DocumentLoader
	publisher      EventPublisher
	batchSize      int
	retryCfg       RetryConfig
	logger         ectologger.Logger
}

// NewOrchestrator creates a new Orchestrator. publisher may be nil when
// event publishing is disabled.
func NewOrchestrator(
	st *state.State,
	producer *Producer,
	genreEnricher *Enricher,
	personEnricher *Enricher,
	merger *Merger,
	genres genre.GenreRepository,
	loader DocumentLoader,
	publisher EventPublisher,
	batchSize int,
	retryCfg RetryConfig,
	logger ectologger.Logger,
) *Orchestrator {
	return &Orchestrator{
		state:          st,
		producer:       producer,
		genreEnricher:  genreEnricher,
		personEnricher: personEnricher,
		merger:         merger,
		genres:         genres,
		loader:         loader,
		publisher:      publisher,
		batchSize:      batchSize,
		retryCfg:       retryCfg.withDefaults(),
		logger:         logger,
	}
}

// GuardStartup refuses to start when the checkpoint was left in START. That
// only happens when a previous process died between START and FINISH/ERROR,
// and running two synchronizers against one checkpoint corrupts it.
func (o *Orchestrator) GuardStartup(ctx context.Context) error {
	runState, err := o.state.GetRunState(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read run state")
	}
	if runState == state.RunStateStart {
		o.logger.WithContext(ctx).Warn("Checkpoint left in START by a previous process, refusing to run")
		return ErrSyncInProgress
	}
	return nil
}

// RunCycle executes one polling cycle: repeated runs until a run finds no
// changes, then FINISH. Any error marks the checkpoint ERROR and preserves
// the run number so the next cycle resumes numbering.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Orchestrator.RunCycle")
	defer span.End()

	started := time.Now()

	nRun := 1
	runState, err := o.state.GetRunState(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read run state")
	}
	if runState == state.RunStateError {
		n, err := o.state.GetRunNumber(ctx)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).Warn("Failed to read run number after ERROR, restarting numbering")
		} else if n > 0 {
			nRun = n
		}
	}

	if err := o.drain(ctx, &nRun); err != nil {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		if stateErr := o.state.SetRunState(ctx, state.RunStateError); stateErr != nil {
			o.logger.WithContext(ctx).WithError(stateErr).Error("Failed to mark checkpoint ERROR")
		}
		if stateErr := o.state.SetRunNumber(ctx, nRun); stateErr != nil {
			o.logger.WithContext(ctx).WithError(stateErr).Error("Failed to persist run number")
		}
		o.logger.WithContext(ctx).WithError(err).WithField("run", nRun).Error("Synchronization run failed")
		return err
	}

	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	metrics.SyncRunDuration.Observe(time.Since(started).Seconds())
	return nil
}

// drain loops runs until one finds nothing to do. nRun is a pointer so the
// caller can persist the failing run's number on error.
func (o *Orchestrator) drain(ctx context.Context, nRun *int) error {
	modifiedAfter, err := o.state.GetModifiedAfter(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read checkpoint high-water mark")
	}

	var lastMax time.Time

	for {
		if err := o.state.SetRunState(ctx, state.RunStateStart); err != nil {
			return errors.Wrap(err, "failed to mark checkpoint START")
		}
		if err := o.state.SetRunNumber(ctx, *nRun); err != nil {
			return errors.Wrap(err, "failed to persist run number")
		}

		log := o.logger.WithContext(ctx).WithFields(map[string]any{
			"run":            *nRun,
			"modified_after": modifiedAfter,
		})
		log.Info("Synchronization run started")

		changed, err := o.producer.Collect(ctx, modifiedAfter, *nRun)
		if err != nil {
			return err
		}
		genreRipple, err := o.genreEnricher.Collect(ctx, modifiedAfter, *nRun)
		if err != nil {
			return err
		}
		personRipple, err := o.personEnricher.Collect(ctx, modifiedAfter, *nRun)
		if err != nil {
			return err
		}
		changedGenres, genresMax, err := o.collectChangedGenres(ctx, modifiedAfter)
		if err != nil {
			return err
		}

		metrics.ChangedRowsDetected.WithLabelValues("film_work").Add(float64(len(changed.FilmIDs)))
		metrics.ChangedRowsDetected.WithLabelValues("genre_link").Add(float64(len(genreRipple.FilmIDs)))
		metrics.ChangedRowsDetected.WithLabelValues("person_link").Add(float64(len(personRipple.FilmIDs)))
		metrics.ChangedRowsDetected.WithLabelValues("genre").Add(float64(len(changedGenres)))

		if !changed.HasResults && !genreRipple.HasResults && !personRipple.HasResults && len(changedGenres) == 0 {
			if !lastMax.IsZero() {
				if err := o.state.SetModifiedAfter(ctx, lastMax); err != nil {
					return errors.Wrap(err, "failed to advance checkpoint")
				}
			}
			if err := o.state.SetRunState(ctx, state.RunStateFinish); err != nil {
				return errors.Wrap(err, "failed to mark checkpoint FINISH")
			}
			log.Info("Synchronization completed, nothing left to sync")
			return nil
		}

		lastMax = maxTime(lastMax, changed.MaxModified, genreRipple.MaxModified, personRipple.MaxModified, genresMax)

		filmIDs := union(changed.FilmIDs, genreRipple.FilmIDs, personRipple.FilmIDs)
		if err := o.syncFilms(ctx, filmIDs, *nRun, &lastMax); err != nil {
			return err
		}

		// The persons index rebuilds whole documents, so the affected set
		// comes from a single unlimited pass over the person links.
		personAll, err := o.personEnricher.CollectAll(ctx, modifiedAfter, *nRun)
		if err != nil {
			return err
		}
		if err := o.syncPersons(ctx, personAll.FilmIDs, *nRun, &lastMax); err != nil {
			return err
		}

		if err := o.syncGenres(ctx, changedGenres, *nRun); err != nil {
			return err
		}

		// The changed set is fully loaded, only now may the high-water mark
		// move.
		if err := o.state.SetModifiedAfter(ctx, lastMax); err != nil {
			return errors.Wrap(err, "failed to advance checkpoint")
		}
		modifiedAfter = lastMax

		log.WithField("films", len(filmIDs)).Info("Synchronization run completed")
		*nRun++
	}
}

func (o *Orchestrator) syncFilms(ctx context.Context, filmIDs []string, nRun int, lastMax *time.Time) error {
	for _, chunk := range chunks(filmIDs, o.batchSize) {
		rows, maxModified, err := o.merger.FilmRows(ctx, chunk)
		if err != nil {
			return err
		}
		documents := transform.FilmDocuments(rows)
		if err := o.loader.LoadFilms(ctx, documents); err != nil {
			return err
		}
		metrics.DocumentsLoaded.WithLabelValues(search.IndexMovies).Add(float64(len(documents)))
		if err := o.publish(ctx, search.IndexMovies, documentIDsFilms(documents), nRun); err != nil {
			return err
		}
		*lastMax = maxTime(*lastMax, maxModified)
	}
	return nil
}

func (o *Orchestrator) syncPersons(ctx context.Context, filmIDs []string, nRun int, lastMax *time.Time) error {
	for _, chunk := range chunks(filmIDs, o.batchSize) {
		rows, maxModified, err := o.merger.PersonRows(ctx, chunk)
		if err != nil {
			return err
		}
		documents := transform.PersonDocuments(rows)
		if err := o.loader.LoadPersons(ctx, documents); err != nil {
			return err
		}
		metrics.DocumentsLoaded.WithLabelValues(search.IndexPersons).Add(float64(len(documents)))
		if err := o.publish(ctx, search.IndexPersons, documentIDsPersons(documents), nRun); err != nil {
			return err
		}
		*lastMax = maxTime(*lastMax, maxModified)
	}
	return nil
}

func (o *Orchestrator) syncGenres(ctx context.Context, genres []models.Genre, nRun int) error {
	if len(genres) == 0 {
		return nil
	}
	documents := transform.GenreDocuments(genres)
	if err := o.loader.LoadGenres(ctx, documents); err != nil {
		return err
	}
	metrics.DocumentsLoaded.WithLabelValues(search.IndexGenres).Add(float64(len(documents)))
	return o.publish(ctx, search.IndexGenres, documentIDsGenres(documents), nRun)
}

// collectChangedGenres drains the genre table itself, feeding the genres
// index independently of any film.
func (o *Orchestrator) collectChangedGenres(ctx context.Context, modifiedAfter time.Time) ([]models.Genre, time.Time, error) {
	var (
		result      []models.Genre
		maxModified time.Time
	)
	cursor := models.Cursor{Modified: modifiedAfter}

	for {
		rows, err := retry.Do(ctx, o.logger, "genre batch", o.retryCfg.MaxAttempts, o.retryCfg.BaseDelay, func() ([]models.Genre, error) {
			return o.genres.ChangedSince(ctx, cursor, o.batchSize)
		})
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			result = append(result, row)
			if row.Modified.After(maxModified) {
				maxModified = row.Modified
			}
		}

		last := rows[len(rows)-1]
		cursor = models.Cursor{Modified: last.Modified, ID: last.ID}

		if len(rows) < o.batchSize {
			break
		}
	}

	return result, maxModified, nil
}

func (o *Orchestrator) publish(ctx context.Context, index string, ids []string, nRun int) error {
	if o.publisher == nil || len(ids) == 0 {
		return nil
	}

	batch := make([]events.DocumentEvent, len(ids))
	now := time.Now().UTC()
	for i, id := range ids {
		batch[i] = events.DocumentEvent{
			Index:      index,
			DocumentID: id,
			RunNumber:  nRun,
			Timestamp:  now,
		}
	}
	return o.publisher.PublishDocumentEvents(ctx, batch)
}

func maxTime(times ...time.Time) time.Time {
	var max time.Time
	for _, t := range times {
		if t.After(max) {
			max = t
		}
	}
	return max
}

// union merges id slices into one sorted, deduplicated slice.
func union(sets ...[]string) []string {
	seen := map[string]bool{}
	var result []string
	for _, set := range sets {
		for _, id := range set {
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	sort.Strings(result)
	return result
}

func chunks(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var result [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		result = append(result, ids[start:end])
	}
	return result
}

func documentIDsFilms(documents map[string]models.FilmDocument) []string {
	ids := make([]string, 0, len(documents))
	for id := range documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func documentIDsPersons(documents map[string]models.PersonDocument) []string {
	ids := make([]string, 0, len(documents))
	for id := range documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func documentIDsGenres(documents map[string]models.GenreDocument) []string {
	ids := make([]string, 0, len(documents))
	for id := range documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
