package sync

import (
	"context"
	"errors"
	"sort"
	gosync "sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/moss/pkg/events"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/state"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// cursorMatches mirrors the repository keyset semantics: an empty cursor id
// is a strict run boundary, a non-empty id is a tuple compare.
func cursorMatches(cursor models.Cursor, modified time.Time, id string) bool {
	if cursor.ID == "" {
		return modified.After(cursor.Modified)
	}
	if modified.After(cursor.Modified) {
		return true
	}
	return modified.Equal(cursor.Modified) && id > cursor.ID
}

type fakeFilmWorks struct {
	rows  []models.ChangedRow
	calls int
}

func (f *fakeFilmWorks) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.ChangedRow, error) {
	f.calls++
	var out []models.ChangedRow
	for _, row := range f.rows {
		if cursorMatches(cursor, row.Modified, row.ID) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.Before(out[j].Modified)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeLinks struct {
	rows  []models.LinkRow
	calls int
}

func (f *fakeLinks) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.LinkRow, error) {
	f.calls++
	var out []models.LinkRow
	for _, row := range f.rows {
		if cursorMatches(cursor, row.Modified, row.ID) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.Before(out[j].Modified)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeGenres struct {
	rows []models.Genre
}

func (f *fakeGenres) ChangedSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.Genre, error) {
	var out []models.Genre
	for _, row := range f.rows {
		if cursorMatches(cursor, row.Modified, row.ID) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.Before(out[j].Modified)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeDetails struct {
	filmRows   map[string][]models.FilmDetailsRow
	personRows map[string][]models.PersonFilmRow
}

func (f *fakeDetails) FilmRows(ctx context.Context, filmIDs []string) ([]models.FilmDetailsRow, error) {
	var out []models.FilmDetailsRow
	for _, id := range filmIDs {
		out = append(out, f.filmRows[id]...)
	}
	return out, nil
}

func (f *fakeDetails) PersonRows(ctx context.Context, filmIDs []string) ([]models.PersonFilmRow, error) {
	var out []models.PersonFilmRow
	for _, id := range filmIDs {
		out = append(out, f.personRows[id]...)
	}
	return out, nil
}

type fakeLoader struct {
	mu       gosync.Mutex
	films    map[string]models.FilmDocument
	genres   map[string]models.GenreDocument
	persons  map[string]models.PersonDocument
	failFilm error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		films:   map[string]models.FilmDocument{},
		genres:  map[string]models.GenreDocument{},
		persons: map[string]models.PersonDocument{},
	}
}

func (l *fakeLoader) LoadFilms(ctx context.Context, documents map[string]models.FilmDocument) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFilm != nil {
		return l.failFilm
	}
	for id, doc := range documents {
		l.films[id] = doc
	}
	return nil
}

func (l *fakeLoader) LoadGenres(ctx context.Context, documents map[string]models.GenreDocument) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, doc := range documents {
		l.genres[id] = doc
	}
	return nil
}

func (l *fakeLoader) LoadPersons(ctx context.Context, documents map[string]models.PersonDocument) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, doc := range documents {
		l.persons[id] = doc
	}
	return nil
}

func (l *fakeLoader) film(id string) (models.FilmDocument, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.films[id]
	return doc, ok
}

type fakePublisher struct {
	published []events.DocumentEvent
}

func (p *fakePublisher) PublishDocumentEvents(ctx context.Context, batch []events.DocumentEvent) error {
	p.published = append(p.published, batch...)
	return nil
}

type memoryStorage struct {
	mu     gosync.Mutex
	values map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{values: map[string]string{}}
}

func (s *memoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memoryStorage) Set(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

type failingKeyStorage struct {
	*memoryStorage
	failKey string
}

func (s *failingKeyStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if key == s.failKey {
		return "", false, errors.New("checkpoint read failed")
	}
	return s.memoryStorage.Get(ctx, key)
}

type fixture struct {
	filmWorks   *fakeFilmWorks
	genreLinks  *fakeLinks
	personLinks *fakeLinks
	genres      *fakeGenres
	details     *fakeDetails
	loader      *fakeLoader
	publisher   *fakePublisher
	state       *state.State
}

func newFixture() *fixture {
	return &fixture{
		filmWorks:   &fakeFilmWorks{},
		genreLinks:  &fakeLinks{},
		personLinks: &fakeLinks{},
		genres:      &fakeGenres{},
		details: &fakeDetails{
			filmRows:   map[string][]models.FilmDetailsRow{},
			personRows: map[string][]models.PersonFilmRow{},
		},
		loader:    newFakeLoader(),
		publisher: &fakePublisher{},
		state:     state.NewState(newMemoryStorage()),
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	logger := getTestLogger()
	retryCfg := RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}
	return NewOrchestrator(
		f.state,
		NewProducer(f.filmWorks, 100, retryCfg, logger),
		NewEnricher("genre links", f.genreLinks, 100, retryCfg, logger),
		NewEnricher("person links", f.personLinks, 100, retryCfg, logger),
		NewMerger(f.details, retryCfg, logger),
		f.genres,
		f.loader,
		f.publisher,
		100,
		retryCfg,
		logger,
	)
}

func (f *fixture) addFilm(id, title string, modified time.Time) {
	f.filmWorks.rows = append(f.filmWorks.rows, models.ChangedRow{ID: id, Modified: modified})
	f.details.filmRows[id] = append(f.details.filmRows[id], models.FilmDetailsRow{
		FilmWorkID: id,
		Title:      title,
		Modified:   modified,
	})
}

func (f *fixture) addPerson(personID, fullName, filmID, role string, modified time.Time) {
	f.personLinks.rows = append(f.personLinks.rows, models.LinkRow{
		ID:         "link-" + personID + "-" + filmID + "-" + role,
		FilmWorkID: filmID,
		Modified:   modified,
	})
	f.details.personRows[filmID] = append(f.details.personRows[filmID], models.PersonFilmRow{
		PersonID:   personID,
		FullName:   fullName,
		FilmWorkID: filmID,
		Role:       role,
		Modified:   modified,
	})
}

func TestOrchestratorRunCycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first run syncs everything and finishes", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", base)
		f.addFilm("film-2", "Dune", base.Add(time.Minute))
		f.addPerson("p-1", "Jane Doe", "film-1", models.RoleActor, base)
		f.genres.rows = []models.Genre{{ID: "g-1", Name: "Sci-Fi", Modified: base.Add(2 * time.Minute)}}

		require.NoError(t, f.orchestrator(t).RunCycle(ctx))

		runState, err := f.state.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateFinish, runState)

		assert.Contains(t, f.loader.films, "film-1")
		assert.Contains(t, f.loader.films, "film-2")
		assert.Contains(t, f.loader.genres, "g-1")
		assert.Contains(t, f.loader.persons, "p-1")
		assert.Equal(t, []string{"film-1"}, f.loader.persons["p-1"].Films)

		modifiedAfter, err := f.state.GetModifiedAfter(ctx)
		require.NoError(t, err)
		assert.True(t, modifiedAfter.Equal(base.Add(2*time.Minute)), "checkpoint should land on the max modified")

		assert.NotEmpty(t, f.publisher.published)
	})

	t.Run("second cycle over an unchanged source does nothing", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", base)

		orch := f.orchestrator(t)
		require.NoError(t, orch.RunCycle(ctx))

		f.loader.films = map[string]models.FilmDocument{}
		require.NoError(t, orch.RunCycle(ctx))

		assert.Empty(t, f.loader.films, "no documents should be reloaded")

		runState, err := f.state.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateFinish, runState)
	})

	t.Run("genre edit ripples to films without film_work changes", func(t *testing.T) {
		f := newFixture()
		// The film row itself is older than the checkpoint; only the link's
		// effective timestamp moved, as after a genre rename.
		f.details.filmRows["film-1"] = []models.FilmDetailsRow{{
			FilmWorkID: "film-1",
			Title:      "Inception",
			Modified:   base,
		}}
		f.genreLinks.rows = []models.LinkRow{{
			ID:         "link-1",
			FilmWorkID: "film-1",
			Modified:   base.Add(time.Hour),
		}}
		f.genres.rows = []models.Genre{{ID: "g-1", Name: "Science Fiction", Modified: base.Add(time.Hour)}}

		require.NoError(t, f.state.SetModifiedAfter(ctx, base.Add(time.Minute)))
		require.NoError(t, f.orchestrator(t).RunCycle(ctx))

		assert.Contains(t, f.loader.films, "film-1")
		assert.Contains(t, f.loader.genres, "g-1")
	})

	t.Run("loader failure marks ERROR and leaves the checkpoint", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", base)
		f.loader.failFilm = errors.New("mapping conflict")

		err := f.orchestrator(t).RunCycle(ctx)
		require.Error(t, err)

		runState, stateErr := f.state.GetRunState(ctx)
		require.NoError(t, stateErr)
		assert.Equal(t, state.RunStateError, runState)

		runNumber, stateErr := f.state.GetRunNumber(ctx)
		require.NoError(t, stateErr)
		assert.Equal(t, 1, runNumber)

		modifiedAfter, stateErr := f.state.GetModifiedAfter(ctx)
		require.NoError(t, stateErr)
		assert.True(t, modifiedAfter.IsZero(), "checkpoint must not advance past a failed load")
	})

	t.Run("retry after an error resumes numbering and converges", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", base)
		f.loader.failFilm = errors.New("mapping conflict")

		orch := f.orchestrator(t)
		require.Error(t, orch.RunCycle(ctx))

		f.loader.failFilm = nil
		require.NoError(t, orch.RunCycle(ctx))

		assert.Contains(t, f.loader.films, "film-1")

		runState, err := f.state.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateFinish, runState)

		runNumber, err := f.state.GetRunNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, runNumber, "the retried run keeps counting from the failed one")
	})

	t.Run("unreadable run number after ERROR restarts numbering", func(t *testing.T) {
		// Find the storage key the run number lives under.
		seed := newMemoryStorage()
		require.NoError(t, state.NewState(seed).SetRunNumber(ctx, 1))
		var runNumberKey string
		for key := range seed.values {
			runNumberKey = key
		}

		f := newFixture()
		storage := &failingKeyStorage{memoryStorage: newMemoryStorage(), failKey: runNumberKey}
		f.state = state.NewState(storage)
		f.addFilm("film-1", "Inception", base)

		require.NoError(t, f.state.SetRunState(ctx, state.RunStateError))
		require.NoError(t, f.state.SetRunNumber(ctx, 7))

		require.NoError(t, f.orchestrator(t).RunCycle(ctx))

		runState, err := f.state.GetRunState(ctx)
		require.NoError(t, err)
		assert.Equal(t, state.RunStateFinish, runState)

		storage.mu.Lock()
		persisted := storage.values[runNumberKey]
		storage.mu.Unlock()
		assert.Equal(t, "2", persisted, "numbering restarts from 1 when the stored counter is unreadable")
	})

	t.Run("repeated runs produce identical documents", func(t *testing.T) {
		f := newFixture()
		f.addFilm("film-1", "Inception", base)
		f.addPerson("p-1", "Jane Doe", "film-1", models.RoleActor, base)

		orch := f.orchestrator(t)
		require.NoError(t, orch.RunCycle(ctx))
		first := f.loader.films["film-1"]

		// Force a full resync by resetting the checkpoint.
		require.NoError(t, f.state.SetModifiedAfter(ctx, time.Time{}))
		require.NoError(t, orch.RunCycle(ctx))

		assert.Equal(t, first, f.loader.films["film-1"])
	})
}

func TestGuardStartup(t *testing.T) {
	ctx := context.Background()

	t.Run("clean checkpoint passes", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.orchestrator(t).GuardStartup(ctx))
	})

	t.Run("START left behind refuses to run", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.state.SetRunState(ctx, state.RunStateStart))

		err := f.orchestrator(t).GuardStartup(ctx)
		assert.ErrorIs(t, err, ErrSyncInProgress)
	})

	t.Run("runner start fails on a dirty checkpoint", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.state.SetRunState(ctx, state.RunStateStart))

		runner := NewRunner(f.orchestrator(t), time.Hour, getTestLogger())
		err := runner.Start(ctx)
		assert.ErrorIs(t, err, ErrSyncInProgress)
		assert.False(t, runner.IsRunning())
	})
}
