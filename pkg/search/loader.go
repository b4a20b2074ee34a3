package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/pkg/metrics"
	"github.com/Ramsey-B/moss/pkg/models"
	"github.com/Ramsey-B/moss/pkg/retry"
)

// LoaderConfig bounds the retry behavior on bulk writes.
type LoaderConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Loader bulk-writes documents into the search index. Every write is an
// upsert by id: the document is replaced whole, never patched.
type Loader struct {
	client *Client
	config LoaderConfig
	logger ectologger.Logger
}

// NewLoader creates a new Loader
func NewLoader(client *Client, config LoaderConfig, logger ectologger.Logger) *Loader {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 500 * time.Millisecond
	}
	return &Loader{
		client: client,
		config: config,
		logger: logger,
	}
}

// LoadFilms upserts film documents into the movies index.
func (l *Loader) LoadFilms(ctx context.Context, documents map[string]models.FilmDocument) error {
	generic := make(map[string]any, len(documents))
	for id, doc := range documents {
		generic[id] = doc
	}
	return l.BulkUpsert(ctx, IndexMovies, generic)
}

// LoadGenres upserts genre documents into the genres index.
func (l *Loader) LoadGenres(ctx context.Context, documents map[string]models.GenreDocument) error {
	generic := make(map[string]any, len(documents))
	for id, doc := range documents {
		generic[id] = doc
	}
	return l.BulkUpsert(ctx, IndexGenres, generic)
}

// LoadPersons upserts person documents into the persons index.
func (l *Loader) LoadPersons(ctx context.Context, documents map[string]models.PersonDocument) error {
	generic := make(map[string]any, len(documents))
	for id, doc := range documents {
		generic[id] = doc
	}
	return l.BulkUpsert(ctx, IndexPersons, generic)
}

// BulkUpsert writes the given documents to one index with a single bulk
// request, retrying transient failures with backoff. Item-level mapping
// errors are logical and fail the call without retrying.
func (l *Loader) BulkUpsert(ctx context.Context, index string, documents map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "search.Loader.BulkUpsert")
	defer span.End()

	if len(documents) == 0 {
		return nil
	}

	body, err := buildBulkBody(index, documents)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = retry.Do(ctx, l.logger, fmt.Sprintf("bulk upsert to %s", index), l.config.MaxAttempts, l.config.BaseDelay, func() (struct{}, error) {
		return struct{}{}, l.bulk(ctx, index, body)
	})
	if err != nil {
		return err
	}
	metrics.LoadDuration.WithLabelValues(index).Observe(time.Since(start).Seconds())

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"index":     index,
		"documents": len(documents),
	}).Info("Loaded documents into search index")

	return nil
}

func (l *Loader) bulk(ctx context.Context, index string, body []byte) error {
	es := l.client.ES()
	res, err := es.Bulk(bytes.NewReader(body), es.Bulk.WithContext(ctx))
	if err != nil {
		return retry.AsTransient(fmt.Errorf("bulk request to %s failed: %w", index, err))
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		err := fmt.Errorf("bulk request to %s returned %s: %s", index, res.Status(), string(raw))
		if retry.IsTransientStatus(res.StatusCode) {
			return retry.AsTransient(err)
		}
		return err
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode bulk response from %s: %w", index, err)
	}
	if !parsed.Errors {
		return nil
	}

	transient := false
	failed := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if retry.IsTransientStatus(result.Status) {
				transient = true
			}
			l.logger.WithContext(ctx).WithFields(map[string]any{
				"index":  index,
				"id":     result.ID,
				"status": result.Status,
				"type":   result.Error.Type,
				"reason": result.Error.Reason,
			}).Error("bulk item failed")
		}
	}

	err = fmt.Errorf("bulk request to %s failed for %d documents", index, failed)
	if transient {
		return retry.AsTransient(err)
	}
	return err
}

func buildBulkBody(index string, documents map[string]any) ([]byte, error) {
	ids := make([]string, 0, len(documents))
	for id := range documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		action := map[string]map[string]string{
			"index": {"_index": index, "_id": id},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := json.NewEncoder(&buf).Encode(documents[id]); err != nil {
			return nil, fmt.Errorf("failed to encode document %s: %w", id, err)
		}
	}
	return buf.Bytes(), nil
}
