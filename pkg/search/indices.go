package search

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Ramsey-B/moss/internal/tracing"
)

// Index names of the three target collections.
const (
	IndexMovies  = "movies"
	IndexGenres  = "genres"
	IndexPersons = "persons"
)

const indexSettings = `
		"settings": {
			"refresh_interval": "1s",
			"analysis": {
				"filter": {
					"english_stop": {"type": "stop", "stopwords": "_english_"},
					"english_stemmer": {"type": "stemmer", "language": "english"},
					"english_possessive_stemmer": {"type": "stemmer", "language": "possessive_english"},
					"russian_stop": {"type": "stop", "stopwords": "_russian_"},
					"russian_stemmer": {"type": "stemmer", "language": "russian"}
				},
				"analyzer": {
					"ru_en": {
						"tokenizer": "standard",
						"filter": [
							"lowercase",
							"english_stop",
							"english_stemmer",
							"english_possessive_stemmer",
							"russian_stop",
							"russian_stemmer"
						]
					}
				}
			}
		}`

const moviesMapping = `{` + indexSettings + `,
	"mappings": {
		"dynamic": "strict",
		"properties": {
			"id": {"type": "keyword"},
			"imdb_rating": {"type": "float"},
			"genre": {"type": "text", "analyzer": "ru_en"},
			"genre_full": {
				"type": "nested",
				"dynamic": "strict",
				"properties": {
					"id": {"type": "keyword"},
					"name": {"type": "text", "analyzer": "ru_en"}
				}
			},
			"title": {
				"type": "text",
				"analyzer": "ru_en",
				"fields": {"raw": {"type": "keyword"}}
			},
			"description": {"type": "text", "analyzer": "ru_en"},
			"directors_names": {"type": "text", "analyzer": "ru_en"},
			"actors_names": {"type": "text", "analyzer": "ru_en"},
			"writers_names": {"type": "text", "analyzer": "ru_en"},
			"actors": {
				"type": "nested",
				"dynamic": "strict",
				"properties": {
					"id": {"type": "keyword"},
					"name": {"type": "text", "analyzer": "ru_en"}
				}
			},
			"writers": {
				"type": "nested",
				"dynamic": "strict",
				"properties": {
					"id": {"type": "keyword"},
					"name": {"type": "text", "analyzer": "ru_en"}
				}
			},
			"directors": {
				"type": "nested",
				"dynamic": "strict",
				"properties": {
					"id": {"type": "keyword"},
					"name": {"type": "text", "analyzer": "ru_en"}
				}
			}
		}
	}
}`

const genresMapping = `{` + indexSettings + `,
	"mappings": {
		"dynamic": "strict",
		"properties": {
			"id": {"type": "keyword"},
			"name": {
				"type": "text",
				"analyzer": "ru_en",
				"fields": {"raw": {"type": "keyword"}}
			}
		}
	}
}`

const personsMapping = `{` + indexSettings + `,
	"mappings": {
		"dynamic": "strict",
		"properties": {
			"id": {"type": "keyword"},
			"full_name": {
				"type": "text",
				"analyzer": "ru_en",
				"fields": {"raw": {"type": "keyword"}}
			},
			"films": {"type": "keyword"}
		}
	}
}`

var indexMappings = map[string]string{
	IndexMovies:  moviesMapping,
	IndexGenres:  genresMapping,
	IndexPersons: personsMapping,
}

// EnsureIndices creates any of the three indices that do not exist yet.
// Losing the check-then-create race to another creator is fine: the
// "resource already exists" response counts as success.
func (c *Client) EnsureIndices(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "search.Client.EnsureIndices")
	defer span.End()

	for _, index := range []string{IndexMovies, IndexGenres, IndexPersons} {
		if err := c.ensureIndex(ctx, index); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureIndex(ctx context.Context, index string) error {
	c.logger.WithContext(ctx).Debugf("Checking the presence of index %s", index)

	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	drain(res.Body)

	if res.StatusCode == 200 {
		return nil
	}
	if res.StatusCode != 404 {
		return fmt.Errorf("unexpected status %s checking index %s", res.Status(), index)
	}

	c.logger.WithContext(ctx).Infof("Creating index %s", index)

	createRes, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithBody(strings.NewReader(indexMappings[index])),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		body, _ := io.ReadAll(createRes.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			c.logger.WithContext(ctx).Debugf("Index %s already exists", index)
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s", index, string(body))
	}

	c.logger.WithContext(ctx).Infof("Index %s created", index)
	return nil
}
