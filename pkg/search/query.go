package search

// Typed search clauses replacing hand-built request maps. A Query renders to
// an Elasticsearch bool query; Merge combines two queries with defined
// precedence so callers can layer defaults under request-specific clauses.

// Clause is a tagged query fragment.
type Clause interface {
	// Render produces the Elasticsearch JSON shape of the clause.
	Render() map[string]any
}

// Match is an analyzed full-text match on one field.
type Match struct {
	Field string
	Query string
}

func (m Match) Render() map[string]any {
	return map[string]any{
		"match": map[string]any{
			m.Field: map[string]any{"query": m.Query},
		},
	}
}

// Fuzzy is a full-text match with fuzziness enabled.
type Fuzzy struct {
	Field     string
	Query     string
	Fuzziness string
}

func (f Fuzzy) Render() map[string]any {
	fuzziness := f.Fuzziness
	if fuzziness == "" {
		fuzziness = "AUTO"
	}
	return map[string]any{
		"match": map[string]any{
			f.Field: map[string]any{
				"query":     f.Query,
				"fuzziness": fuzziness,
			},
		},
	}
}

// Term is an exact filter on a keyword field.
type Term struct {
	Field string
	Value any
}

func (t Term) Render() map[string]any {
	return map[string]any{
		"term": map[string]any{t.Field: t.Value},
	}
}

// Range bounds a numeric or date field; nil bounds are omitted.
type Range struct {
	Field string
	GTE   any
	LTE   any
}

func (r Range) Render() map[string]any {
	bounds := map[string]any{}
	if r.GTE != nil {
		bounds["gte"] = r.GTE
	}
	if r.LTE != nil {
		bounds["lte"] = r.LTE
	}
	return map[string]any{
		"range": map[string]any{r.Field: bounds},
	}
}

// Nested scopes an inner clause to a nested object array (actors, writers,
// directors, genre_full).
type Nested struct {
	Path   string
	Clause Clause
}

func (n Nested) Render() map[string]any {
	return map[string]any{
		"nested": map[string]any{
			"path":  n.Path,
			"query": n.Clause.Render(),
		},
	}
}

// Query is a composable bool query: Must clauses score, Filter clauses
// restrict without scoring.
type Query struct {
	Must   []Clause
	Filter []Clause
}

// Merge combines two queries. Must clauses concatenate (both sides score).
// Filter clauses concatenate except that an overriding Term or Range on a
// field already filtered by the base replaces the base clause: the override
// wins.
func Merge(base, override Query) Query {
	merged := Query{}
	merged.Must = append(append([]Clause{}, base.Must...), override.Must...)

	overridden := map[string]bool{}
	for _, clause := range override.Filter {
		if field := filterField(clause); field != "" {
			overridden[field] = true
		}
	}

	for _, clause := range base.Filter {
		if field := filterField(clause); field != "" && overridden[field] {
			continue
		}
		merged.Filter = append(merged.Filter, clause)
	}
	merged.Filter = append(merged.Filter, override.Filter...)

	return merged
}

func filterField(clause Clause) string {
	switch c := clause.(type) {
	case Term:
		return c.Field
	case Range:
		return c.Field
	default:
		return ""
	}
}

// Render produces the full query body. An empty query renders match_all.
func (q Query) Render() map[string]any {
	if len(q.Must) == 0 && len(q.Filter) == 0 {
		return map[string]any{
			"query": map[string]any{"match_all": map[string]any{}},
		}
	}

	boolQuery := map[string]any{}
	if len(q.Must) > 0 {
		must := make([]map[string]any, 0, len(q.Must))
		for _, clause := range q.Must {
			must = append(must, clause.Render())
		}
		boolQuery["must"] = must
	}
	if len(q.Filter) > 0 {
		filter := make([]map[string]any, 0, len(q.Filter))
		for _, clause := range q.Filter {
			filter = append(filter, clause.Render())
		}
		boolQuery["filter"] = filter
	}

	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
	}
}
