package models

// PersonRef is a person sub-document inside a film document.
type PersonRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GenreRef is a genre sub-document inside a film document.
type GenreRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilmDocument is the denormalized movies-index document. Each run computes
// a fresh document and the loader replaces it whole; rating and description
// stay explicit nulls when the source has none.
type FilmDocument struct {
	ID             string      `json:"id"`
	Rating         *float64    `json:"imdb_rating"`
	Title          string      `json:"title"`
	Description    *string     `json:"description"`
	Genre          []string    `json:"genre"`
	GenreFull      []GenreRef  `json:"genre_full"`
	ActorsNames    []string    `json:"actors_names"`
	WritersNames   []string    `json:"writers_names"`
	DirectorsNames []string    `json:"directors_names"`
	Actors         []PersonRef `json:"actors"`
	Writers        []PersonRef `json:"writers"`
	Directors      []PersonRef `json:"directors"`
}

// GenreDocument is the genres-index document.
type GenreDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PersonDocument is the persons-index document. Films holds every film the
// person appears in under any role, each id exactly once.
type PersonDocument struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Films    []string `json:"films"`
}
