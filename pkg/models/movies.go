package models

import (
	"time"
)

// Role values carried by content.person_film_work.
const (
	RoleActor    = "actor"
	RoleDirector = "director"
	RoleWriter   = "writer"
)

// Film is a row of content.film_work.
type Film struct {
	ID           string     `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description,omitempty" db:"description"`
	CreationDate *time.Time `json:"creation_date,omitempty" db:"creation_date"`
	Rating       *float64   `json:"rating,omitempty" db:"rating"`
	Type         string     `json:"type" db:"type"`
	Created      time.Time  `json:"created" db:"created"`
	Modified     time.Time  `json:"modified" db:"modified"`
}

// Genre is a row of content.genre.
type Genre struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Created     time.Time `json:"created" db:"created"`
	Modified    time.Time `json:"modified" db:"modified"`
}

// Person is a row of content.person.
type Person struct {
	ID       string    `json:"id" db:"id"`
	FullName string    `json:"full_name" db:"full_name"`
	Gender   *string   `json:"gender,omitempty" db:"gender"`
	Created  time.Time `json:"created" db:"created"`
	Modified time.Time `json:"modified" db:"modified"`
}

// LinkRow is the slice of a join table the enrichers read: which film a
// relationship touches and when the relationship itself last changed. The
// join row's own modified timestamp is what detects relationship churn,
// independent of the parent film row.
type LinkRow struct {
	ID         string    `db:"id"`
	FilmWorkID string    `db:"film_work_id"`
	Modified   time.Time `db:"modified"`
}

// FilmDetailsRow is one flattened (film, genre, person-with-role) combination
// produced by the merger join, ready for grouping in the transform stage.
// Genre and person sides are nullable: a film can exist without either.
type FilmDetailsRow struct {
	FilmWorkID  string    `db:"fw_id"`
	Title       string    `db:"title"`
	Description *string   `db:"description"`
	Rating      *float64  `db:"rating"`
	Modified    time.Time `db:"modified"`

	GenreID   *string `db:"g_id"`
	GenreName *string `db:"genre_name"`

	PersonID       *string `db:"p_id"`
	PersonFullName *string `db:"full_name"`
	Role           *string `db:"role"`
}

// PersonFilmRow is one (person, film, role) combination for the person
// document path.
type PersonFilmRow struct {
	PersonID   string    `db:"p_id"`
	FullName   string    `db:"full_name"`
	FilmWorkID string    `db:"fw_id"`
	Role       string    `db:"role"`
	Modified   time.Time `db:"modified"`
}
