// Package transform reshapes flattened relational rows into search-index
// documents. It does no I/O and sorts every emitted list by id (names by
// value) so repeated runs over an unchanged source produce byte-identical
// documents.
package transform

import (
	"sort"

	"github.com/Ramsey-B/moss/pkg/models"
)

type filmAccumulator struct {
	title       string
	description *string
	rating      *float64

	genres    map[string]string            // genre id -> name
	byRole    map[string]map[string]string // role -> person id -> name
}

// FilmDocuments groups flattened join rows by film id. A person holding
// several roles on the same film lands in each matching role list; the
// role sets are not mutually exclusive.
func FilmDocuments(rows []models.FilmDetailsRow) map[string]models.FilmDocument {
	grouped := map[string]*filmAccumulator{}

	for _, row := range rows {
		acc, ok := grouped[row.FilmWorkID]
		if !ok {
			acc = &filmAccumulator{
				genres: map[string]string{},
				byRole: map[string]map[string]string{
					models.RoleActor:    {},
					models.RoleWriter:   {},
					models.RoleDirector: {},
				},
			}
			grouped[row.FilmWorkID] = acc
		}

		acc.title = row.Title
		acc.description = row.Description
		acc.rating = row.Rating

		if row.GenreID != nil && row.GenreName != nil {
			acc.genres[*row.GenreID] = *row.GenreName
		}
		if row.PersonID != nil && row.PersonFullName != nil && row.Role != nil {
			if persons, ok := acc.byRole[*row.Role]; ok {
				persons[*row.PersonID] = *row.PersonFullName
			}
		}
	}

	documents := make(map[string]models.FilmDocument, len(grouped))
	for filmID, acc := range grouped {
		genreFull := sortedRefsGenre(acc.genres)
		actors := sortedRefs(acc.byRole[models.RoleActor])
		writers := sortedRefs(acc.byRole[models.RoleWriter])
		directors := sortedRefs(acc.byRole[models.RoleDirector])

		documents[filmID] = models.FilmDocument{
			ID:             filmID,
			Rating:         acc.rating,
			Title:          acc.title,
			Description:    acc.description,
			Genre:          sortedNamesGenre(genreFull),
			GenreFull:      genreFull,
			Actors:         actors,
			Writers:        writers,
			Directors:      directors,
			ActorsNames:    names(actors),
			WritersNames:   names(writers),
			DirectorsNames: names(directors),
		}
	}
	return documents
}

// GenreDocuments projects raw genre rows into genres-index documents.
func GenreDocuments(genres []models.Genre) map[string]models.GenreDocument {
	documents := make(map[string]models.GenreDocument, len(genres))
	for _, g := range genres {
		documents[g.ID] = models.GenreDocument{
			ID:   g.ID,
			Name: g.Name,
		}
	}
	return documents
}

// PersonDocuments groups person rows by person id, deduplicating film ids
// across roles: a person acting and writing on the same film lists that
// film once.
func PersonDocuments(rows []models.PersonFilmRow) map[string]models.PersonDocument {
	type acc struct {
		fullName string
		films    map[string]struct{}
	}
	grouped := map[string]*acc{}

	for _, row := range rows {
		a, ok := grouped[row.PersonID]
		if !ok {
			a = &acc{films: map[string]struct{}{}}
			grouped[row.PersonID] = a
		}
		a.fullName = row.FullName
		a.films[row.FilmWorkID] = struct{}{}
	}

	documents := make(map[string]models.PersonDocument, len(grouped))
	for personID, a := range grouped {
		films := make([]string, 0, len(a.films))
		for filmID := range a.films {
			films = append(films, filmID)
		}
		sort.Strings(films)

		documents[personID] = models.PersonDocument{
			ID:       personID,
			FullName: a.fullName,
			Films:    films,
		}
	}
	return documents
}

func sortedRefs(byID map[string]string) []models.PersonRef {
	refs := make([]models.PersonRef, 0, len(byID))
	for id, name := range byID {
		refs = append(refs, models.PersonRef{ID: id, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func sortedRefsGenre(byID map[string]string) []models.GenreRef {
	refs := make([]models.GenreRef, 0, len(byID))
	for id, name := range byID {
		refs = append(refs, models.GenreRef{ID: id, Name: name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func names(refs []models.PersonRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Name)
	}
	sort.Strings(out)
	return out
}

func sortedNamesGenre(refs []models.GenreRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Name)
	}
	sort.Strings(out)
	return out
}
