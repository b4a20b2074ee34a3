package database

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/moss/pkg/models"
)

// PostgreSQL-flavored builders so repositories get $N placeholders without
// repeating the flavor at every call site.

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

type Struct struct {
	*sqlbuilder.Struct
}

func (s *Struct) SelectFrom(table string) *SelectBuilder {
	return &SelectBuilder{s.Struct.SelectFrom(table)}
}

func NewStruct(v any) *Struct {
	builder := sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)
	return &Struct{builder}
}

// WhereCursor appends the keyset condition over (modifiedExpr, idExpr). An
// empty cursor id is the run boundary: strictly past the modified mark, so a
// fully drained backlog does not re-match its newest row on the next run.
// Within a drain the cursor carries the last row's id, and the tuple compare
// keeps identical timestamps at a batch boundary from skipping rows.
func (sb *SelectBuilder) WhereCursor(modifiedExpr, idExpr string, cursor models.Cursor) {
	if cursor.ID == "" {
		sb.Where(fmt.Sprintf("%s > %s", modifiedExpr, sb.Var(cursor.Modified)))
		return
	}
	sb.Where(fmt.Sprintf("(%s, %s) > (%s, %s)", modifiedExpr, idExpr, sb.Var(cursor.Modified), sb.Var(cursor.ID)))
}
