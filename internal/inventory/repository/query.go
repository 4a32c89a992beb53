package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// limitOffset normalises page/perPage into LIMIT and OFFSET values
func limitOffset(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	if page < 1 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

// where accumulates AND-ed conditions with positional arguments
type where struct {
	conds []string
	args  []interface{}
}

// add appends a condition; each ? in cond is replaced by the next $n placeholder
func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// next returns the placeholder for an extra trailing argument
func (w *where) next(arg interface{}) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// likePattern escapes LIKE wildcards in s and wraps it for substring matching
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// isUUID reports whether id can match a UUID column. Filters on anything else
// match no rows, which is what the memory store returns too.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
