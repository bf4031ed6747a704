package persistence

import "github.com/Masterminds/squirrel"

// Query is a structured, predicate-based selection over entities of type T.
// Predicates use the squirrel vocabulary (squirrel.Eq, squirrel.Lt,
// squirrel.And, ...) and are ANDed together.
type Query[T any] struct {
	where    []squirrel.Sqlizer
	orderBy  []string
	limit    uint64
	hasLimit bool
	offset   uint64
}

// NewQuery returns an unfiltered query selecting every entity of type T.
func NewQuery[T any]() *Query[T] {
	return &Query[T]{}
}

// Where adds a predicate.
func (q *Query[T]) Where(pred squirrel.Sqlizer) *Query[T] {
	if pred != nil {
		q.where = append(q.where, pred)
	}
	return q
}

// OrderBy adds ordering terms such as "created_at DESC".
func (q *Query[T]) OrderBy(terms ...string) *Query[T] {
	q.orderBy = append(q.orderBy, terms...)
	return q
}

// Limit caps the number of results.
func (q *Query[T]) Limit(n uint64) *Query[T] {
	q.limit = n
	q.hasLimit = true
	return q
}

// Offset skips the first n results.
func (q *Query[T]) Offset(n uint64) *Query[T] {
	q.offset = n
	return q
}

func (q *Query[T]) Predicates() []squirrel.Sqlizer { return q.where }

func (q *Query[T]) Ordering() []string { return q.orderBy }

// LimitValue returns the limit and whether one was set.
func (q *Query[T]) LimitValue() (uint64, bool) { return q.limit, q.hasLimit }

func (q *Query[T]) OffsetValue() uint64 { return q.offset }
