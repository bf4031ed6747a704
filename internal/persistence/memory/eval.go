package memory

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"txrepo/internal/persistence"
)

// ErrUnsupportedPredicate is returned for predicates the memory store cannot
// evaluate, such as raw SQL expressions.
var ErrUnsupportedPredicate = errors.New("memory: unsupported predicate")

type record map[string]any

func newRecord(columns []string, row []any) record {
	rec := make(record, len(columns))
	for i, c := range columns {
		if i < len(row) {
			rec[c] = row[i]
		}
	}
	return rec
}

func (r record) get(column string) (any, error) {
	v, ok := r[column]
	if !ok {
		return nil, fmt.Errorf("memory: unknown column %q", column)
	}
	return v, nil
}

type candidate[T any] struct {
	entity  T
	rec     record
	tracked bool
}

func matchAll(preds []squirrel.Sqlizer, rec record) (bool, error) {
	for _, p := range preds {
		ok, err := evaluate(p, rec)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evaluate(pred squirrel.Sqlizer, rec record) (bool, error) {
	switch p := pred.(type) {
	case squirrel.Eq:
		return eachColumn(p, rec, equalOrIn)
	case squirrel.NotEq:
		return eachColumn(p, rec, func(actual, expected any) (bool, error) {
			ok, err := equalOrIn(actual, expected)
			return !ok, err
		})
	case squirrel.Lt:
		return eachColumn(p, rec, ordered(func(c int) bool { return c < 0 }))
	case squirrel.LtOrEq:
		return eachColumn(p, rec, ordered(func(c int) bool { return c <= 0 }))
	case squirrel.Gt:
		return eachColumn(p, rec, ordered(func(c int) bool { return c > 0 }))
	case squirrel.GtOrEq:
		return eachColumn(p, rec, ordered(func(c int) bool { return c >= 0 }))
	case squirrel.Like:
		return eachColumn(p, rec, like)
	case squirrel.NotLike:
		return eachColumn(p, rec, func(actual, pattern any) (bool, error) {
			ok, err := like(actual, pattern)
			if actual == nil {
				return false, err
			}
			return !ok, err
		})
	case squirrel.And:
		for _, sub := range p {
			ok, err := evaluate(sub, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case squirrel.Or:
		for _, sub := range p {
			ok, err := evaluate(sub, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedPredicate, pred)
	}
}

func eachColumn(m map[string]any, rec record, fn func(actual, expected any) (bool, error)) (bool, error) {
	for col, expected := range m {
		actual, err := rec.get(col)
		if err != nil {
			return false, err
		}
		ok, err := fn(actual, expected)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// equalOrIn follows squirrel.Eq rendering: nil is IS NULL, a slice is IN.
func equalOrIn(actual, expected any) (bool, error) {
	if expected == nil {
		return actual == nil, nil
	}
	if actual == nil {
		return false, nil
	}
	ev := reflect.ValueOf(expected)
	if (ev.Kind() == reflect.Slice || ev.Kind() == reflect.Array) && ev.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < ev.Len(); i++ {
			c, err := compareValues(actual, ev.Index(i).Interface())
			if err != nil {
				return false, err
			}
			if c == 0 {
				return true, nil
			}
		}
		return false, nil
	}
	c, err := compareValues(actual, expected)
	return c == 0, err
}

func ordered(accept func(int) bool) func(actual, expected any) (bool, error) {
	return func(actual, expected any) (bool, error) {
		if actual == nil || expected == nil {
			return false, nil
		}
		c, err := compareValues(actual, expected)
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}
}

func like(actual, pattern any) (bool, error) {
	if actual == nil {
		return false, nil
	}
	s, ok := actual.(string)
	if !ok {
		return false, fmt.Errorf("memory: LIKE on non-string value %T", actual)
	}
	p, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("memory: LIKE pattern must be a string, got %T", pattern)
	}
	re, err := likePattern(p)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

func likePattern(p string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^(?s:")
	for _, r := range p {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(")$")
	return regexp.Compile(b.String())
}

// compareValues orders two column values of compatible kinds.
func compareValues(a, b any) (int, error) {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("memory: cannot compare %T with %T", a, b)
		}
		return at.Compare(bt), nil
	}

	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case isInt(av) && isInt(bv):
		return cmp3(av.Int(), bv.Int()), nil
	case isNumeric(av) && isNumeric(bv):
		return cmp3(toFloat(av), toFloat(bv)), nil
	case av.Kind() == reflect.String && bv.Kind() == reflect.String:
		return strings.Compare(av.String(), bv.String()), nil
	case av.Kind() == reflect.Bool && bv.Kind() == reflect.Bool:
		x, y := av.Bool(), bv.Bool()
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	}
	return 0, fmt.Errorf("memory: cannot compare %T with %T", a, b)
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isNumeric(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return isInt(v)
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isInt(v):
		return float64(v.Int())
	case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
		return v.Float()
	default:
		return float64(v.Uint())
	}
}

func cmp3[N int64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

type orderTerm struct {
	column string
	desc   bool
}

func parseOrdering(terms []string, columns []string) ([]orderTerm, error) {
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	out := make([]orderTerm, 0, len(terms))
	for _, t := range terms {
		parts := strings.Fields(t)
		if len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("memory: invalid ordering %q", t)
		}
		if !known[parts[0]] {
			return nil, fmt.Errorf("memory: unknown column %q", parts[0])
		}
		term := orderTerm{column: parts[0]}
		if len(parts) == 2 {
			switch strings.ToUpper(parts[1]) {
			case "ASC":
			case "DESC":
				term.desc = true
			default:
				return nil, fmt.Errorf("memory: invalid ordering %q", t)
			}
		}
		out = append(out, term)
	}
	return out, nil
}

// sortCandidates sorts in place. NULLs sort first.
func sortCandidates[T any](cs []candidate[T], terms []string, columns []string) error {
	if len(terms) == 0 {
		return nil
	}
	order, err := parseOrdering(terms, columns)
	if err != nil {
		return err
	}
	var cmpErr error
	sort.SliceStable(cs, func(i, j int) bool {
		for _, t := range order {
			a, b := cs[i].rec[t.column], cs[j].rec[t.column]
			var c int
			switch {
			case a == nil && b == nil:
				c = 0
			case a == nil:
				c = -1
			case b == nil:
				c = 1
			default:
				var err error
				c, err = compareValues(a, b)
				if err != nil && cmpErr == nil {
					cmpErr = err
				}
			}
			if t.desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return cmpErr
}

func paginate[T any](cs []candidate[T], q *persistence.Query[T]) []candidate[T] {
	offset := q.OffsetValue()
	if offset >= uint64(len(cs)) {
		return nil
	}
	cs = cs[offset:]
	if limit, ok := q.LimitValue(); ok && limit < uint64(len(cs)) {
		cs = cs[:limit]
	}
	return cs
}
