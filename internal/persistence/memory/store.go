// Package memory provides an in-process persistence context backed by a
// shared row store. Rows are value snapshots taken through the entity Mapper,
// so mutating an entity only reaches the store when its write is committed.
package memory

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"txrepo/internal/persistence"
)

var (
	ErrDuplicateKey    = errors.New("memory: duplicate key")
	ErrRowNotFound     = errors.New("memory: row not found")
	ErrAlreadyAttached = errors.New("memory: another instance with this key is attached")
	ErrNotAttached     = errors.New("memory: entity is not attached")
	ErrTxActive        = errors.New("memory: transaction already active")
	ErrTxNotActive     = errors.New("memory: no active transaction")
	ErrContextClosed   = errors.New("memory: context is closed")
)

// Store is the backing row store shared by every Context created from it.
// It is safe for concurrent use.
type Store[T persistence.Identifiable[K], K comparable] struct {
	mapper persistence.Mapper[T, K]

	mu    sync.RWMutex
	rows  map[K][]any
	order []K
	seq   int64
}

// NewStore creates an empty store for the entity kind described by mapper.
func NewStore[T persistence.Identifiable[K], K comparable](mapper persistence.Mapper[T, K]) *Store[T, K] {
	return &Store[T, K]{
		mapper: mapper,
		rows:   make(map[K][]any),
	}
}

// NewContext opens a unit of work over the store.
func (s *Store[T, K]) NewContext() *Context[T, K] {
	return &Context[T, K]{
		store:   s,
		tracked: make(map[K]T),
	}
}

// Len returns the number of committed rows.
func (s *Store[T, K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store[T, K]) nextKey() (K, error) {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()

	k, ok := any(n).(K)
	if !ok {
		var zero K
		return zero, fmt.Errorf("memory: generated keys need an int64 key, got %T", zero)
	}
	return k, nil
}

// observeKey moves the sequence past an explicitly assigned key.
func (s *Store[T, K]) observeKey(key K) {
	n, ok := any(key).(int64)
	if !ok {
		return
	}
	s.mu.Lock()
	if n > s.seq {
		s.seq = n
	}
	s.mu.Unlock()
}

// snapshot returns the committed rows in insertion order.
func (s *Store[T, K]) snapshot() ([]K, map[K][]any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]K, len(s.order))
	copy(keys, s.order)
	rows := make(map[K][]any, len(s.rows))
	for k, v := range s.rows {
		rows[k] = v
	}
	return keys, rows
}

func (s *Store[T, K]) row(key K) ([]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[key]
	return r, ok
}

// apply validates and applies a journal atomically.
func (s *Store[T, K]) apply(journal []op[T, K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make(map[K][]any, len(s.rows)+len(journal))
	for k, v := range s.rows {
		rows[k] = v
	}
	order := make([]K, len(s.order))
	copy(order, s.order)

	for _, o := range journal {
		_, exists := rows[o.key]
		switch o.kind {
		case opInsert:
			if exists {
				return fmt.Errorf("%w: %v", ErrDuplicateKey, o.key)
			}
			rows[o.key] = s.values(o.entity)
			order = append(order, o.key)
		case opUpdate:
			if !exists {
				return fmt.Errorf("update %v: %w", o.key, ErrRowNotFound)
			}
			rows[o.key] = s.values(o.entity)
		case opDelete:
			if !exists {
				return fmt.Errorf("delete %v: %w", o.key, ErrRowNotFound)
			}
			delete(rows, o.key)
			order = removeKey(order, o.key)
		}
	}

	s.rows = rows
	s.order = order
	return nil
}

func (s *Store[T, K]) values(e T) []any {
	v := s.mapper.Values(e)
	out := make([]any, len(v))
	copy(out, v)
	return out
}

// materialize builds a fresh entity from a row.
func (s *Store[T, K]) materialize(row []any) (T, error) {
	e := s.mapper.New()
	fields := s.mapper.Fields(e)
	if len(fields) != len(row) {
		var zero T
		return zero, fmt.Errorf("memory: row has %d values, mapper has %d fields", len(row), len(fields))
	}
	for i, f := range fields {
		if err := assign(f, row[i]); err != nil {
			var zero T
			return zero, fmt.Errorf("column %s: %w", s.mapper.Columns()[i], err)
		}
	}
	return e, nil
}

func assign(dst, v any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("memory: scan target %T is not a pointer", dst)
	}
	target := dv.Elem()
	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("memory: cannot assign %T to %s", v, target.Type())
	}
	return nil
}

func removeKey[K comparable](keys []K, key K) []K {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
