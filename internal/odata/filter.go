// Package odata builds OData-style filter predicates for ERP queries.
package odata

import (
	"strings"

	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// Op returns a logical or comparison operator padded with spaces.
func Op(op string) string {
	return " " + op + " "
}

// Quote renders a string literal, doubling embedded single quotes.
func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Eq returns a single equality clause.
func Eq(field, value string) string {
	return field + Op("eq") + Quote(value)
}

// EqualityOr builds "field eq 'v1' or field eq 'v2' ..." over values.
// A single value yields one clause with no trailing operator.
func EqualityOr(field string, values []string) (string, error) {
	if len(values) == 0 {
		return "", port.ErrEmptyFilter
	}
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(Op("or"))
		}
		b.WriteString(Eq(field, v))
	}
	return b.String(), nil
}

// Builder accumulates distinct values per origin while a similarity row is
// walked, then renders one filter per origin.
type Builder struct {
	order  []string
	values map[string][]string
	seen   map[string]map[string]bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		values: make(map[string][]string),
		seen:   make(map[string]map[string]bool),
	}
}

// Add records value for origin. Repeated values are kept once.
func (b *Builder) Add(origin, value string) {
	if _, ok := b.seen[origin]; !ok {
		b.seen[origin] = make(map[string]bool)
		b.order = append(b.order, origin)
	}
	if b.seen[origin][value] {
		return
	}
	b.seen[origin][value] = true
	b.values[origin] = append(b.values[origin], value)
}

// Origins returns the origins in the order they were first seen.
func (b *Builder) Origins() []string {
	return b.order
}

// Filter renders the predicate for one origin using field as the key.
func (b *Builder) Filter(origin, field string) (string, error) {
	return EqualityOr(field, b.values[origin])
}
