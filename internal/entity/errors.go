package entity

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError lists schema violations keyed by field path.
type ValidationError struct {
	Fields map[string]string
}

// Add records a violation for field.
func (e *ValidationError) Add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
}

// OrNil returns e when it holds violations, otherwise nil.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "order validation failed: " + strings.Join(parts, ", ")
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items.%d.%s", i, name)
}
