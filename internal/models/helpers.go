package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// NormalizeKey folds an entity or topic name to its comparison key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeSet trims values, drops blanks, collapses case-insensitive
// duplicates keeping the first spelling, and sorts the result.
func NormalizeSet(values []string) []string {
	cleaned := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.Join(strings.Fields(v), " ")
		return v, v != ""
	})
	out := lo.UniqBy(cleaned, NormalizeKey)
	slices.SortFunc(out, func(a, b string) int {
		if c := strings.Compare(NormalizeKey(a), NormalizeKey(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if out == nil {
		out = []string{}
	}
	return out
}

// Keys returns the normalized keys of a set.
func Keys(values []string) []string {
	return lo.Map(values, func(v string, _ int) string { return NormalizeKey(v) })
}

// ContainsFold reports whether values holds target, ignoring case and spacing.
func ContainsFold(values []string, target string) bool {
	key := NormalizeKey(target)
	return slices.ContainsFunc(values, func(v string) bool { return NormalizeKey(v) == key })
}
