// Package tablesort orders already-fetched preview rows by one column. Cells
// are compared as formatted strings: numerically when both look numeric,
// chronologically when both parse as timestamps, otherwise by case-insensitive
// collation that understands embedded numbers ("file2" before "file10").
package tablesort

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Direction int

const (
	Unsorted Direction = iota
	Ascending
	Descending
)

var numericPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Comparer holds a collator, which keeps internal scratch buffers and is not
// safe for concurrent use.
type Comparer struct {
	collator *collate.Collator
}

func NewComparer() *Comparer {
	return &Comparer{collator: collate.New(language.Und, collate.IgnoreCase, collate.Numeric)}
}

// Compare is a total order over two formatted cells. Empty cells sort after
// non-empty ones; SortRows keeps that pinning independent of direction.
func (c *Comparer) Compare(a, b string) int {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" && b == "" {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}

	if numericPattern.MatchString(a) && numericPattern.MatchString(b) {
		av, aErr := strconv.ParseFloat(a, 64)
		bv, bErr := strconv.ParseFloat(b, 64)
		if aErr == nil && bErr == nil {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	}

	if hasDateHint(a) && hasDateHint(b) {
		at, aOK := parseTimestamp(a)
		bt, bOK := parseTimestamp(b)
		if aOK && bOK {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	result := c.collator.CompareString(a, b)
	switch {
	case result < 0:
		return -1
	case result > 0:
		return 1
	default:
		return 0
	}
}

// SortRows returns a stably sorted copy of rows by the given column. Empty
// cells stay last for both directions; Unsorted or an out-of-range column
// returns the rows in their original order.
func SortRows(rows [][]string, column int, direction Direction) [][]string {
	sorted := append([][]string(nil), rows...)
	if direction == Unsorted || column < 0 {
		return sorted
	}

	comparer := NewComparer()
	cell := func(row []string) string {
		if column >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[column])
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := cell(sorted[i]), cell(sorted[j])
		aEmpty, bEmpty := a == "", b == ""
		if aEmpty != bEmpty {
			return !aEmpty
		}
		if aEmpty {
			return false
		}
		result := comparer.Compare(a, b)
		if direction == Descending {
			result = -result
		}
		return result < 0
	})
	return sorted
}

// State is the workbench's single (column, direction) sort selection.
type State struct {
	Column    int       `json:"column"`
	Direction Direction `json:"direction"`
}

// Toggle cycles the state for a column: ascending, then descending, then
// unsorted. Activating a different column starts over at ascending.
func (s State) Toggle(column int) State {
	if s.Column != column || s.Direction == Unsorted {
		return State{Column: column, Direction: Ascending}
	}
	if s.Direction == Ascending {
		return State{Column: column, Direction: Descending}
	}
	return State{Column: column, Direction: Unsorted}
}

func hasDateHint(value string) bool {
	return strings.ContainsAny(value, "-:T")
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
