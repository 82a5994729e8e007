package processor

import (
	"fmt"
	"math"
	"sort"

	"optionflow/models"
)

// WindowSizeMismatch reports a window shorter than requested because the
// chain ran out of strikes on one side of the anchor.
type WindowSizeMismatch struct {
	Expected int
	Got      int
}

func (e *WindowSizeMismatch) Error() string {
	return fmt.Sprintf("window size mismatch: expected %d, got %d", e.Expected, e.Got)
}

// FindATM returns the index of the first row whose strike is closest to
// underlying, or -1 for an empty table.
func FindATM(table models.OptionChainTable, underlying float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i, row := range table {
		if diff := math.Abs(float64(row.Strike) - underlying); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// SelectWindow takes the ATM row, the `before` nearest strikes below it and
// the `after` nearest strikes above it, sorted descending. A short window is
// returned together with a *WindowSizeMismatch.
func SelectWindow(table models.OptionChainTable, underlying float64, before, after int) (models.Window, error) {
	before, after = max(before, 0), max(after, 0)
	anchor := FindATM(table, underlying)
	if anchor < 0 {
		return models.Window{}, nil
	}
	atm := table[anchor]

	var below, above []models.StrikeRow
	for _, row := range table {
		switch {
		case row.Strike < atm.Strike:
			below = append(below, row)
		case row.Strike > atm.Strike:
			above = append(above, row)
		}
	}
	sort.SliceStable(below, func(i, j int) bool { return below[i].Strike > below[j].Strike })
	sort.SliceStable(above, func(i, j int) bool { return above[i].Strike < above[j].Strike })
	if len(below) > before {
		below = below[:before]
	}
	if len(above) > after {
		above = above[:after]
	}

	window := make(models.Window, 0, len(below)+len(above)+1)
	window = append(window, above...)
	window = append(window, atm)
	window = append(window, below...)
	window.SortDescending()

	if expected := before + after + 1; len(window) != expected {
		return window, &WindowSizeMismatch{Expected: expected, Got: len(window)}
	}
	return window, nil
}
