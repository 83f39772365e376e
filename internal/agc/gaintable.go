package agc

import (
	"errors"
	"fmt"
	"sort"
)

var ErrGainTableTooSmall = errors.New("agc: at least two supported gains are required")

// GainTable holds the supported hardware gains in tenths of dB, ascending,
// and the index currently applied. Index 0 is never selected by the AGC.
type GainTable struct {
	gains []int
	index int
}

// NewGainTable copies and sorts gains and starts in the middle of the table.
func NewGainTable(gains []int) (*GainTable, error) {
	if len(gains) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrGainTableTooSmall, len(gains))
	}
	g := append([]int(nil), gains...)
	sort.Ints(g)
	return &GainTable{gains: g, index: len(g) / 2}, nil
}

func (t *GainTable) Count() int {
	return len(t.gains)
}

func (t *GainTable) Index() int {
	return t.index
}

// Gain returns the gain at the current index.
func (t *GainTable) Gain() int {
	return t.gains[t.index]
}

func (t *GainTable) GainAt(index int) int {
	return t.gains[index]
}

// Next returns the index a step would land on, clamped to [1, count-1].
func (t *GainTable) Next(step GainStep) int {
	next := t.index + int(step)
	if next < 1 {
		next = 1
	}
	if next > len(t.gains)-1 {
		next = len(t.gains) - 1
	}
	return next
}

// SetIndex moves the table to index, clamped to the AGC range.
func (t *GainTable) SetIndex(index int) {
	if index < 1 {
		index = 1
	}
	if index > len(t.gains)-1 {
		index = len(t.gains) - 1
	}
	t.index = index
}
