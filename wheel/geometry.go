/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package wheel

import (
	"math"
)

const (
	fullTurn float64 = 360

	labelLimit      = 15
	labelLimitImage = 12
)

// Segment is one equal slice of the wheel as currently drawn.
// Start and End are in degrees after rotation is applied, normalized to
// [0, 360); End may be numerically smaller than Start when the slice
// wraps past zero.
type Segment struct {
	Index int
	Item  Item
	Start float64
	End   float64
	Mid   float64
	Label string
}

// SegmentSpan returns the angular width of each of n segments.
func SegmentSpan(n int) float64 {
	if n <= 0 {
		return 0
	}
	return fullTurn / float64(n)
}

// Normalize maps any angle in degrees onto [0, 360).
func Normalize(deg float64) float64 {
	r := math.Mod(deg, fullTurn)
	if r < 0 {
		r += fullTurn
	}
	// Adding 360 to a tiny negative remainder can round up to exactly 360.
	if r >= fullTurn {
		r = 0
	}
	return r
}

// Ease applies the ease-out curve 1-(1-p)^exp, clamping p to [0, 1].
func Ease(progress, exponent float64) float64 {
	switch {
	case progress <= 0:
		return 0
	case progress >= 1:
		return 1
	}
	return 1 - math.Pow(1-progress, exponent)
}

// Resolve returns the index of the segment under the pointer for a wheel of
// n segments turned by rotation degrees. Segment i covers the half-open span
// [i*360/n, (i+1)*360/n) before rotation, so a pointer sitting exactly on a
// boundary belongs to the segment that starts there. Returns -1 if n <= 0.
func Resolve(rotation float64, n int, pointer float64) int {
	if n <= 0 {
		return -1
	}
	normalized := Normalize(pointer - rotation)
	index := int(math.Floor(normalized / SegmentSpan(n)))
	return index % n
}

// Label shortens name for display inside a segment. Segments that also draw
// an image leave less room for text.
func Label(name string, hasImage bool) string {
	limit := labelLimit
	if hasImage {
		limit = labelLimitImage
	}
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	return string(runes[:limit]) + "..."
}

func segments(items []Item, rotation float64) []Segment {
	n := len(items)
	if n == 0 {
		return nil
	}
	span := SegmentSpan(n)
	out := make([]Segment, n)
	for i, item := range items {
		start := float64(i) * span
		out[i] = Segment{
			Index: i,
			Item:  item,
			Start: Normalize(start + rotation),
			End:   Normalize(start + span + rotation),
			Mid:   Normalize(start + span/2 + rotation),
			Label: Label(item.Name, item.Image != ""),
		}
	}
	return out
}
