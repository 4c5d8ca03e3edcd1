// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package timeline

// BinarySearch returns the index of the last element of the ascending
// haystack that is <= needle, or -1 if there is none.
func BinarySearch(haystack []float64, needle float64) int {
	i, j := 0, len(haystack)
	for {
		switch {
		case i == j:
			return -1
		case i+1 == j:
			if needle >= haystack[i] {
				return i
			}
			return -1
		}
		mid := int(uint(i+j) >> 1)
		if needle < haystack[mid] {
			j = mid
		} else {
			i = mid
		}
	}
}

// Segment is a pair of neighbouring indices. -1 means there is no neighbour
// on that side.
type Segment struct {
	Left  int
	Right int
}

// SearchSegment returns the indices of the elements surrounding needle.
func SearchSegment(haystack []float64, needle float64) Segment {
	if len(haystack) == 0 {
		return Segment{-1, -1}
	}
	left := BinarySearch(haystack, needle)
	switch {
	case left == -1:
		return Segment{-1, 0}
	case left+1 == len(haystack):
		return Segment{left, -1}
	default:
		return Segment{left, left + 1}
	}
}
