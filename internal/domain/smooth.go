package domain

import "math"

// Smooth repairs reporting artifacts of a cumulative series in place and
// returns the number of values it changed. It runs three phases:
//
//   - internal holes: a zero between two positive values becomes their
//     midpoint, repeated until nothing changes;
//   - leading edge: in a single pass, a zero followed by a zero and then a
//     positive value gets the midpoint of its neighbours, e.g. [0 0 22] to
//     [0 11 22];
//   - dips: a value below its left neighbour whose right neighbour exceeds
//     both becomes their midpoint, repeated until nothing changes.
//
// Midpoints round half to even.
func Smooth(data []int64) int {
	fixes := 0
	for {
		n := 0
		for i := 0; i+2 < len(data); i++ {
			if data[i] > 0 && data[i+1] == 0 && data[i+2] > 0 {
				data[i+1] = midpoint(data[i], data[i+2])
				n++
			}
		}
		fixes += n
		if n == 0 {
			break
		}
	}

	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] > 0 {
			if m := midpoint(data[i], data[i+2]); m != 0 {
				data[i+1] = m
				fixes++
			}
		}
	}

	for {
		n := 0
		for i := 0; i+2 < len(data); i++ {
			if data[i] > data[i+1] && data[i+2] > data[i] && data[i+2] > data[i+1] {
				data[i+1] = midpoint(data[i], data[i+2])
				n++
			}
		}
		fixes += n
		if n == 0 {
			break
		}
	}
	return fixes
}

func midpoint(a, b int64) int64 {
	return int64(math.RoundToEven(float64(a+b) / 2))
}
