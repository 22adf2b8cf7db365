package portalloc

import "iter"

// Range returns the inclusive sequence from..to. Bounds are validated
// before anything is yielded; the returned sequence can be ranged over
// any number of times.
func Range(from, to int) (iter.Seq[int], error) {
	if from < minPort || from > maxPort {
		return nil, &RangeError{Bound: "from", Value: from, Msg: "must be between 1024 and 65535"}
	}
	if to < minPort || to > maxPort {
		return nil, &RangeError{Bound: "to", Value: to, Msg: "must be between 1024 and 65535"}
	}
	if from > to {
		return nil, &RangeError{Bound: "to", Value: to, Msg: "must be greater than or equal to `from`"}
	}

	return func(yield func(int) bool) {
		for port := from; port <= to; port++ {
			if !yield(port) {
				return
			}
		}
	}, nil
}
