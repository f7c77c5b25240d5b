package pool

import (
	"fmt"
	"strings"
)

// Rotation selects which available member of a pool serves the next request.
type Rotation string

const (
	// RotationDrift indexes the currently available subset with a monotonic
	// counter. When availability changes between calls the position drifts
	// relative to the configured order.
	RotationDrift Rotation = "drift"

	// RotationStable walks the configured order with a cursor and skips
	// members that are unavailable.
	RotationStable Rotation = "stable"
)

// ParseRotation parses a rotation policy name. Empty selects RotationDrift.
func ParseRotation(value string) (Rotation, error) {
	switch Rotation(strings.ToLower(strings.TrimSpace(value))) {
	case "", RotationDrift:
		return RotationDrift, nil
	case RotationStable:
		return RotationStable, nil
	default:
		return "", fmt.Errorf("unknown rotation policy %q (expected drift or stable)", value)
	}
}

type rotator struct {
	policy  Rotation
	counter uint64
	cursor  int
}

// pick returns the index of the chosen member, or -1 when none is available.
// available is indexed in configured order.
func (r *rotator) pick(available []bool) int {
	if r.policy == RotationStable {
		return r.pickStable(available)
	}
	return r.pickDrift(available)
}

func (r *rotator) pickDrift(available []bool) int {
	filtered := make([]int, 0, len(available))
	for i, ok := range available {
		if ok {
			filtered = append(filtered, i)
		}
	}
	if len(filtered) == 0 {
		return -1
	}
	idx := filtered[r.counter%uint64(len(filtered))]
	r.counter++
	return idx
}

func (r *rotator) pickStable(available []bool) int {
	n := len(available)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		j := (r.cursor + i) % n
		if available[j] {
			r.cursor = (j + 1) % n
			return j
		}
	}
	return -1
}
