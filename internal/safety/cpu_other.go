//go:build !linux

package safety

// cpuSampler on non-linux platforms cannot read aggregate CPU time without
// cgo; it always reports "unknown" and the resource check passes on memory
// alone.
type cpuSampler struct{}

func (s *cpuSampler) Sample() (float64, error) {
	return -1, nil
}
