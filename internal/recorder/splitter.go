package recorder

// Splitter arms periodic statistics checkpoints every FrequencyKm of
// recorded length. A zero frequency disables automatic splits; manual
// checkpoint insertion is unaffected.
type Splitter struct {
	FrequencyKm float64

	nextSplitM float64
}

// Rearm computes the next split boundary from the current recorded length,
// both at track start and after crash recovery.
func (s *Splitter) Rearm(lengthM float64) {
	if s.FrequencyKm <= 0 {
		s.nextSplitM = 0
		return
	}
	freqM := s.FrequencyKm * 1000
	splits := int(lengthM/freqM) + 1
	s.nextSplitM = float64(splits) * freqM
}

// Crossed reports whether the recorded length passed the armed boundary and
// advances it. The caller inserts the checkpoint marker.
func (s *Splitter) Crossed(lengthM float64) bool {
	if s.FrequencyKm <= 0 || s.nextSplitM <= 0 {
		return false
	}
	if lengthM < s.nextSplitM {
		return false
	}
	s.nextSplitM += s.FrequencyKm * 1000
	return true
}
