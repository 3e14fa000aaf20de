package logging

// ProgressSampler throttles repetitive progress lines. It reports true when
// the completed fraction crosses a new bucket or the phase label changes.
type ProgressSampler struct {
	bucketPercent float64
	phase         string
	bucket        int
}

// NewProgressSampler returns a sampler emitting every bucketPercent percent
// (10 when non-positive).
func NewProgressSampler(bucketPercent float64) *ProgressSampler {
	if bucketPercent <= 0 {
		bucketPercent = 10
	}
	return &ProgressSampler{bucketPercent: bucketPercent, bucket: -1}
}

// ShouldLog reports whether done/total in phase deserves a log line. A
// non-positive total only emits on phase changes.
func (s *ProgressSampler) ShouldLog(phase string, done, total int) bool {
	if s == nil {
		return true
	}
	emit := false
	if phase != s.phase {
		s.phase = phase
		s.bucket = -1
		emit = true
	}
	if total <= 0 {
		return emit
	}
	if done > total {
		done = total
	}
	percent := float64(done) * 100 / float64(total)
	bucket := int(percent / s.bucketPercent)
	if bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}
