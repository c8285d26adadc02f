package alert

import "golang.org/x/time/rate"

type sampleSink struct {
	kinds   map[Kind]struct{}
	limiter *rate.Limiter
	next    Sink
}

// SampleMiddleware rate limits alerts of the given kinds so that a flood of
// per-request denials cannot flood the sink. Other kinds pass through
// untouched.
func SampleMiddleware(perSecond float64, burst int, kinds ...Kind) SinkMiddleware {
	ks := make(map[Kind]struct{}, len(kinds))

	for _, k := range kinds {
		ks[k] = struct{}{}
	}

	return func(next Sink) Sink {
		return &sampleSink{
			kinds:   ks,
			limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
			next:    next,
		}
	}
}

func (s *sampleSink) Raise(a *Alert) error {
	if _, ok := s.kinds[a.Kind]; ok && !s.limiter.Allow() {
		return nil
	}

	return s.next.Raise(a)
}
