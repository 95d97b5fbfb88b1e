package core

import "formcore/internal/blob"

// ServiceOption configures optional collaborators of a Service.
type ServiceOption func(*Service)

// WithLogger installs a structured logger. Nil is ignored.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs an operation metrics recorder. Nil is ignored.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the clock used for export timestamps.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithAnonymousSubmissions allows identities without a user to submit responses.
func WithAnonymousSubmissions(allow bool) ServiceOption {
	return func(s *Service) {
		s.allowAnonymous = allow
	}
}

// WithArchive stores a copy of every CSV export in the given blob store.
func WithArchive(store blob.Store) ServiceOption {
	return func(s *Service) {
		s.archive = store
	}
}
