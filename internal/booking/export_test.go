package booking

import "time"

// SetNow overrides the service clock for tests.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}
