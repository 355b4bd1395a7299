// Package watch holds the allow-list of channels eligible for processing.
package watch

// Set is an immutable set of channel identifiers. It is built once at
// startup and read concurrently without locking.
type Set struct {
	channels map[string]struct{}
}

func NewSet(channels []string) *Set {
	m := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		if c == "" {
			continue
		}
		m[c] = struct{}{}
	}
	return &Set{channels: m}
}

// Keep reports whether a record from the given channel should be processed.
func (s *Set) Keep(channelID string) bool {
	_, ok := s.channels[channelID]
	return ok
}

// Size returns the number of watched channels.
func (s *Set) Size() int {
	return len(s.channels)
}
