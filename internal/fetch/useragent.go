package fetch

import "sync/atomic"

// UserAgentRotator hands out user agents round-robin. It is safe for
// concurrent use and shared by both tiers.
type UserAgentRotator struct {
	agents []string
	next   atomic.Uint64
}

// NewUserAgentRotator returns a rotator over agents, or over
// DefaultUserAgent when agents is empty.
func NewUserAgentRotator(agents []string) *UserAgentRotator {
	filtered := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != "" {
			filtered = append(filtered, a)
		}
	}
	if len(filtered) == 0 {
		filtered = []string{DefaultUserAgent}
	}
	return &UserAgentRotator{agents: filtered}
}

// Next returns the next user agent.
func (r *UserAgentRotator) Next() string {
	n := r.next.Add(1) - 1
	return r.agents[n%uint64(len(r.agents))]
}
