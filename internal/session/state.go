package session

import "sort"

// AuthState is the handshake state of a session.
type AuthState int

const (
	StateConnecting AuthState = iota
	StateAwaitingHandshake
	StateAuthenticated
	// StateRegistered follows a successful register handshake. The account
	// exists but this connection is not logged in.
	StateRegistered
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateAuthenticated:
		return "authenticated"
	case StateRegistered:
		return "registered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Roster partitions known usernames into online and offline. A name is in
// at most one of the two sets.
type Roster struct {
	online  map[string]struct{}
	offline map[string]struct{}
}

// NewRoster builds a roster from a server snapshot. A name listed in both
// slices ends up online.
func NewRoster(online, offline []string) *Roster {
	r := &Roster{
		online:  make(map[string]struct{}, len(online)),
		offline: make(map[string]struct{}, len(offline)),
	}
	for _, name := range offline {
		r.SetOffline(name)
	}
	for _, name := range online {
		r.SetOnline(name)
	}
	return r
}

func (r *Roster) SetOnline(name string) {
	delete(r.offline, name)
	r.online[name] = struct{}{}
}

func (r *Roster) SetOffline(name string) {
	delete(r.online, name)
	r.offline[name] = struct{}{}
}

func (r *Roster) IsOnline(name string) bool {
	_, ok := r.online[name]
	return ok
}

// Online returns the online names in sorted order.
func (r *Roster) Online() []string { return sortedKeys(r.online) }

// Offline returns the offline names in sorted order.
func (r *Roster) Offline() []string { return sortedKeys(r.offline) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
