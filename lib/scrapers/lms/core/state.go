package core

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	// StateUnknown is the state of a restored session that has not been
	// checked yet.
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateUnknown:
		return "unknown"
	}
	return "invalid"
}
