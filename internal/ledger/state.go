package ledger

// State is the lifecycle phase of the manager.
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateSyncing
	StateLive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoaded:
		return "loaded"
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	default:
		return "unknown"
	}
}
