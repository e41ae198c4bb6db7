package hsm

// StateID identifies a state within a single Machine. It must be comparable
// (usable as a map key) — small integers, string constants, or any other
// comparable value all work, the same way qmuntal/stateless treats its
// State/Trigger types as plain comparable values rather than a fixed enum.
type StateID = any

// EventID identifies the kind of an Event. Like StateID, any comparable
// value works.
type EventID = any

// Args carries the opaque payload delivered alongside an event to guards,
// actions, and entry/exit hooks. The runtime never inspects it.
type Args = any

// Event is a pending (or in-flight) event: an identifier plus its argument
// payload. Event values are immutable once constructed.
type Event struct {
	ID   EventID
	Args Args
}

// NewEvent constructs an Event carrying the given payload.
func NewEvent(id EventID, args Args) Event {
	return Event{ID: id, Args: args}
}

// HistoryKind selects how a composite state's history pseudostate behaves
// on re-entry.
type HistoryKind int

const (
	// HistoryNone means the state has no history: re-entry always goes
	// through the initial substate.
	HistoryNone HistoryKind = iota
	// HistoryShallow remembers only the most recently active direct child.
	HistoryShallow
	// HistoryDeep remembers the full descendant leaf that was active.
	HistoryDeep
)

func (h HistoryKind) String() string {
	switch h {
	case HistoryShallow:
		return "shallow"
	case HistoryDeep:
		return "deep"
	default:
		return "none"
	}
}
