package hsm

// PassiveMachine is the synchronous/cooperative dispatcher variant:
// Send only enqueues, and nothing runs until the caller explicitly invokes
// Execute on its own goroutine. Reentrant Send calls made from inside a
// guard/action/entry/exit/subscriber callback append to the same queue and
// are drained within the same Execute call, in FIFO order.
type PassiveMachine struct {
	*core
	queue *eventQueue
}

// NewPassiveMachine creates an empty, unwired passive machine. Build the
// state tree with CreateState/AddSubstate/SetInitialSubstate/AddTransition,
// then call Initialize.
func NewPassiveMachine() *PassiveMachine {
	return &PassiveMachine{core: newCore(), queue: newEventQueue()}
}

// Initialize validates the tree rooted at root and drills into the initial
// leaf, running entry actions top-down.
func (m *PassiveMachine) Initialize(root *State) error {
	return m.core.initialize(root)
}

// Send enqueues (event, args) for later processing by Execute. It never
// blocks and never runs a transition itself. It fails with
// ErrNotInitialized if the machine has not been Initialize'd yet.
func (m *PassiveMachine) Send(event EventID, args Args) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.queue.push(Event{ID: event, Args: args})
	return nil
}

// Execute drains the queue on the calling goroutine, running the dispatch
// engine once per pending event until the queue is empty — including events
// reentrantly enqueued by the dispatches it runs along the way.
func (m *PassiveMachine) Execute() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	for {
		pending := m.queue.popAll()
		if len(pending) == 0 {
			return nil
		}
		for _, e := range pending {
			m.dispatchOne(e)
		}
	}
}
