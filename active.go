package hsm

import "sync"

// ActiveMachine is the asynchronous dispatcher variant: a dedicated
// worker goroutine drains the queue, so Send always returns immediately and
// no caller-supplied callback ever runs on a Send caller's goroutine. Events
// are processed strictly in Send order; a callback's own Send calls are
// queued after whatever was already pending.
type ActiveMachine struct {
	*core
	queue   *eventQueue
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewActiveMachine creates an empty, unwired active machine. Build the
// state tree with CreateState/AddSubstate/SetInitialSubstate/AddTransition,
// then call Initialize, which also starts the worker goroutine.
func NewActiveMachine() *ActiveMachine {
	return &ActiveMachine{core: newCore(), queue: newEventQueue()}
}

// Initialize validates the tree rooted at root, drills into the initial
// leaf running entry actions top-down, and starts the worker goroutine that
// will drain Send'd events from then on.
func (m *ActiveMachine) Initialize(root *State) error {
	if err := m.core.initialize(root); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.wg.Add(1)
	go m.run()
	return nil
}

// Send enqueues (event, args) and returns immediately; the worker goroutine
// processes it asynchronously. It fails with ErrNotInitialized if the
// machine has not been Initialize'd (and so has no worker running) yet.
func (m *ActiveMachine) Send(event EventID, args Args) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	m.queue.push(Event{ID: event, Args: args})
	return nil
}

// Stop signals the worker to shut down. Events already queued are still
// drained before the worker exits; Stop blocks until it has joined.
func (m *ActiveMachine) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return
	}
	m.queue.close()
	m.wg.Wait()
}

func (m *ActiveMachine) run() {
	defer m.wg.Done()
	for {
		e, ok := m.queue.popOne()
		if !ok {
			m.logger.Debug("active worker draining, queue closed")
			return
		}
		m.dispatchOne(e)
	}
}
