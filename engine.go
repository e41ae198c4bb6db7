package hsm

import (
	"fmt"
	"log/slog"
)

// core holds the structure and the per-machine mutable runtime data shared
// by both dispatcher variants: the state forest, the currently active leaf,
// and the lifecycle bus. It implements the single "run one dispatch"
// primitive that passive Execute and the active worker both call, so the
// engine itself is never duplicated.
type core struct {
	states      map[StateID]*State
	root        *State
	current     *State
	initialized bool

	bus    eventBus
	logger *slog.Logger
}

func newCore() *core {
	return &core{
		states: make(map[StateID]*State),
		logger: slog.Default(),
	}
}

// CreateState builds and registers a new state with this machine. It panics
// if id is already in use.
func (c *core) CreateState(id StateID, opts ...StateOption) *State {
	if _, exists := c.states[id]; exists {
		panic(stateIDConflict(id))
	}
	s := &State{id: id, owner: c}
	for _, opt := range opts {
		opt(s)
	}
	c.states[id] = s
	return s
}

// CurrentStateID returns the identifier of the currently active leaf state,
// or nil if the machine has not been initialized.
func (c *core) CurrentStateID() StateID {
	if c.current == nil {
		return nil
	}
	return c.current.id
}

// SubscribeBeginDispatch registers a callback for the BeginDispatch channel.
func (c *core) SubscribeBeginDispatch(f func(BeginDispatch)) { c.bus.subscribeBegin(f) }

// SubscribeTransitionDeclined registers a callback for the
// TransitionDeclined channel.
func (c *core) SubscribeTransitionDeclined(f func(TransitionDeclined)) { c.bus.subscribeDeclined(f) }

// SubscribeTransitionCompleted registers a callback for the
// TransitionCompleted channel.
func (c *core) SubscribeTransitionCompleted(f func(TransitionCompleted)) {
	c.bus.subscribeCompleted(f)
}

// SubscribeExceptionThrown registers a callback for the ExceptionThrown
// channel.
func (c *core) SubscribeExceptionThrown(f func(ExceptionThrown)) { c.bus.subscribeException(f) }

// initialize validates the tree rooted at root, then drills down to the
// initial leaf, running entry actions top-down starting at root itself.
// Exceptions raised by entry hooks are reported with
// MachineInitialized=false and do not stop the drill: the machine ends up
// at the deepest state reached regardless of whether its own entry
// succeeded.
func (c *core) initialize(root *State) error {
	if c.initialized {
		return ErrAlreadyInitialized
	}
	if root == nil || root.owner != c {
		panic("hsm: Initialize requires a state created by this machine")
	}
	if err := root.validate(make(map[*State]bool)); err != nil {
		return err
	}

	c.root = root
	e := Event{}
	cur := root
	for {
		c.enterDuringInit(cur, e)
		if cur.IsLeaf() {
			break
		}
		cur = nextOnEntry(cur)
	}
	c.current = cur
	c.initialized = true
	return nil
}

func (c *core) enterDuringInit(s *State, e Event) {
	if err := runCatching(s.entry, e); err != nil {
		c.bus.publishException(ExceptionThrown{
			Event: nil, Source: s.id, Args: e.Args,
			Err: err, MachineInitialized: false,
		})
	}
}

// nextOnEntry picks the child to descend into when entering composite state
// s for the first time: history is never populated yet, so this always
// follows the declared initial substate.
func nextOnEntry(s *State) *State {
	return s.initial
}

// dispatchOne runs exactly one event through the engine: resolve, then
// either the internal or the external transition chain, then commit.
func (c *core) dispatchOne(e Event) {
	sourceForBegin := c.current.id
	c.bus.publishBegin(BeginDispatch{Event: e.ID, Source: sourceForBegin, Args: e.Args})
	c.logger.Debug("dispatching event", "event", e.ID, "source", sourceForBegin)

	source, t, guardErrs := c.resolve(e)
	for _, gerr := range guardErrs {
		c.bus.publishException(ExceptionThrown{
			Event: e.ID, Source: sourceForBegin, Args: e.Args,
			Err: gerr, MachineInitialized: true,
		})
	}

	if t == nil {
		c.bus.publishDeclined(TransitionDeclined{Event: e.ID, Source: sourceForBegin, Args: e.Args})
		return
	}

	if t.isInternal() {
		c.runTransitionActions(t, e)
		c.bus.publishCompleted(TransitionCompleted{
			Event: e.ID, Source: source.id, Target: c.current.id, Args: e.Args,
		})
		return
	}

	c.runExternal(source, t, e)
	c.bus.publishCompleted(TransitionCompleted{
		Event: e.ID, Source: source.id, Target: c.current.id, Args: e.Args,
	})
}

// resolve walks upward from the current leaf through ancestors, returning
// the first state/transition pair whose guard passes for e.ID. A guard that
// panics is treated as false and its error is collected but does not stop
// the scan.
func (c *core) resolve(e Event) (source *State, matched *Transition, guardErrs []error) {
	for s := c.current; s != nil; s = s.parent {
		for _, t := range s.transitions[e.ID] {
			ok, err := t.evalGuard(e)
			if err != nil {
				guardErrs = append(guardErrs, err)
				continue
			}
			if ok {
				return s, t, guardErrs
			}
		}
	}
	return nil, nil, guardErrs
}

func (c *core) runTransitionActions(t *Transition, e Event) {
	for _, err := range t.runActions(e) {
		c.bus.publishException(ExceptionThrown{
			Event: e.ID, Source: t.source.id, Args: e.Args,
			Err: err, MachineInitialized: true,
		})
	}
}

// runExternal performs the exit chain, the transition's actions, the entry
// chain, and the post-entry drill for an external (possibly self-)
// transition. Every failure along the way is reported and the chain keeps
// going regardless: entry/exit failures never prevent TransitionCompleted
// from being published and never roll back the current-state update.
func (c *core) runExternal(source *State, t *Transition, e Event) {
	target := t.target
	lca := c.lcaForTransition(source, target)

	// Exit bottom-up from the current leaf up to (not including) lca.
	for s := c.current; s != nil && s != lca; s = s.parent {
		if err := runCatching(s.exit, e); err != nil {
			c.bus.publishException(ExceptionThrown{
				Event: e.ID, Source: s.id, Args: e.Args,
				Err: err, MachineInitialized: true,
			})
		}
		if s.parent != nil && s.parent.history != HistoryNone {
			if s.parent.history == HistoryDeep {
				s.parent.historySlot = c.current
			} else {
				s.parent.historySlot = s
			}
		}
	}

	c.runTransitionActions(t, e)

	// Enter top-down from just below lca down to target (inclusive).
	for _, s := range entryPath(lca, target) {
		if err := runCatching(s.entry, e); err != nil {
			c.bus.publishException(ExceptionThrown{
				Event: e.ID, Source: s.id, Args: e.Args,
				Err: err, MachineInitialized: true,
			})
		}
	}

	c.current = c.drill(target, e)
}

// lcaForTransition returns the lowest common ancestor used to compute the
// exit/entry chains. For an external self-transition (source == target) the
// LCA is defined as source's parent, not source itself, so that source is
// exited and re-entered rather than left untouched.
func (c *core) lcaForTransition(source, target *State) *State {
	if source == target {
		return source.parent
	}
	return lowestCommonAncestor(source, target)
}

// lowestCommonAncestor walks both ancestor chains from the root down,
// comparing state-by-state, rather than testing repeated ancestor-set
// membership.
func lowestCommonAncestor(a, b *State) *State {
	pa, pb := ancestorPathFromRoot(a), ancestorPathFromRoot(b)
	var lca *State
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			break
		}
		lca = pa[i]
	}
	return lca
}

// ancestorPathFromRoot returns [root, ..., s], s inclusive.
func ancestorPathFromRoot(s *State) []*State {
	var rev []*State
	for cur := s; cur != nil; cur = cur.parent {
		rev = append(rev, cur)
	}
	path := make([]*State, len(rev))
	for i, s := range rev {
		path[len(rev)-1-i] = s
	}
	return path
}

// entryPath returns the states strictly below lca down to and including
// target, in top-down (outer-first) order.
func entryPath(lca, target *State) []*State {
	path := ancestorPathFromRoot(target)
	if lca == nil {
		return path
	}
	for i, s := range path {
		if s == lca {
			return path[i+1:]
		}
	}
	return path
}

// drill descends from a (possibly composite) target state to a leaf,
// consulting history where configured and falling back to the declared
// initial substate otherwise. Shallow history only recalls one level and
// keeps drilling normally from there; deep history recalls the exact leaf
// that was active and re-enters the whole path down to it.
func (c *core) drill(target *State, e Event) *State {
	cur := target
	for !cur.IsLeaf() {
		if cur.history == HistoryDeep && cur.historySlot != nil {
			leaf := cur.historySlot
			for _, s := range entryPath(cur, leaf) {
				c.enterDuringDispatch(s, e)
			}
			return leaf
		}
		var next *State
		if cur.history == HistoryShallow && cur.historySlot != nil {
			next = cur.historySlot
		} else {
			next = cur.initial
		}
		c.enterDuringDispatch(next, e)
		cur = next
	}
	return cur
}

func (c *core) enterDuringDispatch(s *State, e Event) {
	if err := runCatching(s.entry, e); err != nil {
		c.bus.publishException(ExceptionThrown{
			Event: e.ID, Source: s.id, Args: e.Args,
			Err: err, MachineInitialized: true,
		})
	}
}

func stateIDConflict(id StateID) string {
	return fmt.Sprintf("hsm: duplicate state id %v", id)
}
