// Package hsm implements a hierarchical state machine runtime in the style
// of UML statecharts: nested states, entry/exit actions, guarded transitions
// with actions, internal vs. external transitions, shallow/deep history
// pseudostates, and event dispatch through two disciplines — a passive
// dispatcher drained synchronously on the caller's goroutine, and an active
// dispatcher drained by a dedicated worker goroutine.
//
// Construction uses a small fluent API: CreateState builds states, AddSubstate
// and SetInitialSubstate wire the hierarchy, and AddTransition attaches
// guarded, actioned edges. Once a machine is initialized the tree is
// read-only; the only mutable per-machine data afterward are the current
// state, the history slots, and the pending event queue.
//
// Every dispatch reports its outcome on a small lifecycle event bus
// (BeginDispatch, TransitionDeclined, TransitionCompleted, ExceptionThrown)
// rather than by returning errors from Send — guard, action, entry, and exit
// failures never abort a dispatch or propagate to the caller; they are
// captured and published instead.
package hsm
