package hsm_test

import (
	"errors"
	"testing"

	"github.com/briarhsm/hsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSimple wires a two-leaf top-level machine: on -> off -> on on "TOGGLE".
func buildSimple(m *hsm.PassiveMachine) (root, on, off *hsm.State) {
	on = m.CreateState("on")
	off = m.CreateState("off")
	root = m.CreateState("root")
	root.AddSubstate(on).AddSubstate(off)
	root.SetInitialSubstate(on)
	on.AddTransition("TOGGLE", off)
	off.AddTransition("TOGGLE", on)
	return root, on, off
}

func TestConstructionBasics(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, on, off := buildSimple(m)
	require.NoError(t, m.Initialize(root))
	assert.Equal(t, "on", m.CurrentStateID())
	assert.True(t, on.IsLeaf())
	assert.True(t, off.IsLeaf())
	assert.Equal(t, root, on.Parent())
}

func TestDuplicateStateIDPanics(t *testing.T) {
	m := hsm.NewPassiveMachine()
	m.CreateState("a")
	assert.Panics(t, func() { m.CreateState("a") })
}

func TestInitialSubstateMustBeDirectChild(t *testing.T) {
	m := hsm.NewPassiveMachine()
	a := m.CreateState("a")
	b := m.CreateState("b")
	assert.Panics(t, func() { a.SetInitialSubstate(b) })
}

func TestCompositeWithoutInitialFailsValidation(t *testing.T) {
	m := hsm.NewPassiveMachine()
	child := m.CreateState("child")
	root := m.CreateState("root")
	root.AddSubstate(child)
	err := m.Initialize(root)
	assert.Error(t, err)
}

func TestFinalStateRejectsOutgoingTransition(t *testing.T) {
	m := hsm.NewPassiveMachine()
	done := m.CreateState("done", hsm.WithFinal())
	other := m.CreateState("other")
	assert.Panics(t, func() { done.AddTransition("GO", other) })
}

// A simple external transition completes and updates the current state.
func TestSimpleTransitionCompletes(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, _, off := buildSimple(m)
	require.NoError(t, m.Initialize(root))

	var completed []hsm.TransitionCompleted
	m.SubscribeTransitionCompleted(func(ev hsm.TransitionCompleted) {
		completed = append(completed, ev)
	})

	require.NoError(t, m.Send("TOGGLE", nil))
	require.NoError(t, m.Execute())

	require.Len(t, completed, 1)
	assert.Equal(t, "on", completed[0].Source)
	assert.Equal(t, "off", completed[0].Target)
	assert.Equal(t, off.ID(), m.CurrentStateID())
}

// An event with no matching transition is declined, not an error.
func TestUnmatchedEventDeclined(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, _, _ := buildSimple(m)
	require.NoError(t, m.Initialize(root))

	var declined []hsm.TransitionDeclined
	m.SubscribeTransitionDeclined(func(ev hsm.TransitionDeclined) {
		declined = append(declined, ev)
	})

	require.NoError(t, m.Send("NOPE", nil))
	require.NoError(t, m.Execute())

	require.Len(t, declined, 1)
	assert.Equal(t, "on", declined[0].Source)
	assert.Equal(t, "on", m.CurrentStateID())
}

// An entry action that panics during Initialize is reported with
// MachineInitialized=false and does not prevent the drill from completing.
func TestEntryExceptionDuringInitialize(t *testing.T) {
	m := hsm.NewPassiveMachine()
	on := m.CreateState("on", hsm.WithEntry(func(hsm.Event) {
		panic("boom")
	}))
	off := m.CreateState("off")
	root := m.CreateState("root")
	root.AddSubstate(on).AddSubstate(off)
	root.SetInitialSubstate(on)

	var exceptions []hsm.ExceptionThrown
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) {
		exceptions = append(exceptions, ev)
	})

	require.NoError(t, m.Initialize(root))
	require.Len(t, exceptions, 1)
	assert.False(t, exceptions[0].MachineInitialized)
	assert.Equal(t, "on", m.CurrentStateID())
}

// An exit action that panics during dispatch does not block the
// transition from completing, and is reported with MachineInitialized=true.
func TestExitExceptionDoesNotBlockTransition(t *testing.T) {
	m := hsm.NewPassiveMachine()
	on := m.CreateState("on", hsm.WithExit(func(hsm.Event) {
		panic("boom")
	}))
	off := m.CreateState("off")
	root := m.CreateState("root")
	root.AddSubstate(on).AddSubstate(off)
	root.SetInitialSubstate(on)
	on.AddTransition("TOGGLE", off)

	var exceptions []hsm.ExceptionThrown
	var completed []hsm.TransitionCompleted
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) { exceptions = append(exceptions, ev) })
	m.SubscribeTransitionCompleted(func(ev hsm.TransitionCompleted) { completed = append(completed, ev) })

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("TOGGLE", nil))
	require.NoError(t, m.Execute())

	require.Len(t, exceptions, 1)
	assert.True(t, exceptions[0].MachineInitialized)
	require.Len(t, completed, 1)
	assert.Equal(t, "off", m.CurrentStateID())
}

// An action that panics is reported, and remaining actions still run.
func TestActionExceptionDoesNotStopRemainingActions(t *testing.T) {
	m := hsm.NewPassiveMachine()
	on := m.CreateState("on")
	off := m.CreateState("off")
	root := m.CreateState("root")
	root.AddSubstate(on).AddSubstate(off)
	root.SetInitialSubstate(on)

	var ran []string
	on.AddTransition("TOGGLE", off,
		hsm.Action(func(hsm.Event) { ran = append(ran, "first"); panic("one") }),
		hsm.Action(func(hsm.Event) { ran = append(ran, "second"); panic("two") }),
	)

	var exceptions []hsm.ExceptionThrown
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) { exceptions = append(exceptions, ev) })

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("TOGGLE", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Len(t, exceptions, 2)
	assert.Equal(t, "off", m.CurrentStateID())
}

// A guard failure on a substate's transition falls through to the
// superstate's handler for the same event.
func TestSuperstateHandlesEventOnGuardFailure(t *testing.T) {
	m := hsm.NewPassiveMachine()
	child := m.CreateState("child")
	sibling := m.CreateState("sibling")
	root := m.CreateState("root")
	root.AddSubstate(child).AddSubstate(sibling)
	root.SetInitialSubstate(child)

	child.AddTransition("GO", sibling, hsm.Guard(func(hsm.Event) bool { return false }))
	root.AddTransition("GO", sibling)

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("GO", nil))
	require.NoError(t, m.Execute())
	assert.Equal(t, "sibling", m.CurrentStateID())
}

// A guard that panics is treated as a failed guard (the scan continues),
// and reports an ExceptionThrown.
func TestGuardPanicTreatedAsFalse(t *testing.T) {
	m := hsm.NewPassiveMachine()
	a := m.CreateState("a")
	b := m.CreateState("b")
	root := m.CreateState("root")
	root.AddSubstate(a).AddSubstate(b)
	root.SetInitialSubstate(a)

	a.AddTransition("GO", b, hsm.Guard(func(hsm.Event) bool { panic("guard exploded") }))
	a.AddTransition("GO", a, hsm.Guard(func(hsm.Event) bool { return true }))

	var exceptions []hsm.ExceptionThrown
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) { exceptions = append(exceptions, ev) })

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("GO", nil))
	require.NoError(t, m.Execute())

	require.Len(t, exceptions, 1)
	assert.Equal(t, "a", m.CurrentStateID())
}

// A self-transition exits and re-enters the source state.
func TestSelfTransitionExitsAndReenters(t *testing.T) {
	m := hsm.NewPassiveMachine()
	var entries, exits int
	a := m.CreateState("a",
		hsm.WithEntry(func(hsm.Event) { entries++ }),
		hsm.WithExit(func(hsm.Event) { exits++ }),
	)
	root := m.CreateState("root")
	root.AddSubstate(a)
	root.SetInitialSubstate(a)
	a.AddTransition("RESTART", a)

	require.NoError(t, m.Initialize(root))
	assert.Equal(t, 1, entries)

	require.NoError(t, m.Send("RESTART", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, 1, exits)
	assert.Equal(t, 2, entries)
}

// Internal transitions (nil target) run actions only, never touching exit
// or entry hooks or current state.
func TestInternalTransitionDoesNotExitOrEnter(t *testing.T) {
	m := hsm.NewPassiveMachine()
	var entries, exits, actions int
	a := m.CreateState("a",
		hsm.WithEntry(func(hsm.Event) { entries++ }),
		hsm.WithExit(func(hsm.Event) { exits++ }),
	)
	root := m.CreateState("root")
	root.AddSubstate(a)
	root.SetInitialSubstate(a)
	a.AddTransition("TICK", nil, hsm.Action(func(hsm.Event) { actions++ }))

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("TICK", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, 1, entries)
	assert.Equal(t, 0, exits)
	assert.Equal(t, 1, actions)
	assert.Equal(t, "a", m.CurrentStateID())
}

// Shallow history restores only the most recently active direct child;
// deep history restores the exact leaf.
func TestShallowHistoryRestoresOneLevel(t *testing.T) {
	m := hsm.NewPassiveMachine()
	s1 := m.CreateState("s1")
	s2 := m.CreateState("s2")
	group := m.CreateState("group", hsm.WithHistory(hsm.HistoryShallow))
	group.AddSubstate(s1).AddSubstate(s2)
	group.SetInitialSubstate(s1)

	other := m.CreateState("other")
	root := m.CreateState("root")
	root.AddSubstate(group).AddSubstate(other)
	root.SetInitialSubstate(group)

	s1.AddTransition("NEXT", s2)
	group.AddTransition("LEAVE", other)
	other.AddTransition("BACK", group)

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("NEXT", nil))
	require.NoError(t, m.Send("LEAVE", nil))
	require.NoError(t, m.Send("BACK", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, "s2", m.CurrentStateID())
}

func TestDeepHistoryRestoresExactLeaf(t *testing.T) {
	m := hsm.NewPassiveMachine()
	leafA := m.CreateState("leafA")
	leafB := m.CreateState("leafB")
	inner := m.CreateState("inner")
	inner.AddSubstate(leafA).AddSubstate(leafB)
	inner.SetInitialSubstate(leafA)

	outer := m.CreateState("outer", hsm.WithHistory(hsm.HistoryDeep))
	outer.AddSubstate(inner)
	outer.SetInitialSubstate(inner)

	other := m.CreateState("other")
	root := m.CreateState("root")
	root.AddSubstate(outer).AddSubstate(other)
	root.SetInitialSubstate(outer)

	leafA.AddTransition("NEXT", leafB)
	outer.AddTransition("LEAVE", other)
	other.AddTransition("BACK", outer)

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("NEXT", nil))
	require.NoError(t, m.Send("LEAVE", nil))
	require.NoError(t, m.Send("BACK", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, "leafB", m.CurrentStateID())
}

// Exactly one BeginDispatch and exactly one terminal event fire per dispatch.
func TestExactlyOneBeginAndOneTerminalPerDispatch(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, _, _ := buildSimple(m)
	require.NoError(t, m.Initialize(root))

	var begins, completes, declines int
	m.SubscribeBeginDispatch(func(hsm.BeginDispatch) { begins++ })
	m.SubscribeTransitionCompleted(func(hsm.TransitionCompleted) { completes++ })
	m.SubscribeTransitionDeclined(func(hsm.TransitionDeclined) { declines++ })

	require.NoError(t, m.Send("TOGGLE", nil))
	require.NoError(t, m.Send("NOPE", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, 2, begins)
	assert.Equal(t, 1, completes)
	assert.Equal(t, 1, declines)
}

// Send without a following Execute never runs a dispatch.
func TestPassiveSendWithoutExecuteDoesNothing(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, _, _ := buildSimple(m)
	require.NoError(t, m.Initialize(root))

	var completes int
	m.SubscribeTransitionCompleted(func(hsm.TransitionCompleted) { completes++ })

	require.NoError(t, m.Send("TOGGLE", nil))
	assert.Equal(t, "on", m.CurrentStateID())
	assert.Equal(t, 0, completes)

	require.NoError(t, m.Execute())
	assert.Equal(t, 1, completes)
}

// A reentrant Send made from within an action is drained within the
// same Execute call, after the event that triggered it.
func TestReentrantSendDrainedWithinSameExecute(t *testing.T) {
	m := hsm.NewPassiveMachine()
	on := m.CreateState("on")
	off := m.CreateState("off")
	root := m.CreateState("root")
	root.AddSubstate(on).AddSubstate(off)
	root.SetInitialSubstate(on)
	off.AddTransition("TOGGLE", on)

	var order []string
	on.AddTransition("TOGGLE", off, hsm.Action(func(hsm.Event) {
		order = append(order, "toggle-action")
		_ = m.Send("TOGGLE", nil)
	}))

	m.SubscribeTransitionCompleted(func(ev hsm.TransitionCompleted) {
		order = append(order, "completed:"+ev.Target.(string))
	})

	require.NoError(t, m.Initialize(root))
	require.NoError(t, m.Send("TOGGLE", nil))
	require.NoError(t, m.Execute())

	assert.Equal(t, []string{"toggle-action", "completed:off", "completed:on"}, order)
	assert.Equal(t, "on", m.CurrentStateID())
}

func TestSendBeforeInitializeFails(t *testing.T) {
	m := hsm.NewPassiveMachine()
	err := m.Send("TOGGLE", nil)
	assert.ErrorIs(t, err, hsm.ErrNotInitialized)
}

func TestExecuteBeforeInitializeFails(t *testing.T) {
	m := hsm.NewPassiveMachine()
	err := m.Execute()
	assert.ErrorIs(t, err, hsm.ErrNotInitialized)
}

func TestDoubleInitializeFails(t *testing.T) {
	m := hsm.NewPassiveMachine()
	root, _, _ := buildSimple(m)
	require.NoError(t, m.Initialize(root))
	err := m.Initialize(root)
	assert.ErrorIs(t, err, hsm.ErrAlreadyInitialized)
}

func TestPanicToErrorKeepsErrorValues(t *testing.T) {
	m := hsm.NewPassiveMachine()
	on := m.CreateState("on", hsm.WithEntry(func(hsm.Event) {
		panic(errors.New("typed panic"))
	}))
	root := m.CreateState("root")
	root.AddSubstate(on)
	root.SetInitialSubstate(on)

	var exceptions []hsm.ExceptionThrown
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) { exceptions = append(exceptions, ev) })
	require.NoError(t, m.Initialize(root))
	require.Len(t, exceptions, 1)
	assert.EqualError(t, exceptions[0].Err, "typed panic")
}
