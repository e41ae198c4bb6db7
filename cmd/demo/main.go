// Command demo builds a small three-state traffic-light machine and drives
// it with both dispatcher disciplines, printing the lifecycle bus events it
// observes along the way.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briarhsm/hsm"
)

// buildTrafficLight wires a three-state traffic light. Each transition's
// action tallies a shared cycle count in extended, and the yellow->red
// transition is guarded so the light latches on yellow once maxCycles is
// reached.
func buildTrafficLight(m interface {
	CreateState(id hsm.StateID, opts ...hsm.StateOption) *hsm.State
}, extended *hsm.ExtendedState, maxCycles int) *hsm.State {
	extended.Set("cycles", 0)

	tally := func(hsm.Event) {
		n, _ := extended.Get("cycles")
		extended.Set("cycles", n.(int)+1)
	}

	red := m.CreateState("red", hsm.WithEntry(func(hsm.Event) {
		fmt.Println("entering red")
	}))
	green := m.CreateState("green", hsm.WithEntry(func(hsm.Event) {
		fmt.Println("entering green")
	}))
	yellow := m.CreateState("yellow", hsm.WithEntry(func(hsm.Event) {
		fmt.Println("entering yellow")
	}))

	traffic := m.CreateState("traffic")
	traffic.AddSubstate(red).AddSubstate(green).AddSubstate(yellow)
	traffic.SetInitialSubstate(red)

	red.AddTransition("TIMER", green, hsm.Action(tally))
	green.AddTransition("TIMER", yellow, hsm.Action(tally))
	yellow.AddTransition("TIMER", red,
		hsm.Guard(func(hsm.Event) bool {
			n, _ := extended.Get("cycles")
			return n.(int) < maxCycles
		}),
		hsm.Action(tally),
	)

	return traffic
}

func subscribeLogging(m interface {
	SubscribeBeginDispatch(func(hsm.BeginDispatch))
	SubscribeTransitionCompleted(func(hsm.TransitionCompleted))
	SubscribeTransitionDeclined(func(hsm.TransitionDeclined))
	SubscribeExceptionThrown(func(hsm.ExceptionThrown))
}, tag string) {
	m.SubscribeBeginDispatch(func(ev hsm.BeginDispatch) {
		fmt.Printf("[%s] begin dispatch: event=%v source=%v\n", tag, ev.Event, ev.Source)
	})
	m.SubscribeTransitionCompleted(func(ev hsm.TransitionCompleted) {
		fmt.Printf("[%s] completed: %v -> %v (event=%v)\n", tag, ev.Source, ev.Target, ev.Event)
	})
	m.SubscribeTransitionDeclined(func(ev hsm.TransitionDeclined) {
		fmt.Printf("[%s] declined: event=%v at %v\n", tag, ev.Event, ev.Source)
	})
	m.SubscribeExceptionThrown(func(ev hsm.ExceptionThrown) {
		fmt.Printf("[%s] exception: %v (initialized=%v)\n", tag, ev.Err, ev.MachineInitialized)
	})
}

func runPassiveDemo(maxCycles int) {
	m := hsm.NewPassiveMachine()
	extended := hsm.NewExtendedState()
	root := buildTrafficLight(m, extended, maxCycles)
	subscribeLogging(m, "passive")

	if err := m.Initialize(root); err != nil {
		panic(err)
	}

	desc, err := hsm.Describe(root)
	if err == nil {
		fmt.Println("--- static tree (YAML) ---")
		fmt.Println(desc)
	}

	for i := 0; i < 3; i++ {
		_ = m.Send("TIMER", nil)
		if err := m.Execute(); err != nil {
			fmt.Println("execute error:", err)
		}
	}
	n, _ := extended.Get("cycles")
	fmt.Println("cycles handled:", n)
}

func runActiveDemo(maxCycles int) {
	m := hsm.NewActiveMachine()
	extended := hsm.NewExtendedState()
	root := buildTrafficLight(m, extended, maxCycles)
	subscribeLogging(m, "active")

	if err := m.Initialize(root); err != nil {
		panic(err)
	}
	defer func() {
		m.Stop()
		n, _ := extended.Get("cycles")
		fmt.Println("cycles handled:", n)
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	cycles := 0
	for {
		select {
		case <-ticker.C:
			if err := m.Send("TIMER", nil); err != nil {
				fmt.Println("send error:", err)
			}
			cycles++
			if cycles >= 6 {
				fmt.Println("active demo complete")
				return
			}
		case <-sig:
			fmt.Println("shutting down")
			return
		}
	}
}

func main() {
	passive := flag.Bool("passive", true, "run the passive dispatcher demo")
	active := flag.Bool("active", true, "run the active dispatcher demo")
	maxCycles := flag.Int("max-cycles", 4, "number of TIMER cycles before the light latches on yellow")
	flag.Parse()

	if *passive {
		fmt.Println("=== passive dispatcher ===")
		runPassiveDemo(*maxCycles)
	}
	if *active {
		fmt.Println("\n=== active dispatcher ===")
		runActiveDemo(*maxCycles)
	}
}
