package hsm

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// stateDoc and transitionDoc describe only the static construction-time
// tree — ids, nesting, history kind, and transition tables — never
// current/history runtime state.
type stateDoc struct {
	ID          string                 `yaml:"id"`
	History     string                 `yaml:"history,omitempty"`
	Final       bool                   `yaml:"final,omitempty"`
	HasEntry    bool                   `yaml:"hasEntry,omitempty"`
	HasExit     bool                   `yaml:"hasExit,omitempty"`
	Initial     string                 `yaml:"initial,omitempty"`
	Transitions []transitionDoc        `yaml:"transitions,omitempty"`
	Children    []stateDoc             `yaml:"children,omitempty"`
}

type transitionDoc struct {
	Event    string `yaml:"event"`
	Target   string `yaml:"target,omitempty"`
	Internal bool   `yaml:"internal,omitempty"`
	Guarded  bool   `yaml:"guarded,omitempty"`
	Actions  int    `yaml:"actions,omitempty"`
}

// Describe renders the static tree rooted at root as a YAML document,
// suitable for documentation or debugging.
func Describe(root *State) (string, error) {
	doc := describeState(root)
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("hsm: describe: %w", err)
	}
	return string(out), nil
}

func describeState(s *State) stateDoc {
	d := stateDoc{
		ID:       fmt.Sprint(s.id),
		History:  historyLabel(s.history),
		Final:    s.final,
		HasEntry: s.entry != nil,
		HasExit:  s.exit != nil,
	}
	if s.initial != nil {
		d.Initial = fmt.Sprint(s.initial.id)
	}

	var events []string
	for ev := range s.transitions {
		events = append(events, fmt.Sprint(ev))
	}
	sort.Strings(events)
	for _, evStr := range events {
		for ev, list := range s.transitions {
			if fmt.Sprint(ev) != evStr {
				continue
			}
			for _, t := range list {
				td := transitionDoc{
					Event:    evStr,
					Internal: t.isInternal(),
					Guarded:  t.guard != nil,
					Actions:  len(t.actions),
				}
				if t.target != nil {
					td.Target = fmt.Sprint(t.target.id)
				}
				d.Transitions = append(d.Transitions, td)
			}
		}
	}

	for _, c := range s.children {
		d.Children = append(d.Children, describeState(c))
	}
	return d
}

func historyLabel(h HistoryKind) string {
	if h == HistoryNone {
		return ""
	}
	return h.String()
}

// ExportDOT renders the static tree rooted at root as a Graphviz DOT
// digraph: composite states become clusters and transitions become labeled
// edges, with target-less (internal) transitions drawn as self-loops.
func ExportDOT(root *State) string {
	var b strings.Builder
	b.WriteString("digraph hsm {\n")
	b.WriteString("  compound=true;\n")
	dumpDOTState(&b, root, 1)
	dumpDOTTransitions(&b, root)
	b.WriteString("}\n")
	return b.String()
}

func dumpDOTState(b *strings.Builder, s *State, indent int) {
	prefix := strings.Repeat("  ", indent)
	label := fmt.Sprint(s.id)
	if s.final {
		label += " (final)"
	}
	if s.IsLeaf() {
		fmt.Fprintf(b, "%s\"%v\" [label=\"%s\"];\n", prefix, s.id, label)
		return
	}
	fmt.Fprintf(b, "%ssubgraph \"cluster_%v\" {\n", prefix, s.id)
	fmt.Fprintf(b, "%s  label=\"%s\";\n", prefix, label)
	for _, c := range s.children {
		dumpDOTState(b, c, indent+1)
	}
	fmt.Fprintf(b, "%s}\n", prefix)
}

func dumpDOTTransitions(b *strings.Builder, root *State) {
	var walk func(*State)
	walk = func(s *State) {
		for ev, list := range s.transitions {
			for _, t := range list {
				if t.target == nil {
					fmt.Fprintf(b, "  \"%v\" -> \"%v\" [label=\"%v (internal)\"];\n", s.id, s.id, ev)
					continue
				}
				fmt.Fprintf(b, "  \"%v\" -> \"%v\" [label=\"%v\"];\n", s.id, t.target.id, ev)
			}
		}
		for _, c := range s.children {
			walk(c)
		}
	}
	walk(root)
}
