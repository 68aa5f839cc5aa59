// Package workflow constructs the ComfyUI node graph for two-pass
// Wan2.2 image-to-video sampling.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Graph maps node identifiers to node descriptors. It serializes to the
// JSON shape ComfyUI's /prompt endpoint expects.
type Graph map[string]*Node

// Node is one operation in the graph.
type Node struct {
	ClassType string           `json:"class_type"`
	Inputs    map[string]Input `json:"inputs"`
}

// Ref is a reference to another node's output slot.
type Ref struct {
	Node string
	Slot int
}

// Input is either a literal value or a reference to another node's
// output. References serialize as ["node_id", slot] per the ComfyUI
// wire format; literals serialize as themselves.
type Input struct {
	Literal any
	Ref     *Ref
}

// Lit wraps a literal input value.
func Lit(v any) Input {
	return Input{Literal: v}
}

// RefTo builds an input referencing another node's output slot.
func RefTo(node string, slot int) Input {
	return Input{Ref: &Ref{Node: node, Slot: slot}}
}

// MarshalJSON implements the ComfyUI input encoding.
func (in Input) MarshalJSON() ([]byte, error) {
	if in.Ref != nil {
		return json.Marshal([]any{in.Ref.Node, in.Ref.Slot})
	}
	return json.Marshal(in.Literal)
}

// Validate checks referential integrity: every referenced node must be
// present in the graph and no node may transitively reference itself.
func (g Graph) Validate() error {
	for id, node := range g {
		for name, input := range node.Inputs {
			if input.Ref == nil {
				continue
			}
			if _, ok := g[input.Ref.Node]; !ok {
				return fmt.Errorf("node %s input %q references missing node %s", id, name, input.Ref.Node)
			}
		}
	}

	// Cycle detection over reference edges.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("cycle detected at node %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, input := range g[id].Inputs {
			if input.Ref == nil {
				continue
			}
			if err := visit(input.Ref.Node); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range g {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
