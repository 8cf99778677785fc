package graph

import "fmt"

// detectCycles checks the graph for dependency cycles using depth-first
// search with permanent and temporary marks. It returns a non-nil error
// naming the first node found inside a cycle.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving %s", n.ID)
		}

		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true

		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
