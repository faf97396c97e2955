package provision

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the validated dependency graph of a set of units.
type Graph struct {
	units    map[string]Unit
	order    []string
	producer map[Key]string
	// upstream[u] is the set of units u consumes outputs from.
	upstream map[string]map[string]bool
}

// NewGraph validates the units and sorts them topologically. It rejects
// duplicate unit names, keys produced by more than one unit, keys nobody
// produces and dependency cycles.
func NewGraph(units ...Unit) (*Graph, error) {
	g := &Graph{
		units:    make(map[string]Unit, len(units)),
		producer: make(map[Key]string),
		upstream: make(map[string]map[string]bool, len(units)),
	}

	for _, u := range units {
		if _, dup := g.units[u.Name()]; dup {
			return nil, fmt.Errorf("duplicate unit %q", u.Name())
		}
		g.units[u.Name()] = u
		for _, k := range u.Produces() {
			if k.Unit() != u.Name() {
				return nil, fmt.Errorf("unit %s declares output %s of another unit", u.Name(), k)
			}
			if other, dup := g.producer[k]; dup {
				return nil, fmt.Errorf("%w: %s (%s and %s)", ErrDuplicateProducer, k, other, u.Name())
			}
			g.producer[k] = u.Name()
		}
	}

	var unproduced []string
	for _, u := range units {
		deps := make(map[string]bool)
		for _, k := range u.Requires() {
			p, ok := g.producer[k]
			if !ok {
				unproduced = append(unproduced, fmt.Sprintf("%s (required by %s)", k, u.Name()))
				continue
			}
			if p == u.Name() {
				return nil, fmt.Errorf("%w: %s requires its own output %s", ErrCycle, u.Name(), k)
			}
			deps[p] = true
		}
		g.upstream[u.Name()] = deps
	}
	if len(unproduced) > 0 {
		sort.Strings(unproduced)
		return nil, fmt.Errorf("%w: no unit produces %s", ErrMissingUpstream, strings.Join(unproduced, ", "))
	}

	order, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// sort is Kahn's algorithm with a sorted ready set, so the order is
// deterministic for a given unit set.
func (g *Graph) sort() ([]string, error) {
	indegree := make(map[string]int, len(g.units))
	downstream := make(map[string][]string, len(g.units))
	for name, deps := range g.upstream {
		indegree[name] = len(deps)
		for d := range deps {
			downstream[d] = append(downstream[d], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.units))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range downstream[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(g.units) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w between units %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Order returns every unit in provisioning order.
func (g *Graph) Order() []Unit {
	out := make([]Unit, len(g.order))
	for i, name := range g.order {
		out[i] = g.units[name]
	}
	return out
}

// Unit looks a unit up by name.
func (g *Graph) Unit(name string) (Unit, error) {
	u, ok := g.units[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownUnit, name, strings.Join(g.order, ", "))
	}
	return u, nil
}

// Select returns the named units in provisioning order. "all" selects
// every unit.
func (g *Graph) Select(names ...string) ([]Unit, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "all" {
			return g.Order(), nil
		}
		if _, err := g.Unit(n); err != nil {
			return nil, err
		}
		want[n] = true
	}
	var out []Unit
	for _, name := range g.order {
		if want[name] {
			out = append(out, g.units[name])
		}
	}
	return out, nil
}

// Producer returns the unit that produces k.
func (g *Graph) Producer(k Key) Unit {
	return g.units[g.producer[k]]
}

// Dependents returns the units that consume any output of name, directly
// or transitively, in reverse provisioning order.
func (g *Graph) Dependents(name string) []Unit {
	affected := map[string]bool{name: true}
	for _, n := range g.order {
		for d := range g.upstream[n] {
			if affected[d] {
				affected[n] = true
			}
		}
	}
	var out []Unit
	for i := len(g.order) - 1; i >= 0; i-- {
		n := g.order[i]
		if n != name && affected[n] {
			out = append(out, g.units[n])
		}
	}
	return out
}
