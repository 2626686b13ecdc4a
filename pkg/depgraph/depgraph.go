// SPDX-License-Identifier: Apache-2.0

// Package depgraph builds the typed dependency graph over a schema's
// objects and answers the three queries the planner and CLI need:
// topological ordering for CREATE/DROP, blast-radius impact analysis,
// and structural validation. It consumes a pkg/catalog.Schema rather
// than querying Postgres itself, so it can be unit tested against a
// catalog.FakeReader snapshot.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/evoludigit/pggit/pkg/catalog"
)

// EdgeType is the closed set of dependency kinds, each carrying a fixed
// ordering strength.
type EdgeType string

const (
	EdgeForeignKey        EdgeType = "FK"
	EdgeInheritance        EdgeType = "INHERITANCE"
	EdgeSequenceOwnership  EdgeType = "SEQUENCE_OWNERSHIP"
	EdgeTriggerFunction    EdgeType = "TRIGGER_FUNCTION"
	EdgeViewTable          EdgeType = "VIEW_TABLE"
	EdgeIndexFunction      EdgeType = "INDEX_FUNCTION"
	EdgeFunctionTable      EdgeType = "FUNCTION_TABLE"
)

// Strength returns the edge-type strength used to order planning.
func (t EdgeType) Strength() int {
	switch t {
	case EdgeInheritance:
		return 250
	case EdgeForeignKey:
		return 200
	case EdgeSequenceOwnership:
		return 190
	case EdgeTriggerFunction:
		return 180
	case EdgeViewTable:
		return 150
	case EdgeIndexFunction:
		return 120
	case EdgeFunctionTable:
		return 100
	default:
		return 0
	}
}

// CascadeBehavior is the closed set of FK cascade actions.
type CascadeBehavior string

const (
	CascadeCascade  CascadeBehavior = "CASCADE"
	CascadeRestrict CascadeBehavior = "RESTRICT"
	CascadeSetNull  CascadeBehavior = "SET NULL"
	CascadeNoAction CascadeBehavior = "NO ACTION"
	CascadeNone     CascadeBehavior = "NONE"
)

// Edge is one `(dependent, depends_on, type)` row. At most
// one edge may exist per that triple.
type Edge struct {
	Dependent string
	DependsOn string
	Type      EdgeType
	Cascade   CascadeBehavior
	Details   string
}

// Graph is the dependency graph for one schema scope.
type Graph struct {
	nodes map[string]bool
	edges []Edge
	// out[d] = edges where Dependent == d
	out map[string][]Edge
	// in[d] = edges where DependsOn == d
	in map[string][]Edge
}

// Build discovers dependency edges from a catalog snapshot.
func Build(sc *catalog.Schema) *Graph {
	g := &Graph{
		nodes: make(map[string]bool),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}

	for name, t := range sc.Tables {
		g.addNode(name)
		for _, parent := range t.Inherits {
			g.addEdge(Edge{Dependent: name, DependsOn: parent, Type: EdgeInheritance, Cascade: CascadeNone})
		}
		for _, fk := range t.ForeignKeys {
			if fk.ReferencedTable == "" {
				continue
			}
			cascade := CascadeBehavior(fk.OnDelete)
			if cascade == "" {
				cascade = CascadeNoAction
			}
			g.addEdge(Edge{Dependent: name, DependsOn: fk.ReferencedTable, Type: EdgeForeignKey, Cascade: cascade, Details: fk.Name})
		}
	}

	for name, seq := range sc.Sequences {
		g.addNode(name)
		if seq.OwnedByRel != "" {
			g.addEdge(Edge{Dependent: seq.OwnedByRel, DependsOn: name, Type: EdgeSequenceOwnership, Cascade: CascadeCascade})
		}
	}

	for name, trig := range sc.Triggers {
		g.addNode(name)
		if trig.FunctionName != "" {
			g.addEdge(Edge{Dependent: name, DependsOn: trig.FunctionName, Type: EdgeTriggerFunction, Cascade: CascadeRestrict})
		}
	}

	for name, v := range sc.Views {
		g.addNode(name)
		for _, ref := range v.DependsOnRefs {
			g.addEdge(Edge{Dependent: name, DependsOn: ref.Name, Type: EdgeViewTable, Cascade: CascadeRestrict})
		}
	}

	for name := range sc.Routines {
		g.addNode(name)
	}

	return g
}

func (g *Graph) addNode(name string) {
	g.nodes[name] = true
}

func (g *Graph) addEdge(e Edge) {
	g.addNode(e.Dependent)
	g.addNode(e.DependsOn)
	for _, existing := range g.out[e.Dependent] {
		if existing.DependsOn == e.DependsOn && existing.Type == e.Type {
			return
		}
	}
	g.edges = append(g.edges, e)
	g.out[e.Dependent] = append(g.out[e.Dependent], e)
	g.in[e.DependsOn] = append(g.in[e.DependsOn], e)
}

// Operation is the closed set order_for accepts.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpDrop   Operation = "DROP"
)

// CyclicDependencyWarning records that order_for fell back to
// strength-descending order for a cyclic subset of objects.
type CyclicDependencyWarning struct {
	Members []string
}

// OrderFor orders objects for CREATE (depends-on first) or DROP (reverse)
// using Kahn's algorithm.
func (g *Graph) OrderFor(op Operation, objects []string) ([]string, []CyclicDependencyWarning) {
	scope := make(map[string]bool, len(objects))
	for _, o := range objects {
		scope[o] = true
	}

	// indegree within the CREATE direction: dependent requires depends-on,
	// so an edge Dependent->DependsOn means DependsOn must come first.
	// Kahn's algorithm processes zero-indegree nodes first, where
	// indegree counts "depends-on" edges still unresolved for this node
	// in CREATE direction (this node's own outgoing edges to depends-on
	// targets inside the scope that have not been emitted yet).
	indegree := make(map[string]int, len(objects))
	for _, o := range objects {
		indegree[o] = 0
	}
	for _, o := range objects {
		for _, e := range g.out[o] {
			if scope[e.DependsOn] {
				indegree[o]++
			}
		}
	}

	var queue []string
	for _, o := range objects {
		if indegree[o] == 0 {
			queue = append(queue, o)
		}
	}
	sort.Strings(queue)

	var ordered []string
	visited := make(map[string]bool)
	for len(queue) > 0 {
		sort.Strings(queue)
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		ordered = append(ordered, n)

		for _, o := range objects {
			if visited[o] || scope[o] == false {
				continue
			}
			for _, e := range g.out[o] {
				if e.DependsOn == n {
					indegree[o]--
					if indegree[o] == 0 {
						queue = append(queue, o)
					}
				}
			}
		}
	}

	var warnings []CyclicDependencyWarning
	if len(ordered) < len(objects) {
		var remaining []string
		for _, o := range objects {
			if !visited[o] {
				remaining = append(remaining, o)
			}
		}
		sort.Slice(remaining, func(i, j int) bool {
			return g.maxStrength(remaining[i]) > g.maxStrength(remaining[j])
		})
		warnings = append(warnings, CyclicDependencyWarning{Members: remaining})
		ordered = append(ordered, remaining...)
	}

	if op == OpDrop {
		reversed := make([]string, len(ordered))
		for i, o := range ordered {
			reversed[len(ordered)-1-i] = o
		}
		return reversed, warnings
	}
	return ordered, warnings
}

func (g *Graph) maxStrength(node string) int {
	best := 0
	for _, e := range g.out[node] {
		if s := e.Type.Strength(); s > best {
			best = s
		}
	}
	for _, e := range g.in[node] {
		if s := e.Type.Strength(); s > best {
			best = s
		}
	}
	return best
}

// Impact is one row returned by Impact.
type Impact struct {
	Affected      string
	Path          []string
	ImpactLevel   string // DIRECT | INDIRECT | DEEP
	Risk          string // LOW | MEDIUM | HIGH
	SuggestedAction string
}

// Impact performs a bounded BFS from object along the "depends on me"
// direction, defaulting to a max depth of 10.
func (g *Graph) Impact(object string, op Operation, maxDepth int) []Impact {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	type queued struct {
		name  string
		depth int
		path  []string
	}

	visited := map[string]bool{object: true}
	queue := []queued{{name: object, depth: 0, path: nil}}

	var out []Impact
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}

		dependents := g.in[cur.name]
		sort.Slice(dependents, func(i, j int) bool { return dependents[i].Dependent < dependents[j].Dependent })

		for _, e := range dependents {
			if visited[e.Dependent] {
				continue
			}
			visited[e.Dependent] = true
			path := append(append([]string(nil), cur.path...), cur.name)

			level := impactLevel(cur.depth + 1)
			risk := riskFor(e.Type, op)

			out = append(out, Impact{
				Affected:        e.Dependent,
				Path:            path,
				ImpactLevel:     level,
				Risk:            risk,
				SuggestedAction: suggestedAction(e.Type, op, risk),
			})

			queue = append(queue, queued{name: e.Dependent, depth: cur.depth + 1, path: path})
		}
	}
	return out
}

func impactLevel(depth int) string {
	switch {
	case depth <= 1:
		return "DIRECT"
	case depth <= 3:
		return "INDIRECT"
	default:
		return "DEEP"
	}
}

func riskFor(t EdgeType, op Operation) string {
	strength := t.Strength()
	switch {
	case op == OpDrop && strength >= 190:
		return "HIGH"
	case op == OpDrop && strength >= 150:
		return "MEDIUM"
	case strength >= 190:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func suggestedAction(t EdgeType, op Operation, risk string) string {
	if op != OpDrop {
		return "review before creating: dependency already in use elsewhere"
	}
	switch risk {
	case "HIGH":
		return fmt.Sprintf("do not drop without first migrating %s dependents off this object", t)
	case "MEDIUM":
		return fmt.Sprintf("review %s dependents before dropping", t)
	default:
		return "safe to drop after a routine check"
	}
}

// ValidationIssue is one row returned by Validate.
type ValidationIssue struct {
	Kind        string
	Severity    string
	Object      string
	Description string
	Remediation string
}

// ValidateOptions configures the structural-validation thresholds.
type ValidateOptions struct {
	MaxInheritanceDepth int
	MaxIncomingFKs      int
	MaxViewChainLength  int
}

// DefaultValidateOptions returns the default thresholds: inheritance
// depth 3, more than 10 incoming FKs, view chain length 5.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{MaxInheritanceDepth: 3, MaxIncomingFKs: 10, MaxViewChainLength: 5}
}

// Validate detects structural issues: circular dependencies, excessive
// inheritance depth, excessive incoming FKs, and long view chains.
func (g *Graph) Validate(opts ValidateOptions) []ValidationIssue {
	if opts.MaxInheritanceDepth == 0 && opts.MaxIncomingFKs == 0 && opts.MaxViewChainLength == 0 {
		opts = DefaultValidateOptions()
	}

	var issues []ValidationIssue

	nodeNames := g.sortedNodes()

	// Circular dependencies: any node whose OrderFor over the full node
	// set lands in a reported cycle.
	_, warnings := g.OrderFor(OpCreate, nodeNames)
	for _, w := range warnings {
		issues = append(issues, ValidationIssue{
			Kind:        "CIRCULAR_DEPENDENCY",
			Severity:    "ERROR",
			Object:      w.Members[0],
			Description: fmt.Sprintf("circular dependency among %v", w.Members),
			Remediation: "break the cycle by removing or redirecting one of the listed edges",
		})
	}

	// Inheritance depth.
	for _, n := range nodeNames {
		depth := g.inheritanceDepth(n, map[string]bool{})
		if depth > opts.MaxInheritanceDepth {
			issues = append(issues, ValidationIssue{
				Kind:        "DEEP_INHERITANCE",
				Severity:    "WARNING",
				Object:      n,
				Description: fmt.Sprintf("inheritance depth %d exceeds limit %d", depth, opts.MaxInheritanceDepth),
				Remediation: "flatten the inheritance hierarchy or raise the configured limit",
			})
		}
	}

	// Incoming FK count.
	for _, n := range nodeNames {
		count := 0
		for _, e := range g.in[n] {
			if e.Type == EdgeForeignKey {
				count++
			}
		}
		if count > opts.MaxIncomingFKs {
			issues = append(issues, ValidationIssue{
				Kind:        "EXCESSIVE_INCOMING_FKS",
				Severity:    "WARNING",
				Object:      n,
				Description: fmt.Sprintf("%d incoming foreign keys exceeds limit %d", count, opts.MaxIncomingFKs),
				Remediation: "consider denormalizing or partitioning dependents",
			})
		}
	}

	// View chain length.
	for _, n := range nodeNames {
		length := g.viewChainLength(n, map[string]bool{})
		if length > opts.MaxViewChainLength {
			issues = append(issues, ValidationIssue{
				Kind:        "LONG_VIEW_CHAIN",
				Severity:    "WARNING",
				Object:      n,
				Description: fmt.Sprintf("view chain length %d exceeds limit %d", length, opts.MaxViewChainLength),
				Remediation: "flatten nested views or materialize an intermediate view",
			})
		}
	}

	return issues
}

func (g *Graph) sortedNodes() []string {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Graph) inheritanceDepth(node string, seen map[string]bool) int {
	if seen[node] {
		return 0
	}
	seen[node] = true

	best := 0
	for _, e := range g.out[node] {
		if e.Type != EdgeInheritance {
			continue
		}
		d := 1 + g.inheritanceDepth(e.DependsOn, seen)
		if d > best {
			best = d
		}
	}
	return best
}

func (g *Graph) viewChainLength(node string, seen map[string]bool) int {
	if seen[node] {
		return 0
	}
	seen[node] = true

	best := 0
	for _, e := range g.out[node] {
		if e.Type != EdgeViewTable {
			continue
		}
		d := 1 + g.viewChainLength(e.DependsOn, seen)
		if d > best {
			best = d
		}
	}
	return best
}
