// Package replace implements the replacement driver (spec.md's C11): the
// main loop that walks a dependency graph in reverse-topological order,
// rebuilding or installing exactly the packages flagged by the four axis
// sets (MISMATCH, REBUILD, MISSING, UNSAFE), refreshing each base's
// source-declared dependency edges on first visit, and propagating
// "unsafe" markers to reverse dependents after every build.
//
// Grounded on internal/depgraph for the mutable dependency graph and
// tsort (the axis scans that seed the driver run in internal/scanner,
// outside this package), and the teacher's
// pkg/deps.go dependency-resolution shape (BUILD_DEPENDS/TOOL_DEPENDS
// union, falling back to invoking make per candidate).
package replace

import (
	"fmt"

	"pkgtool/internal/depgraph"
)

// Mode selects fetch-only vs. full replace.
type Mode int

const (
	ModeFetchOnly Mode = iota
	ModeReplace
)

// AxisSets holds the four mutable axis sets, each a map pkgbase -> pkgpath.
type AxisSets struct {
	Mismatch map[string]string
	Rebuild  map[string]string
	Missing  map[string]string
	Unsafe   map[string]string
}

// NewAxisSets returns an AxisSets with all four maps initialized empty,
// ready for the initialization scan to populate.
func NewAxisSets() AxisSets {
	return AxisSets{
		Mismatch: map[string]string{},
		Rebuild:  map[string]string{},
		Missing:  map[string]string{},
		Unsafe:   map[string]string{},
	}
}

// Replace computes REPLACE = union of the four axes (or MISMATCH ∪
// MISSING in fetch-only mode), minus excluded bases and minus bases
// already in FAILED.
func (a AxisSets) Replace(mode Mode, excluded map[string]bool, failed map[string]bool) map[string]string {
	out := map[string]string{}
	add := func(m map[string]string) {
		for base, path := range m {
			if excluded[base] || failed[base] {
				continue
			}
			out[base] = path
		}
	}
	add(a.Mismatch)
	add(a.Missing)
	if mode == ModeReplace {
		add(a.Rebuild)
		add(a.Unsafe)
	}
	return out
}

func (a AxisSets) removeBase(base string) {
	delete(a.Mismatch, base)
	delete(a.Rebuild, base)
	delete(a.Missing, base)
	delete(a.Unsafe, base)
}

// DependencyResolver resolves a pkgpattern (from a Makefile's
// BUILD_DEPENDS/TOOL_DEPENDS/DEPENDS) to the pkgbase it names, using the
// three-tier shortcut spec.md §4.11 describes: memoised cache, literal
// version-range base, then a `make` invocation.
type DependencyResolver interface {
	// SourceDepends returns the pattern:path pairs declared by base's
	// Makefile (BUILD_DEPENDS ∪ TOOL_DEPENDS ∪ DEPENDS), re-invoked with
	// PKGNAME_REQD=<base>-[0-9]*.
	SourceDepends(base string) ([]PatternPath, error)
	// ResolveBase resolves one pattern:path pair to a pkgbase. The Driver
	// memoises its results, so each pair is resolved at most once per
	// Driver.
	ResolveBase(pp PatternPath) (string, error)
	// Installed reports whether base is currently installed.
	Installed(base string) bool
}

// PatternPath is one `<pattern>:../../<path>` dependency declaration.
type PatternPath struct {
	Pattern string
	Path    string
}

// Builder performs the per-base build action and the post-build safety
// audit.
type Builder interface {
	// Fetch runs `make fetch depends-fetch` for base at path.
	Fetch(base, path string) error
	// Build runs clean/install-or-replace/clean for base at path, then
	// audits pkg_info -Bq output: returns auditFatal=true (regardless of
	// err) if the sanity audit itself found a fatal condition.
	Build(base, path string) (auditFatal bool, err error)
	// WhoRequires returns the bases that declare a build/tool/run
	// dependency on base, used for unsafe-marker propagation.
	WhoRequires(base string) ([]string, error)
	// UnsafeDependents returns, for base, the subset of its reverse
	// dependents (from WhoRequires) that currently report
	// unsafe_depends[_strict]=YES.
	UnsafeDependents(base string, reverseDeps []string) ([]string, error)
}

// Hook routes progress and log output, mirroring checkengine.Hook.
type Hook struct {
	Msg     func(format string, args ...any)
	Warn    func(format string, args ...any)
	Verbose func(format string, args ...any)
	Fatal   func(format string, args ...any)
}

func (h Hook) msg(format string, args ...any) {
	if h.Msg != nil {
		h.Msg(format, args...)
	}
}
func (h Hook) verbose(format string, args ...any) {
	if h.Verbose != nil {
		h.Verbose(format, args...)
	}
}

// Driver owns the graph, axis sets, and bookkeeping for one rr run.
type Driver struct {
	Mode       Mode
	KeepGoing  bool
	DryRun     bool
	Excluded   map[string]bool
	Resolver   DependencyResolver
	Builder    Builder
	Hook       Hook

	Graph  *depgraph.Graph[string]
	frozen []string // snapshot of graph vertices right after initial construction

	Axes            AxisSets
	DependsChecked  map[string]bool
	Succeeded       []string
	Failed          []string

	patternBaseCache map[PatternPath]string
}

// New creates a Driver seeded with the initial axis sets and a
// graph already populated by breadth-first discovery (the caller builds
// the graph via discovery + cycle-break before calling New, since that
// step needs pkg_info access this package doesn't own).
func New(mode Mode, axes AxisSets, graph *depgraph.Graph[string], excluded map[string]bool, resolver DependencyResolver, builder Builder, hook Hook, keepGoing, dryRun bool) *Driver {
	d := &Driver{
		Mode:             mode,
		KeepGoing:        keepGoing,
		DryRun:           dryRun,
		Excluded:         excluded,
		Resolver:         resolver,
		Builder:          builder,
		Hook:             hook,
		Graph:            graph,
		Axes:             axes,
		DependsChecked:   map[string]bool{},
		patternBaseCache: map[PatternPath]string{},
	}
	d.frozen = graph.Vertices()
	return d
}

// resolveBase consults the Driver's memoisation cache, then ResolveBase
// (cmd/rr's implementation takes the base literally from a version-range
// pattern and otherwise shells out to make).
func (d *Driver) resolveBase(pp PatternPath) (string, error) {
	if base, ok := d.patternBaseCache[pp]; ok {
		return base, nil
	}
	base, err := d.Resolver.ResolveBase(pp)
	if err != nil {
		return "", err
	}
	d.patternBaseCache[pp] = base
	return base, nil
}

// refreshDepends reconciles base's source-declared dependencies against
// the graph's current out-edges (step 2 of the main loop).
func (d *Driver) refreshDepends(base string) error {
	deps, err := d.Resolver.SourceDepends(base)
	if err != nil {
		return err
	}

	newEdges := map[string]string{}
	for _, pp := range deps {
		depBase, err := d.resolveBase(pp)
		if err != nil {
			return err
		}
		newEdges[depBase] = pp.Path
	}

	current := map[string]bool{}
	for _, v := range d.Graph.OutEdges(base) {
		current[v] = true
	}

	newVertices := map[string]bool{}
	for v := range newEdges {
		newVertices[v] = true
	}
	if setsEqual(current, newVertices) {
		d.DependsChecked[base] = true
		return nil
	}

	for v := range current {
		d.Graph.RemoveEdge(base, v)
	}
	for v, path := range newEdges {
		d.Graph.AddEdge(base, v)
		if !d.Resolver.Installed(v) {
			if _, known := d.Axes.Missing[v]; !known {
				d.Axes.Missing[v] = path
			}
		}
	}
	d.DependsChecked[base] = true
	return nil
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// performAction runs the fetch-only or replace action for base, and the
// post-build safety audit in replace mode.
func (d *Driver) performAction(base, path string) error {
	if d.Mode == ModeFetchOnly {
		return d.Builder.Fetch(base, path)
	}
	auditFatal, err := d.Builder.Build(base, path)
	if err != nil {
		return err
	}
	if auditFatal {
		return fmt.Errorf("replace: %s failed post-build safety audit", base)
	}
	return nil
}

// propagateUnsafe re-queries who_requires for base and marks any
// dependent reporting unsafe_depends[_strict]=YES as UNSAFE, adding a
// dependent -> base graph edge for each. In dry-run mode every reverse
// dependent is included (an approximation, since no build actually ran).
func (d *Driver) propagateUnsafe(base, path string) error {
	deps, err := d.Builder.WhoRequires(base)
	if err != nil {
		return err
	}

	var unsafeDeps []string
	if d.DryRun {
		unsafeDeps = deps
	} else {
		unsafeDeps, err = d.Builder.UnsafeDependents(base, deps)
		if err != nil {
			return err
		}
	}

	for _, dep := range unsafeDeps {
		if _, known := d.Axes.Unsafe[dep]; !known {
			d.Axes.Unsafe[dep] = path
		}
		d.Graph.AddEdge(dep, base)
	}
	return nil
}

// Run executes the main loop until REPLACE is empty, or a failure aborts
// the run (when KeepGoing is false).
func (d *Driver) Run() error {
	failedSet := map[string]bool{}

	for {
		replaceSet := d.Axes.Replace(d.Mode, d.Excluded, failedSet)
		if len(replaceSet) == 0 {
			return nil
		}

		order, err := d.Graph.Tsort(true)
		if err != nil {
			return fmt.Errorf("replace: %w", err)
		}

		base, path, found := firstInReplace(order, replaceSet)
		if !found {
			// Every remaining REPLACE member is absent from the graph
			// (shouldn't happen once discovery seeds REPLACE, but guard
			// against it rather than looping forever).
			for b, p := range replaceSet {
				base, path = b, p
				break
			}
		}

		if !d.DependsChecked[base] {
			if err := d.refreshDepends(base); err != nil {
				return d.fail(base, err, &failedSet)
			}
			continue // re-tsort on the next pass
		}

		d.Hook.msg("building %s", base)
		if err := d.performAction(base, path); err != nil {
			if ferr := d.fail(base, err, &failedSet); ferr != nil {
				return ferr
			}
			continue
		}

		if d.Mode == ModeReplace {
			if err := d.propagateUnsafe(base, path); err != nil {
				return d.fail(base, err, &failedSet)
			}
		}

		d.Axes.removeBase(base)
		d.Succeeded = append(d.Succeeded, base)
	}
}

func (d *Driver) fail(base string, cause error, failedSet *map[string]bool) error {
	if d.Hook.Fatal != nil {
		d.Hook.Fatal("%s: %v", base, cause)
	}
	d.Failed = append(d.Failed, base)
	(*failedSet)[base] = true
	d.Axes.removeBase(base)
	if !d.KeepGoing {
		return fmt.Errorf("replace: aborting after %s failed (succeeded=%v failed=%v): %w", base, d.Succeeded, d.Failed, cause)
	}
	return nil
}

// firstInReplace walks order (leaves-first tsort) forward and returns the
// first vertex present in replaceSet, i.e. the least-dependent member of
// REPLACE still outstanding.
func firstInReplace(order []string, replaceSet map[string]string) (base, path string, found bool) {
	for _, v := range order {
		if p, ok := replaceSet[v]; ok {
			return v, p, true
		}
	}
	return "", "", false
}
