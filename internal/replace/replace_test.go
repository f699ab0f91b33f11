package replace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pkgtool/internal/depgraph"
)

type stubResolver struct {
	depends   map[string][]PatternPath
	resolve   map[PatternPath]string
	installed map[string]bool
}

func (s *stubResolver) SourceDepends(base string) ([]PatternPath, error) {
	return s.depends[base], nil
}

func (s *stubResolver) ResolveBase(pp PatternPath) (string, error) {
	if base, ok := s.resolve[pp]; ok {
		return base, nil
	}
	return "", errors.New("no resolution for " + pp.Pattern)
}

func (s *stubResolver) Installed(base string) bool { return s.installed[base] }

type stubBuilder struct {
	fetchCalls []string
	buildCalls []string
	buildErr   map[string]error
	auditFatal map[string]bool
	whoReq     map[string][]string
	unsafeDeps map[string][]string
}

func (b *stubBuilder) Fetch(base, path string) error {
	b.fetchCalls = append(b.fetchCalls, base)
	return nil
}

func (b *stubBuilder) Build(base, path string) (bool, error) {
	b.buildCalls = append(b.buildCalls, base)
	if err, ok := b.buildErr[base]; ok {
		return b.auditFatal[base], err
	}
	return b.auditFatal[base], nil
}

func (b *stubBuilder) WhoRequires(base string) ([]string, error) {
	return b.whoReq[base], nil
}

func (b *stubBuilder) UnsafeDependents(base string, reverseDeps []string) ([]string, error) {
	return b.unsafeDeps[base], nil
}

func TestAxisSetsReplaceUnionsAllFourInReplaceMode(t *testing.T) {
	axes := NewAxisSets()
	axes.Mismatch["foo"] = "cat/foo"
	axes.Rebuild["bar"] = "cat/bar"
	axes.Missing["baz"] = "cat/baz"
	axes.Unsafe["qux"] = "cat/qux"

	out := axes.Replace(ModeReplace, nil, nil)
	require.Len(t, out, 4)
	require.Equal(t, "cat/foo", out["foo"])
	require.Equal(t, "cat/qux", out["qux"])
}

func TestAxisSetsReplaceFetchOnlyExcludesRebuildAndUnsafe(t *testing.T) {
	axes := NewAxisSets()
	axes.Mismatch["foo"] = "cat/foo"
	axes.Rebuild["bar"] = "cat/bar"
	axes.Missing["baz"] = "cat/baz"
	axes.Unsafe["qux"] = "cat/qux"

	out := axes.Replace(ModeFetchOnly, nil, nil)
	require.Len(t, out, 2)
	require.Contains(t, out, "foo")
	require.Contains(t, out, "baz")
}

func TestAxisSetsReplaceExcludesExcludedAndFailedBases(t *testing.T) {
	axes := NewAxisSets()
	axes.Mismatch["foo"] = "cat/foo"
	axes.Missing["baz"] = "cat/baz"

	out := axes.Replace(ModeReplace, map[string]bool{"foo": true}, map[string]bool{"baz": true})
	require.Empty(t, out)
}

func TestRunBuildsInReverseTopologicalOrder(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddEdge("app", "lib")
	graph.AddEdge("lib", "core")

	axes := NewAxisSets()
	axes.Mismatch["app"] = "cat/app"
	axes.Mismatch["lib"] = "cat/lib"
	axes.Mismatch["core"] = "cat/core"

	resolver := &stubResolver{installed: map[string]bool{"app": true, "lib": true, "core": true}}
	builder := &stubBuilder{buildErr: map[string]error{}, auditFatal: map[string]bool{}, whoReq: map[string][]string{}, unsafeDeps: map[string][]string{}}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, false, false)
	// Pre-mark DEPENDS_CHECKED so the loop goes straight to building.
	d.DependsChecked["app"] = true
	d.DependsChecked["lib"] = true
	d.DependsChecked["core"] = true

	require.NoError(t, d.Run())
	require.Equal(t, []string{"core", "lib", "app"}, builder.buildCalls)
	require.Equal(t, []string{"core", "lib", "app"}, d.Succeeded)
	require.Empty(t, d.Failed)
}

func TestRunRefreshesDependsOnFirstVisitAndAddsNewMissing(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("app")

	axes := NewAxisSets()
	axes.Mismatch["app"] = "cat/app"

	pp := PatternPath{Pattern: "lib>=1.0", Path: "cat/lib"}
	resolver := &stubResolver{
		depends:   map[string][]PatternPath{"app": {pp}},
		resolve:   map[PatternPath]string{pp: "lib"},
		installed: map[string]bool{"app": true},
	}
	builder := &stubBuilder{buildErr: map[string]error{}, auditFatal: map[string]bool{}, whoReq: map[string][]string{}, unsafeDeps: map[string][]string{}}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, false, false)
	require.NoError(t, d.Run())

	// lib entered MISSING on app's first visit, was built first as app's
	// dependency, and left every axis set once built.
	require.Empty(t, d.Axes.Missing)
	require.True(t, graph.HasVertex("lib"))
	require.Contains(t, graph.OutEdges("app"), "lib")

	require.Equal(t, []string{"lib", "app"}, builder.buildCalls)
}

func TestRunPropagatesUnsafeMarkersAfterBuild(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("core")

	axes := NewAxisSets()
	axes.Mismatch["core"] = "cat/core"

	// app's source declares core, so the refresh on app's first visit keeps
	// the dependent -> base edge that propagation added.
	pp := PatternPath{Pattern: "core>=1.0", Path: "cat/core"}
	resolver := &stubResolver{
		depends:   map[string][]PatternPath{"app": {pp}},
		resolve:   map[PatternPath]string{pp: "core"},
		installed: map[string]bool{"core": true, "app": true},
	}
	builder := &stubBuilder{
		buildErr:   map[string]error{},
		auditFatal: map[string]bool{},
		whoReq:     map[string][]string{"core": {"app"}},
		unsafeDeps: map[string][]string{"core": {"app"}},
	}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, false, false)
	d.DependsChecked["core"] = true

	require.NoError(t, d.Run())
	// app was marked UNSAFE, so it is rebuilt after core (and then leaves
	// the set).
	require.Equal(t, []string{"core", "app"}, builder.buildCalls)
	require.Contains(t, graph.OutEdges("app"), "core")
}

func TestRunAbortsOnFailureWithoutKeepGoing(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("broken")

	axes := NewAxisSets()
	axes.Mismatch["broken"] = "cat/broken"

	resolver := &stubResolver{installed: map[string]bool{"broken": true}}
	builder := &stubBuilder{
		buildErr:   map[string]error{"broken": errors.New("build failed")},
		auditFatal: map[string]bool{},
		whoReq:     map[string][]string{},
		unsafeDeps: map[string][]string{},
	}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, false, false)
	d.DependsChecked["broken"] = true

	err := d.Run()
	require.Error(t, err)
	require.Equal(t, []string{"broken"}, d.Failed)
}

func TestRunKeepGoingContinuesPastFailure(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("broken")
	graph.AddVertex("ok")

	axes := NewAxisSets()
	axes.Mismatch["broken"] = "cat/broken"
	axes.Mismatch["ok"] = "cat/ok"

	resolver := &stubResolver{installed: map[string]bool{"broken": true, "ok": true}}
	builder := &stubBuilder{
		buildErr:   map[string]error{"broken": errors.New("build failed")},
		auditFatal: map[string]bool{},
		whoReq:     map[string][]string{},
		unsafeDeps: map[string][]string{},
	}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, true, false)
	d.DependsChecked["broken"] = true
	d.DependsChecked["ok"] = true

	require.NoError(t, d.Run())
	require.Equal(t, []string{"broken"}, d.Failed)
	require.Equal(t, []string{"ok"}, d.Succeeded)
}

func TestRunFetchOnlyCallsFetchNotBuild(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("foo")

	axes := NewAxisSets()
	axes.Mismatch["foo"] = "cat/foo"

	resolver := &stubResolver{installed: map[string]bool{"foo": true}}
	builder := &stubBuilder{buildErr: map[string]error{}, auditFatal: map[string]bool{}, whoReq: map[string][]string{}, unsafeDeps: map[string][]string{}}

	d := New(ModeFetchOnly, axes, graph, nil, resolver, builder, Hook{}, false, false)
	d.DependsChecked["foo"] = true

	require.NoError(t, d.Run())
	require.Equal(t, []string{"foo"}, builder.fetchCalls)
	require.Empty(t, builder.buildCalls)
}

func TestRunDryRunTreatsAllReverseDependentsAsUnsafe(t *testing.T) {
	graph := depgraph.New[string](true)
	graph.AddVertex("core")

	axes := NewAxisSets()
	axes.Mismatch["core"] = "cat/core"

	resolver := &stubResolver{installed: map[string]bool{"core": true}}
	builder := &stubBuilder{
		buildErr:   map[string]error{},
		auditFatal: map[string]bool{},
		whoReq:     map[string][]string{"core": {"app1", "app2"}},
		unsafeDeps: map[string][]string{"core": {}}, // would report none if queried for real
	}

	d := New(ModeReplace, axes, graph, nil, resolver, builder, Hook{}, false, true)
	d.DependsChecked["core"] = true

	require.NoError(t, d.Run())
	// Both reverse dependents were marked UNSAFE without consulting
	// UnsafeDependents, so both are rebuilt after core and leave the set.
	require.Equal(t, []string{"core", "app1", "app2"}, builder.buildCalls)
	require.Empty(t, d.Axes.Unsafe)
}
