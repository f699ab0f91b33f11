// Command rr drives the rebuild/reinstall loop: it scans the installed
// set for mismatches, rebuild markers, missing dependencies and unsafe
// markers, then walks the dependency graph in reverse-topological order
// rebuilding exactly what needs it. cmd/chk is the companion that
// classifies packages per pkgpath and, under -a/-r/-u, adds or replaces
// them one at a time without a dependency-ordered rebuild.
//
// Grounded on the teacher's cmd/build.go bootstrap (config load, signal
// handling, confirmation prompt before a destructive run) generalized
// from a single ordered port list to the replacement driver's dynamic
// TODO-set-driven loop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"pkgtool/internal/config"
	"pkgtool/internal/depgraph"
	"pkgtool/internal/nursery"
	"pkgtool/internal/pkgenv"
	"pkgtool/internal/pkgname"
	"pkgtool/internal/procharness"
	"pkgtool/internal/replace"
	"pkgtool/internal/rlog"
	"pkgtool/internal/rundb"
	"pkgtool/internal/scanner"
	"pkgtool/internal/util"
)

type options struct {
	buildVersionStrict bool
	makeVars           []string
	fetchOnly          bool
	help               bool
	keepGoing          bool
	logDir             string
	dryRun             bool
	dontKeepBinaries   bool
	strict             bool
	scanSourceFirst    bool
	verbose            bool
	excludeRebuild     string
	excludeMismatch    string

	configPath  string
	concurrency int
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "rr",
		Short:         "rebuild and reinstall packages flagged mismatched, stale, missing, or unsafe",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := root.Flags()
	f.BoolVarP(&opts.buildVersionStrict, "build-version-strict", "B", false, "treat a build-version mismatch as MISMATCH")
	f.StringArrayVarP(&opts.makeVars, "define", "D", nil, "VAR=VAL passed to every make invocation")
	f.BoolVarP(&opts.fetchOnly, "fetch-only", "F", false, "fetch distfiles and dependencies only, do not build")
	f.BoolVarP(&opts.help, "help-long", "h", false, "show usage")
	f.BoolVarP(&opts.keepGoing, "keep-going", "k", false, "continue past a failed package instead of aborting")
	f.StringVarP(&opts.logDir, "log-dir", "L", "", "per-package build log directory")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "log actions without performing them")
	f.BoolVarP(&opts.dontKeepBinaries, "no-binary", "r", false, "do not keep a binary package after a successful build")
	f.BoolVarP(&opts.strict, "strict", "s", false, "use unsafe_depends_strict instead of unsafe_depends")
	f.BoolVarP(&opts.scanSourceFirst, "scan-source", "u", false, "scan the source tree for mismatches before starting")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	f.StringVarP(&opts.excludeRebuild, "exclude-rebuild", "X", "", "comma-separated bases excluded from rebuild")
	f.StringVarP(&opts.excludeMismatch, "exclude-mismatch", "x", "", "comma-separated bases excluded from mismatch detection")
	f.StringVarP(&opts.configPath, "config", "C", "", "override the directory holding pkgtool.ini")
	f.IntVarP(&opts.concurrency, "jobs", "j", 0, "scan concurrency (defaults to config MaxWorkers)")

	statusConfigPath := ""
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "report the most recent run recorded for every pkgbase",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(statusConfigPath)
		},
	}
	statusCmd.Flags().StringVarP(&statusConfigPath, "config", "C", "", "override the directory holding pkgtool.ini")
	root.AddCommand(statusCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rr:", err)
		os.Exit(1)
	}
}

// runStatus implements the `rr status` sub-command: a read-only report
// over internal/rundb's history, so a follow-up invocation can see what
// the last run did without reparsing per-package logs. It never retries
// or rolls anything back - that remains an explicit Non-goal.
func runStatus(configPath string) error {
	reporter := rlog.New(rlog.ToolRR, os.Stdout, nil, false, false)

	cfg, err := config.Load(configPath, "")
	if err != nil {
		reporter.Fatal("loading config: %v", err)
		return err
	}

	db, err := rundb.Open(cfg.RunDBPath)
	if err != nil {
		reporter.Fatal("opening run history: %v", err)
		return err
	}
	defer db.Close()

	runs, err := db.ListAttempts()
	if err != nil {
		reporter.Fatal("reading run history: %v", err)
		return err
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].PkgBase < runs[j].PkgBase })

	for _, r := range runs {
		reason := r.Reason
		if reason != "" {
			reason = ": " + reason
		}
		reporter.Msg("%-24s %-10s %s%s", r.PkgBase, r.Outcome, r.EndedAt.Format("2006-01-02 15:04:05"), reason)
	}
	return exitWith(reporter)
}

func run(opts *options) error {
	reporter := rlog.New(rlog.ToolRR, os.Stdout, nil, opts.verbose, false)

	cfg, err := config.Load(opts.configPath, "")
	if err != nil {
		reporter.Fatal("loading config: %v", err)
		return err
	}
	if opts.concurrency <= 0 {
		opts.concurrency = cfg.MaxWorkers
	}
	logDir := opts.logDir
	if logDir == "" {
		logDir = cfg.LogDir
	}

	env, err := pkgenv.Resolve(pkgenv.ExecRunner{})
	if err != nil {
		reporter.Fatal("resolving pkgsrc environment: %v", err)
		return err
	}

	db, err := rundb.Open(cfg.RunDBPath)
	if err != nil {
		reporter.Fatal("opening run history: %v", err)
		return err
	}
	defer db.Close()

	excludeRebuild := toSet(splitCSV(opts.excludeRebuild))
	excludeMismatch := toSet(splitCSV(opts.excludeMismatch))

	flagName := "unsafe_depends"
	if opts.strict {
		flagName = "unsafe_depends_strict"
	}

	axes := replace.NewAxisSets()
	scanAxes := []scanner.Axis{
		{Name: "mismatch", Flag: "mismatch", Exclude: excludeMismatch},
		{Name: "rebuild", Flag: "rebuild", Exclude: excludeRebuild},
		{Name: "unsafe", Flag: flagName, Exclude: nil},
	}

	scanResult, err := scanner.Scan(scanner.ExecPkgInfoRunner{PkgInfo: firstOr(env.PkgInfo, "pkg_info")}, scanAxes, opts.concurrency)
	if err != nil {
		reporter.Fatal("scanning installed packages: %v", err)
		return err
	}
	for _, e := range scanResult["mismatch"] {
		axes.Mismatch[string(e.PkgName.Base)] = e.PkgPath
	}
	for _, e := range scanResult["rebuild"] {
		axes.Rebuild[string(e.PkgName.Base)] = e.PkgPath
	}
	for _, e := range scanResult["unsafe"] {
		axes.Unsafe[string(e.PkgName.Base)] = e.PkgPath
	}

	if opts.scanSourceFirst {
		if err := rescanMismatchFromSource(env, axes, reporter, opts.buildVersionStrict); err != nil {
			reporter.Warn("source mismatch rescan failed: %v", err)
		}
	}

	resolver := &execResolver{env: env}

	graph, err := discoverGraph(env, resolver, opts.concurrency, axes.Replace(modeOf(opts), nil, nil))
	if err != nil {
		reporter.Fatal("building dependency graph: %v", err)
		return err
	}
	breakFetchUsingCycle(graph, env.FetchUsing)

	builder := &execBuilder{env: env, dryRun: opts.dryRun, logDir: logDir, makeVars: opts.makeVars, dontKeepBinaries: opts.dontKeepBinaries, db: db}

	driver := replace.New(
		modeOf(opts),
		axes,
		graph,
		nil,
		resolver,
		builder,
		replace.Hook{
			Msg:     reporter.Msg,
			Warn:    reporter.Warn,
			Verbose: reporter.Verbose,
			Fatal:   reporter.Fatal,
		},
		opts.keepGoing,
		opts.dryRun,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		reporter.Fatal("interrupted")
		os.Exit(1)
	}()

	if len(driver.Axes.Replace(modeOf(opts), nil, nil)) == 0 {
		reporter.Msg("nothing to do")
		return exitWith(reporter)
	}

	if !opts.dryRun && !util.AskYN(fmt.Sprintf("rebuild %d package(s)?", len(driver.Axes.Replace(modeOf(opts), nil, nil))), true) {
		reporter.Msg("aborted")
		return nil
	}

	if runErr := driver.Run(); runErr != nil {
		reporter.Fatal("%v", runErr)
		return runErr
	}

	reporter.Msg("succeeded: %s", strings.Join(driver.Succeeded, " "))
	if len(driver.Failed) > 0 {
		reporter.Warn("failed: %s", strings.Join(driver.Failed, " "))
	}

	return exitWith(reporter)
}

func modeOf(opts *options) replace.Mode {
	if opts.fetchOnly {
		return replace.ModeFetchOnly
	}
	return replace.ModeReplace
}

// rescanMismatchFromSource implements -u: recheck every package already
// known to the mismatch axis against its source tree rather than trusting
// the installed build-version cache, per spec.md's "source-based
// mismatch recheck" (and, as a side effect, bulk-sets mismatch=YES via
// pkg_admin on anything it confirms). strict mirrors -B: when unset, only
// PKGVERSION is compared; when set, the full build-version map must match,
// matching chk's "-B additionally compares build-version maps" rule.
func rescanMismatchFromSource(env pkgenv.Env, axes replace.AxisSets, reporter *rlog.Reporter, strict bool) error {
	reporter.Verbose("rescanning %d mismatch candidates against source", len(axes.Mismatch))
	for base, path := range axes.Mismatch {
		installedVers, err := pkgInfoBuildVers(env, base)
		if err != nil {
			reporter.Warn("reading installed build-version for %s: %v", base, err)
			continue
		}
		sourceVers, err := sourceBuildVers(path)
		if err != nil {
			reporter.Warn("computing source build-version for %s: %v", base, err)
			continue
		}
		equal := installedVers["PKGVERSION"] == sourceVers["PKGVERSION"]
		if strict {
			equal = buildVersEqual(installedVers, sourceVers)
		}
		if equal {
			delete(axes.Mismatch, base)
			continue
		}
		if err := procharness.Run(suConfig(env, "", firstOr(env.PkgAdmin, "pkg_admin"), []string{"set", "mismatch=YES", base})); err != nil {
			reporter.Warn("marking %s (%s) mismatched: %v", base, path, err)
		}
	}
	return nil
}

func buildVersEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// pkgInfoBuildVers parses `pkg_info -Bq base` key=value output.
func pkgInfoBuildVers(env pkgenv.Env, base string) (map[string]string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: firstOr(env.PkgInfo, "pkg_info"),
		Args:    []string{"-Bq", base},
		Stdin:   procharness.Close, Stdout: procharness.Pipe, Stderr: procharness.Close,
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()
	buf := make([]byte, 8192)
	n, _ := h.Stdout().Read(buf)
	if err := h.Wait(); err != nil {
		return nil, err
	}
	return parseKeyVals(string(buf[:n])), nil
}

// sourceBuildVers runs `make _BUILD_VERSION_FILE=<tmp> <tmp>` in path and
// reads back the key/value pairs it writes, per spec.md's §6 external
// command list.
func sourceBuildVers(path string) (map[string]string, error) {
	tmp, err := os.CreateTemp("", "pkgtool-buildvers-")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := procharness.Run(procharness.Config{
		Command: "make",
		Args:    []string{fmt.Sprintf("_BUILD_VERSION_FILE=%s", tmpPath), tmpPath},
		Dir:     path,
		Stdin:   procharness.Close, Stdout: procharness.Close, Stderr: procharness.Close,
	}); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}
	return parseKeyVals(string(content)), nil
}

func parseKeyVals(s string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// discoverGraph builds the installed-package dependency graph by
// breadth-first discovery seeded from REPLACE, recording @blddep out-edges
// read from pkg_info per spec.md §4.11: packages not yet installed (e.g. a
// build-only dependency since deinstalled) are skipped rather than queried,
// and a package with no blddep entries is still added as a bare vertex so
// the depends-refresh pass can find it on first visit.
func discoverGraph(env pkgenv.Env, resolver *execResolver, concurrency int, seed map[string]string) (*depgraph.Graph[string], error) {
	graph := depgraph.New[string](true)
	var mu sync.Mutex

	toScan := map[string]bool{}
	for base := range seed {
		toScan[base] = true
	}

	for len(toScan) > 0 {
		scheduled := map[string]bool{}

		n := nursery.New(concurrency)
		for base := range toScan {
			base := base
			_ = n.StartSoon(func() error {
				if !resolver.Installed(base) {
					return nil
				}
				deps, err := pkgInfoBuildDepends(env, base)
				if err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				if len(deps) == 0 {
					graph.AddVertex(base)
					return nil
				}
				for _, dep := range deps {
					if !graph.HasVertex(dep) {
						scheduled[dep] = true
					}
					graph.AddEdge(base, dep)
				}
				return nil
			})
		}
		if err := n.Close(); err != nil {
			return nil, err
		}

		toScan = scheduled
	}

	return graph, nil
}

// breakFetchUsingCycle removes every in-edge to the FETCH_USING bootstrap
// fetch helper: it shows up as a BOOTSTRAP_DEPENDS on nearly every package,
// which would otherwise make the installed graph cyclic. Any real
// BUILD_DEPENDS/DEPENDS use of it is rediscovered by refreshDepends once
// that package is actually visited.
func breakFetchUsingCycle(graph *depgraph.Graph[string], fetchUsing string) {
	if fetchUsing == "" {
		return
	}
	for _, u := range graph.InEdges(fetchUsing) {
		graph.RemoveEdge(u, fetchUsing)
	}
}

// pkgInfoBuildDepends returns the pkgbases named by base's recorded
// @blddep entries (BUILD_DEPENDS ∪ DEPENDS, not TOOL_DEPENDS), read via
// `pkg_info -Q @blddep base`.
func pkgInfoBuildDepends(env pkgenv.Env, base string) ([]string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: firstOr(env.PkgInfo, "pkg_info"),
		Args:    []string{"-Q", "@blddep", base},
		Stdin:   procharness.Close, Stdout: procharness.Pipe, Stderr: procharness.Close,
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	buf := make([]byte, 65536)
	n, _ := h.Stdout().Read(buf)
	if err := h.Wait(); err != nil {
		return nil, err
	}

	var deps []string
	for _, line := range strings.Split(string(buf[:n]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, err := pkgname.ParseName(line); err == nil {
			deps = append(deps, string(name.Base))
		}
	}
	return deps, nil
}

// execResolver implements replace.DependencyResolver via `make
// show-depends` and `pkg_info -e`.
type execResolver struct {
	env pkgenv.Env
}

func (r *execResolver) SourceDepends(base string) ([]replace.PatternPath, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: "make",
		Args:    []string{"show-depends", "VARNAME=BUILD_DEPENDS TOOL_DEPENDS DEPENDS", fmt.Sprintf("PKGNAME_REQD=%s-[0-9]*", base)},
		Stdin:   procharness.Close, Stdout: procharness.Pipe, Stderr: procharness.Close,
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()

	var deps []replace.PatternPath
	buf := make([]byte, 65536)
	n, _ := h.Stdout().Read(buf)
	for _, line := range strings.Split(string(buf[:n]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		deps = append(deps, replace.PatternPath{Pattern: parts[0], Path: strings.TrimPrefix(parts[1], "../../")})
	}
	if err := h.Wait(); err != nil {
		return nil, err
	}
	return deps, nil
}

func (r *execResolver) ResolveBase(pp replace.PatternPath) (string, error) {
	if idx := strings.IndexAny(pp.Pattern, "<>="); idx > 0 {
		return pp.Pattern[:idx], nil
	}
	h, err := procharness.Spawn(procharness.Config{
		Command: "make",
		Args:    []string{fmt.Sprintf("PKGNAME_REQD=%s", pp.Pattern), "show-var", "VARNAME=PKGBASE"},
		Stdin:   procharness.Close, Stdout: procharness.Pipe, Stderr: procharness.Close,
	})
	if err != nil {
		return "", err
	}
	defer h.Close()
	buf := make([]byte, 4096)
	n, _ := h.Stdout().Read(buf)
	if err := h.Wait(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

func (r *execResolver) Installed(base string) bool {
	err := procharness.Run(procharness.Config{
		Command: firstOr(r.env.PkgInfo, "pkg_info"),
		Args:    []string{"-e", base + "-[0-9]*"},
	})
	return err == nil
}

// execBuilder implements replace.Builder via make and pkg_info/pkg_admin.
// Every Build/Fetch call is recorded as a run in db, so a later invocation
// can report the most recent outcome per base even across process
// restarts.
type execBuilder struct {
	env              pkgenv.Env
	dryRun           bool
	logDir           string
	makeVars         []string
	dontKeepBinaries bool
	db               *rundb.DB
}

func (b *execBuilder) recordRun(base, path string, do func() (bool, error)) (bool, error) {
	run, err := b.db.StartRun(base, path)
	if err != nil {
		return do()
	}
	auditFatal, runErr := do()
	outcome := rundb.OutcomeSucceeded
	reason := ""
	if runErr != nil {
		outcome = rundb.OutcomeFailed
		reason = runErr.Error()
	} else if auditFatal {
		outcome = rundb.OutcomeFailed
		reason = "post-build safety audit failed"
	}
	_ = b.db.Finish(run, outcome, reason)
	return auditFatal, runErr
}

func (b *execBuilder) makeArgs(targets ...string) []string {
	args := append([]string{}, b.makeVars...)
	return append(args, targets...)
}

func (b *execBuilder) runLogged(base, path string, args []string) error {
	return b.runLoggedAs(base, path, args, false)
}

// runLoggedAs runs `make args...` in path, escalating via SU_CMD when
// privileged is set (make install/replace write outside the pkgsrc tree,
// unlike fetch/clean).
func (b *execBuilder) runLoggedAs(base, path string, args []string, privileged bool) error {
	if b.dryRun {
		return nil
	}
	var logger *rlog.PackageLogger
	if b.logDir != "" {
		l, err := rlog.OpenPackageLogger(b.logDir, base, path)
		if err == nil {
			logger = l
			defer logger.Close()
			logger.WriteHeader()
		}
	}
	var cfg procharness.Config
	if privileged {
		cfg = suConfig(b.env, path, "make", args)
	} else {
		cfg = procharness.Config{Command: "make", Args: args, Dir: path}
	}
	cfg.Stdin = procharness.Close
	if logger != nil {
		cfg.Stdout = procharness.Pipe
		cfg.Stderr = procharness.MergeWithStdout
	} else {
		cfg.Stdout = procharness.Inherit
		cfg.Stderr = procharness.Inherit
	}
	h, err := procharness.Spawn(cfg)
	if err != nil {
		return err
	}
	defer h.Close()
	if logger != nil {
		buf := make([]byte, 32768)
		for {
			n, rerr := h.Stdout().Read(buf)
			if n > 0 {
				logger.Write(buf[:n])
			}
			if rerr != nil {
				break
			}
		}
	}
	return h.Wait()
}

func (b *execBuilder) Fetch(base, path string) error {
	_, err := b.recordRun(base, path, func() (bool, error) {
		return false, b.runLogged(base, path, b.makeArgs("fetch", "depends-fetch"))
	})
	return err
}

func (b *execBuilder) Build(base, path string) (bool, error) {
	return b.recordRun(base, path, func() (bool, error) {
		if err := b.runLogged(base, path, b.makeArgs("clean")); err != nil {
			return false, err
		}
		action := "replace"
		if !b.installedAlready(base) {
			action = "install"
		}
		if err := b.runLoggedAs(base, path, b.makeArgs(action), true); err != nil {
			return false, err
		}
		if action == "install" && !b.dryRun {
			_ = procharness.Run(suConfig(b.env, "", firstOr(b.env.PkgAdmin, "pkg_admin"), []string{"set", "automatic=YES", base}))
		}
		if err := b.runLogged(base, path, b.makeArgs("clean")); err != nil {
			return false, err
		}
		if b.dontKeepBinaries && !b.dryRun {
			b.removeBinaryPackage(base)
		}
		return b.auditFatal(base), nil
	})
}

// removeBinaryPackage deletes the binary package file make replace/install
// leaves under PACKAGES, honoring -r (don't keep binary packages).
func (b *execBuilder) removeBinaryPackage(base string) {
	vars, err := pkgInfoBuildVers(b.env, base)
	if err != nil || vars["PKGNAME"] == "" {
		return
	}
	_ = os.Remove(filepath.Join(b.env.Packages, vars["PKGNAME"]+b.env.PkgSufx))
}

func (b *execBuilder) installedAlready(base string) bool {
	return procharness.Run(procharness.Config{
		Command: firstOr(b.env.PkgInfo, "pkg_info"),
		Args:    []string{"-e", base + "-[0-9]*"},
	}) == nil
}

// auditFatal implements the post-build sanity audit: any of
// mismatch/rebuild/unsafe_depends[_strict] still reporting YES, or a
// freshly (re)installed package missing automatic=YES, is fatal.
func (b *execBuilder) auditFatal(base string) bool {
	if b.dryRun {
		return false
	}
	vars, err := pkgInfoBuildVers(b.env, base)
	if err != nil {
		return true
	}
	for _, marker := range []string{"mismatch", "rebuild", "unsafe_depends", "unsafe_depends_strict"} {
		if vars[marker] == "YES" {
			return true
		}
	}
	return vars["automatic"] != "YES"
}

func (b *execBuilder) WhoRequires(base string) ([]string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: firstOr(b.env.PkgInfo, "pkg_info"),
		Args:    []string{"-aQ", "@blddep"},
		Stdin:   procharness.Close, Stdout: procharness.Pipe, Stderr: procharness.Close,
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()
	buf := make([]byte, 65536)
	n, _ := h.Stdout().Read(buf)
	_ = h.Wait()

	var out []string
	for _, line := range strings.Split(string(buf[:n]), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, base) {
			if name, err := pkgname.ParseName(line); err == nil {
				out = append(out, string(name.Base))
			}
		}
	}
	return out, nil
}

func (b *execBuilder) UnsafeDependents(base string, reverseDeps []string) ([]string, error) {
	var unsafe []string
	for _, dep := range reverseDeps {
		if b.auditFatal(dep) {
			unsafe = append(unsafe, dep)
		}
	}
	return unsafe, nil
}

func exitWith(reporter *rlog.Reporter) error {
	if code := reporter.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

// suConfig builds a procharness.Config for a privileged command, prefixing
// it with env.SuCmd when set (pkgsrc's own SU_CMD convention for
// escalating pkg_add/pkg_delete/pkg_admin/make install/replace).
func suConfig(env pkgenv.Env, dir, command string, args []string) procharness.Config {
	if env.SuCmd == "" {
		return procharness.Config{Command: command, Args: args, Dir: dir}
	}
	suArgs := strings.Fields(env.SuCmd)
	return procharness.Config{
		Command: suArgs[0],
		Args:    append(append(append([]string{}, suArgs[1:]...), command), args...),
		Dir:     dir,
	}
}

func firstOr(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toSet(vals []string) map[string]bool {
	m := map[string]bool{}
	for _, v := range vals {
		m[v] = true
	}
	return m
}
