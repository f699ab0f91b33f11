// Command chk checks installed packages against either a binary package
// repository or the pkgsrc tree and reports mismatched and missing
// packages; under -a/-r/-u it also adds or replaces them one at a time.
// cmd/rr is the companion that rebuilds installed packages in dependency
// order.
//
// Grounded on the teacher's cmd/build.go for the overall cobra-plus-
// config-plus-logger bootstrap shape, generalized from a single "build"
// verb into chk's many mutually exclusive modes.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pkgtool/internal/checkengine"
	"pkgtool/internal/config"
	"pkgtool/internal/pkgconf"
	"pkgtool/internal/pkgenv"
	"pkgtool/internal/pkgname"
	"pkgtool/internal/procharness"
	"pkgtool/internal/rlog"
	"pkgtool/internal/scanner"
	"pkgtool/internal/summary"
)

type options struct {
	addMissing        bool
	deleteMismatched  bool
	update            bool
	buildVersionStrict bool
	useBinary         bool
	buildFromSource   bool
	configPath        string
	addTags           string
	removeTags        string
	noClean           bool
	fetchOnly         bool
	generateConfig    bool
	help              bool
	concurrency       int
	keepGoing         bool
	logFile           string
	listBinPackages   bool
	lookupTODO        bool
	dryRun            bool
	packagesDir       string
	printOnly         bool
	quiet             bool
	verbose           bool
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "chk",
		Short:         "check installed packages against pkgsrc or a binary repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := root.Flags()
	f.BoolVarP(&opts.addMissing, "add-missing", "a", false, "install packages present in the target set but not installed")
	f.BoolVarP(&opts.buildVersionStrict, "build-version-strict", "B", false, "treat a build-version mismatch as MISMATCH even when the pkgname matches")
	f.BoolVarP(&opts.useBinary, "use-binary", "b", false, "check against the binary package summary")
	f.StringVarP(&opts.configPath, "config", "C", "", "override the directory holding pkgtool.ini")
	f.StringVarP(&opts.addTags, "add-tags", "D", "", "comma-separated tags to add")
	f.BoolVarP(&opts.noClean, "no-clean", "d", false, "skip `make clean` after a source build")
	f.BoolVarP(&opts.fetchOnly, "fetch-only", "f", false, "fetch distfiles only, do not build")
	f.BoolVarP(&opts.generateConfig, "generate-config", "g", false, "generate a config file from the installed set and exit")
	f.BoolVarP(&opts.help, "help-long", "h", false, "show usage")
	f.IntVarP(&opts.concurrency, "jobs", "j", 0, "concurrency (defaults to config MaxWorkers)")
	f.BoolVarP(&opts.keepGoing, "keep-going", "k", false, "continue past failures")
	f.StringVarP(&opts.logFile, "log-file", "L", "", "append all messages to FILE")
	f.BoolVarP(&opts.listBinPackages, "list-bin-packages", "l", false, "list binary packages and exit")
	f.BoolVarP(&opts.lookupTODO, "lookup-todo", "N", false, "open PKGCHK_UPDATE_CONF, report its path and exit (entries are not looked up)")
	f.BoolVarP(&opts.dryRun, "dry-run", "n", false, "log actions without performing them")
	f.StringVarP(&opts.packagesDir, "packages-dir", "P", "", "override the binary packages directory")
	f.BoolVarP(&opts.printOnly, "print", "p", false, "print the computed pkgpath set and exit")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress informational messages")
	f.BoolVarP(&opts.deleteMismatched, "delete-mismatched", "r", false, "delete and reinstall mismatched packages")
	f.BoolVarP(&opts.buildFromSource, "build-from-source", "s", false, "check against the pkgsrc tree")
	f.StringVarP(&opts.removeTags, "remove-tags", "U", "", "comma-separated tags to remove ('*' for all)")
	f.BoolVarP(&opts.update, "update", "u", false, "update mismatched packages by deleting and reinstalling them (PKGCHK_UPDATE_CONF is not written)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chk:", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	var logFile *os.File
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logFile = f
	}

	reporter := rlog.New(rlog.ToolCHK, os.Stdout, logFile, opts.verbose, opts.quiet)

	modes := 0
	if opts.addMissing || opts.deleteMismatched || opts.update {
		modes++
	}
	if opts.generateConfig {
		modes++
	}
	if opts.listBinPackages {
		modes++
	}
	if opts.lookupTODO {
		modes++
	}
	if modes > 1 {
		reporter.Fatal("mutually exclusive modes requested")
		return fmt.Errorf("chk: only one of add_delete_update/generate-config/list-bin-packages/lookup-todo may be given")
	}

	cfg, err := config.Load(opts.configPath, "")
	if err != nil {
		reporter.Fatal("loading config: %v", err)
		return err
	}
	if opts.concurrency <= 0 {
		opts.concurrency = cfg.MaxWorkers
	}

	env, err := pkgenv.Resolve(pkgenv.ExecRunner{})
	if err != nil {
		reporter.Fatal("resolving pkgsrc environment: %v", err)
		return err
	}
	if opts.packagesDir != "" {
		env.Packages = opts.packagesDir
	}

	if !opts.useBinary && !opts.buildFromSource {
		opts.useBinary = true
	}

	switch {
	case opts.listBinPackages:
		return doListBinPackages(opts, env, reporter)
	case opts.generateConfig:
		return doGenerateConfig(opts, env, reporter)
	case opts.lookupTODO:
		return doLookupTODO(opts, env, reporter)
	default:
		return doCheck(opts, cfg, env, reporter)
	}
}

func doListBinPackages(opts *options, env pkgenv.Env, reporter *rlog.Reporter) error {
	s, err := summary.Load(env.Packages, nil, &summary.BinaryFallback{
		Dir:     env.Packages,
		PkgSufx: env.PkgSufx,
		Runner:  xargsOverSh{},
		Workers: 4,
	}, reporter.AsLibraryLogger())
	if err != nil {
		reporter.Fatal("loading summary: %v", err)
		return err
	}
	for _, v := range s.All() {
		reporter.Msg("%s", v.PkgName)
	}
	return exitWith(reporter)
}

func doGenerateConfig(opts *options, env pkgenv.Env, reporter *rlog.Reporter) error {
	result, err := scanner.Scan(scanner.ExecPkgInfoRunner{PkgInfo: firstOr(env.PkgInfo, "pkg_info")}, []scanner.Axis{scanner.AllAxis("all")}, 1)
	if err != nil {
		reporter.Fatal("scanning installed set: %v", err)
		return err
	}
	seen := map[string]bool{}
	for _, e := range result["all"] {
		if !seen[e.PkgPath] {
			seen[e.PkgPath] = true
			reporter.Msg("%s", e.PkgPath)
		}
	}
	return exitWith(reporter)
}

func doLookupTODO(opts *options, env pkgenv.Env, reporter *rlog.Reporter) error {
	f, err := os.Open(env.PkgchkUpdateConf)
	if err != nil {
		reporter.Fatal("opening update conf: %v", err)
		return err
	}
	defer f.Close()
	reporter.Msg("update conf loaded from %s", env.PkgchkUpdateConf)
	return exitWith(reporter)
}

func doCheck(opts *options, cfg *config.Config, env pkgenv.Env, reporter *rlog.Reporter) error {
	confFile, err := os.Open(firstOr(env.PkgchkConf, cfg.PkgchkConf))
	if err != nil {
		reporter.Fatal("opening pkgchk.conf: %v", err)
		return err
	}
	parsed, err := pkgconf.Parse(confFile)
	confFile.Close()
	if err != nil {
		reporter.Fatal("parsing pkgchk.conf: %v", err)
		return err
	}

	included := splitCSV(opts.addTags)
	excluded := splitCSV(opts.removeTags)
	if opts.removeTags == "*" {
		excluded = parsed.Tags()
	}
	filtered := pkgconf.Filter(parsed, included, env.Platform.Tags(), excluded)

	var pkgpaths []string
	for _, def := range parsed.Defs {
		if def.IsTag {
			continue
		}
		if _, ok := filtered[def.PkgPath]; ok {
			pkgpaths = append(pkgpaths, def.PkgPath)
		}
	}

	if opts.printOnly {
		for _, pp := range pkgpaths {
			reporter.Msg("%s", pp)
		}
		return exitWith(reporter)
	}

	scanAll, err := scanner.Scan(scanner.ExecPkgInfoRunner{PkgInfo: firstOr(env.PkgInfo, "pkg_info")}, []scanner.Axis{scanner.AllAxis("all")}, opts.concurrency)
	if err != nil {
		reporter.Fatal("scanning installed packages: %v", err)
		return err
	}
	scanResult := map[string][]scanner.Entry{}
	for _, e := range scanAll["all"] {
		scanResult[e.PkgPath] = append(scanResult[e.PkgPath], e)
	}

	mode := checkengine.ModeCheck
	switch {
	case opts.addMissing:
		mode = checkengine.ModeAddMissing
	case opts.deleteMismatched:
		mode = checkengine.ModeDeleteMismatched
	case opts.update:
		mode = checkengine.ModeUpdate
	}

	hook := checkengine.Hook{
		Msg:     reporter.Msg,
		Warn:    reporter.Warn,
		Verbose: reporter.Verbose,
		Fatal:   reporter.Fatal,
	}

	var allInstalled []pkgname.Pkgname
	for _, entries := range scanResult {
		for _, e := range entries {
			allInstalled = append(allInstalled, e.PkgName)
		}
	}
	installed := checkengine.NewInstalled(pkgname.NewNameIndex(allInstalled), map[string]map[string]string{})

	var pm summary.Pkgmap
	if opts.useBinary {
		s, err := summary.Load(env.Packages, nil, &summary.BinaryFallback{
			Dir:     env.Packages,
			PkgSufx: env.PkgSufx,
			Runner:  xargsOverSh{},
			Workers: 4,
		}, reporter.AsLibraryLogger())
		if err != nil {
			reporter.Warn("loading binary summary, falling back to source: %v", err)
			opts.useBinary = false
		} else {
			pm = summary.BuildPkgmap(s)
		}
	}

	gather := func(pkgpath string) ([]pkgname.Pkgname, error) {
		var installedBases []pkgname.Pkgbase
		for _, e := range scanResult[pkgpath] {
			installedBases = append(installedBases, e.PkgName.Base)
		}
		if opts.useBinary {
			return checkengine.BinaryCandidates(mode, pkgpath, pm, installed.Index), nil
		}
		sc := checkengine.SourceCandidates{}
		return sc.Candidates(mode, pkgpath, installedBases, reporter.Warn)
	}

	classify := func(candidate pkgname.Pkgname) checkengine.Status {
		return checkengine.Classify(candidate, map[string]string{}, installed, opts.buildVersionStrict)
	}

	findings, err := checkengine.Run(pkgpaths, opts.concurrency, gather, classify, hook)
	if err != nil {
		reporter.Fatal("check run: %v", err)
		return err
	}

	acting := opts.addMissing || opts.deleteMismatched || opts.update
	for _, finding := range findings {
		if finding.Status == checkengine.StatusOK {
			continue
		}
		reporter.Msg("%-40s %s", finding.Name, finding.Status)
		if !acting {
			continue
		}
		if err := performAction(opts, env, mode, pm, finding, reporter); err != nil {
			reporter.Warn("%s: %v", finding.Name, err)
			if !opts.keepGoing {
				return err
			}
		}
	}

	return exitWith(reporter)
}

// performAction carries out the add/delete/install work a non-OK finding
// calls for, per the mode that produced it: add-missing only acts on
// MISSING, delete-mismatched and update replace MISMATCH in place. -n
// (dry-run) logs the action instead of performing it.
func performAction(opts *options, env pkgenv.Env, mode checkengine.Mode, pm summary.Pkgmap, finding checkengine.Finding, reporter *rlog.Reporter) error {
	switch finding.Status {
	case checkengine.StatusMissing:
		return addCandidate(opts, env, pm, finding, reporter)
	case checkengine.StatusMismatch:
		if mode == checkengine.ModeAddMissing {
			return nil // add-missing never touches an already-installed base
		}
		if err := deleteBase(opts, env, finding.Name.Base, reporter); err != nil {
			return err
		}
		return addCandidate(opts, env, pm, finding, reporter)
	}
	return nil
}

func addCandidate(opts *options, env pkgenv.Env, pm summary.Pkgmap, finding checkengine.Finding, reporter *rlog.Reporter) error {
	if opts.useBinary {
		file := binaryFileName(pm, finding)
		if file == "" {
			return fmt.Errorf("no binary package file known for %s", finding.Name)
		}
		path := file
		if !strings.Contains(path, string(os.PathSeparator)) {
			path = env.Packages + string(os.PathSeparator) + path
		}
		if opts.dryRun {
			reporter.Msg("would run: %s %s", firstOr(env.PkgAdd, "pkg_add"), path)
			return nil
		}
		return procharness.Run(suConfig(env, "", firstOr(env.PkgAdd, "pkg_add"), []string{path}))
	}

	targets := []string{"install"}
	if opts.fetchOnly {
		targets = []string{"fetch", "depends-fetch"}
	}
	if opts.dryRun {
		reporter.Msg("would run: make %s (%s)", strings.Join(targets, " "), finding.PkgPath)
		return nil
	}
	privileged := !opts.fetchOnly
	buildCfg := procharness.Config{Command: "make", Args: targets, Dir: finding.PkgPath}
	if privileged {
		buildCfg = suConfig(env, finding.PkgPath, "make", targets)
	}
	if err := procharness.Run(buildCfg); err != nil {
		return err
	}
	if !opts.noClean {
		return procharness.Run(procharness.Config{Command: "make", Args: []string{"clean"}, Dir: finding.PkgPath})
	}
	return nil
}

func deleteBase(opts *options, env pkgenv.Env, base pkgname.Pkgbase, reporter *rlog.Reporter) error {
	pattern := string(base) + "-[0-9]*"
	if opts.dryRun {
		reporter.Msg("would run: %s -r %s", firstOr(env.PkgDelete, "pkg_delete"), pattern)
		return nil
	}
	return procharness.Run(suConfig(env, "", firstOr(env.PkgDelete, "pkg_delete"), []string{"-r", pattern}))
}

// suConfig builds a procharness.Config for a privileged command, prefixing
// it with env.SuCmd when set (pkgsrc's own SU_CMD escalation convention).
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

func binaryFileName(pm summary.Pkgmap, finding checkengine.Finding) string {
	byBase, ok := pm[finding.PkgPath]
	if !ok {
		return ""
	}
	sub, ok := byBase[string(finding.Name.Base)]
	if !ok {
		return ""
	}
	v, ok := sub.Get(finding.Name.Format())
	if !ok {
		return ""
	}
	return v.FileName
}

func exitWith(reporter *rlog.Reporter) error {
	if code := reporter.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
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

// xargsOverSh is the BinaryFallback.Runner chk passes to summary.Load. It
// runs nothing and returns an error, so a fallback scan reports the
// condition rather than silently returning an empty summary.
type xargsOverSh struct{}

func (xargsOverSh) Run(names []string) (string, error) {
	return "", fmt.Errorf("xargs fallback not configured")
}
