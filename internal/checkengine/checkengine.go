// Package checkengine classifies installed packages against either a
// source pkgsrc tree or a binary summary - chk's core; cmd/rr does not
// use it. Grounded on spec.md's C9 and
// on internal/nursery for the per-pkgpath concurrency it runs under.
package checkengine

import (
	"fmt"
	"sort"
	"sync"

	"pkgtool/internal/nursery"
	"pkgtool/internal/pkgname"
	"pkgtool/internal/summary"
)

// Mode selects how candidates are gathered and how near-miss versions
// are treated.
type Mode int

const (
	ModeCheck Mode = iota
	ModeAddMissing
	ModeUpdate
	ModeDeleteMismatched
)

// Status classifies one candidate pkgname against the installed set.
type Status int

const (
	StatusOK Status = iota
	StatusMissing
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusMissing:
		return "MISSING"
	case StatusMismatch:
		return "MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// Finding is one classified candidate.
type Finding struct {
	PkgPath string
	Name    pkgname.Pkgname
	Status  Status
}

// Installed abstracts the installed-package view the engine classifies
// candidates against: an index of installed names by base, and
// optionally their build-version maps (for -B strict comparison).
type Installed struct {
	Index      *pkgname.NameIndex
	BuildVers  map[string]map[string]string // pkgname -> VAR -> VALUE
	deletedSet map[string]bool
}

// NewInstalled wraps an index (and optional build-version maps) for
// classification, with support for marking names deleted mid-run.
func NewInstalled(idx *pkgname.NameIndex, buildVers map[string]map[string]string) *Installed {
	return &Installed{Index: idx, BuildVers: buildVers, deletedSet: map[string]bool{}}
}

// MarkDeleted records name as removed during this driver run: subsequent
// candidate checks skip it, per spec.md's "deleted" bookkeeping.
func (in *Installed) MarkDeleted(name string) {
	in.deletedSet[name] = true
}

func (in *Installed) isDeleted(name string) bool { return in.deletedSet[name] }

// SourceCandidates resolves the default pkgname for a pkgpath plus, in
// update/delete-mismatched modes, one alternative per installed base
// sharing that pkgpath - via callbacks so tests don't need a real
// pkgsrc tree or `make` binary.
type SourceCandidates struct {
	// Default returns the Makefile's default pkgname for pkgpath.
	Default func(pkgpath string) (pkgname.Pkgname, error)
	// Reinvoke re-invokes make with PKGNAME_REQD=<base>-[0-9]* and
	// returns the resulting pkgname. ok is false if the returned base
	// doesn't match the request (the pkgpath no longer supplies it).
	Reinvoke func(pkgpath string, base pkgname.Pkgbase) (n pkgname.Pkgname, ok bool, err error)
}

// Candidates computes the latest-candidates set for one pkgpath from
// source, per mode.
func (sc SourceCandidates) Candidates(mode Mode, pkgpath string, installedBasesAtPath []pkgname.Pkgbase, warn func(string, ...any)) ([]pkgname.Pkgname, error) {
	def, err := sc.Default(pkgpath)
	if err != nil {
		return nil, err
	}
	out := []pkgname.Pkgname{def}

	if mode != ModeUpdate && mode != ModeDeleteMismatched {
		return out, nil
	}
	for _, base := range installedBasesAtPath {
		if base == def.Base {
			continue
		}
		n, ok, err := sc.Reinvoke(pkgpath, base)
		if err != nil {
			return nil, err
		}
		if !ok {
			warn("pkgpath %s no longer supplies base %s", pkgpath, base)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// BinaryCandidates computes the latest-candidates set for one pkgpath
// from a summary-derived Pkgmap.
func BinaryCandidates(mode Mode, pkgpath string, pm summary.Pkgmap, installedIdx *pkgname.NameIndex) []pkgname.Pkgname {
	byBase, ok := pm[pkgpath]
	if !ok {
		return nil
	}

	bases := make([]string, 0, len(byBase))
	for b := range byBase {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	// add_missing: heuristically pick just the alphabetically-greatest
	// pkgbase's latest version as "the" default for this pkgpath.
	if mode == ModeAddMissing {
		if len(bases) == 0 {
			return nil
		}
		greatest := bases[len(bases)-1]
		return []pkgname.Pkgname{latestInSummary(byBase[greatest])}
	}

	var out []pkgname.Pkgname
	for _, b := range bases {
		switch mode {
		case ModeUpdate, ModeDeleteMismatched:
			// Only bases already installed.
			if installedIdx == nil {
				continue
			}
			if _, found := latestInstalledForBase(installedIdx, pkgname.Pkgbase(b)); !found {
				continue
			}
		default:
			// Plain check: every pkgname summary-reachable from this pkgpath.
		}
		out = append(out, latestInSummary(byBase[b]))
	}
	return out
}

func latestInSummary(s *summary.Summary) pkgname.Pkgname {
	var best pkgname.Pkgname
	first := true
	for _, v := range s.All() {
		n, err := pkgname.ParseName(v.PkgName)
		if err != nil {
			continue
		}
		if first || pkgname.Compare(n.Version, best.Version) > 0 {
			best = n
			first = false
		}
	}
	return best
}

func latestInstalledForBase(idx *pkgname.NameIndex, base pkgname.Pkgbase) (pkgname.Pkgname, bool) {
	var best pkgname.Pkgname
	found := false
	idx.RangeFromBase(base, func(n pkgname.Pkgname) bool {
		if !found || pkgname.Compare(n.Version, best.Version) > 0 {
			best = n
			found = true
		}
		return true
	})
	return best, found
}

// Hook lets the driver route progress/diagnostics to either a TTY
// progress bar or a log, per spec.md's pluggable-hook requirement.
type Hook struct {
	Msg     func(format string, args ...any)
	Warn    func(format string, args ...any)
	Verbose func(format string, args ...any)
	Fatal   func(format string, args ...any)
	// Progress is called once per classified pkgpath with (done, total).
	Progress func(done, total int)
}

func (h Hook) msg(format string, args ...any) {
	if h.Msg != nil {
		h.Msg(format, args...)
	}
}
func (h Hook) warn(format string, args ...any) {
	if h.Warn != nil {
		h.Warn(format, args...)
	}
}

// Classify classifies one candidate against the installed set. strict is
// the -B flag: when set and the versions are equal, the installed
// package's recorded build-version map is additionally compared against
// candidateBuildVers (the candidate's build-version map as computed
// fresh from source/binary at check time) and a mismatch downgrades OK
// to MISMATCH. candidateBuildVers is ignored when strict is false.
func Classify(candidate pkgname.Pkgname, candidateBuildVers map[string]string, in *Installed, strict bool) Status {
	if in.isDeleted(candidate.Format()) {
		return StatusOK // already handled this run; caller should skip re-acting on it
	}

	installed, found := latestInstalledForBase(in.Index, candidate.Base)
	if !found {
		return StatusMissing
	}

	cmp := pkgname.Compare(installed.Version, candidate.Version)
	switch {
	case cmp == 0:
		if strict && in.BuildVers != nil {
			if !buildVersEqual(in.BuildVers[installed.Format()], candidateBuildVers) {
				return StatusMismatch
			}
		}
		return StatusOK
	case cmp < 0:
		return StatusMismatch
	default: // installed is newer than candidate
		if strict {
			return StatusMismatch
		}
		return StatusOK
	}
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

// Run classifies every pkgpath in pkgpaths concurrently under a nursery
// bounded at maxWorkers, calling gather to obtain that pkgpath's
// candidate set and classify to score each one, and reports progress
// through hook.
func Run(pkgpaths []string, maxWorkers int, gather func(pkgpath string) ([]pkgname.Pkgname, error), classify func(pkgname.Pkgname) Status, hook Hook) ([]Finding, error) {
	var (
		resultsMu sync.Mutex
		findings  []Finding
		done      int
	)
	total := len(pkgpaths)

	n := nursery.New(maxWorkers)

	for _, pp := range pkgpaths {
		pp := pp
		if err := n.StartSoon(func() error {
			candidates, err := gather(pp)
			if err != nil {
				hook.warn("%s: %v", pp, err)
				return fmt.Errorf("checkengine: gathering candidates for %s: %w", pp, err)
			}
			var local []Finding
			for _, c := range candidates {
				local = append(local, Finding{PkgPath: pp, Name: c, Status: classify(c)})
			}
			resultsMu.Lock()
			findings = append(findings, local...)
			done++
			if hook.Progress != nil {
				hook.Progress(done, total)
			}
			resultsMu.Unlock()
			return nil
		}); err != nil {
			break
		}
	}

	if err := n.Close(); err != nil {
		return nil, err
	}
	return findings, nil
}
