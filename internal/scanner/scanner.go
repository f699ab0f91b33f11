// Package scanner runs one `pkg_info -Bq NAME` child per installed
// package, concurrently, and extracts boolean build-info flags along
// multiple independent axes in a single pass over each child's output -
// spec.md's C8.
//
// Grounded on the teacher's pkg/bulk.go BulkQueue fan-out-then-collect
// shape, reimplemented on internal/nursery, and on internal/procharness
// for the `pkg_info -Bq` / `pkg_info -a` child invocations.
package scanner

import (
	"bufio"
	"strings"
	"sync"

	"pkgtool/internal/nursery"
	"pkgtool/internal/pkgname"
	"pkgtool/internal/procharness"
)

// Axis is an (axis-name, flag-name, exclude-set) triple: it collects the
// set of installed packages whose `pkg_info -Bq` output contains
// FLAG=YES (case-insensitive), excluding any package whose full name or
// pkgbase is in Exclude. An
// axis with an empty Flag is a catch-all: it matches every installed
// package regardless of its build-info flags, which is how callers that
// just want a full PKGPATH-tagged inventory (no flag filtering) ask for
// one - see AllAxis.
type Axis struct {
	Name    string
	Flag    string
	Exclude map[string]bool
}

// AllAxis is a catch-all axis matching every installed package, keyed by
// its own Name. Pass []Axis{AllAxis("inventory")} to Scan to get a
// PKGPATH-tagged list of everything installed, with no flag filtering.
func AllAxis(name string) Axis {
	return Axis{Name: name}
}

// Entry is one package matching an axis, tagged with its PKGPATH.
type Entry struct {
	PkgName pkgname.Pkgname
	PkgPath string
}

// Result maps each axis name to the set of matching entries.
type Result map[string][]Entry

// PkgInfoRunner abstracts invoking `pkg_info -Bq NAME` (and the
// `pkg_info -a` enumeration of installed names), so tests can stub it
// without a real pkgsrc installation.
type PkgInfoRunner interface {
	// ListInstalled returns every installed PKGNAME.
	ListInstalled() ([]string, error)
	// BuildInfo returns the `pkg_info -Bq name` VAR=VALUE lines for name.
	BuildInfo(name string) (string, error)
}

// ExecPkgInfoRunner shells out to the real pkg_info(1) binary.
type ExecPkgInfoRunner struct {
	PkgInfo string // path to pkg_info, e.g. from pkgenv.Env.PkgInfo
}

func (r ExecPkgInfoRunner) ListInstalled() ([]string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: r.PkgInfo,
		Args:    []string{"-a"},
		Stdin:   procharness.Close,
		Stdout:  procharness.Pipe,
		Stderr:  procharness.Close,
		Default: procharness.ActionWaitSuccess,
	})
	if err != nil {
		return nil, err
	}
	defer h.Close()
	sc := bufio.NewScanner(h.Stdout())
	var names []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	if werr := h.Wait(); werr != nil {
		return nil, werr
	}
	return names, nil
}

func (r ExecPkgInfoRunner) BuildInfo(name string) (string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: r.PkgInfo,
		Args:    []string{"-Bq", name},
		Stdin:   procharness.Close,
		Stdout:  procharness.Pipe,
		Stderr:  procharness.Close,
		Default: procharness.ActionWaitSuccess,
	})
	if err != nil {
		return "", err
	}
	defer h.Close()
	var sb strings.Builder
	sc := bufio.NewScanner(h.Stdout())
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
	}
	if werr := h.Wait(); werr != nil {
		return "", werr
	}
	return sb.String(), nil
}

// Scan enumerates installed packages via runner.ListInstalled, then runs
// one BuildInfo child per package under a nursery bounded at maxWorkers,
// evaluating every axis against every VAR=VALUE line. All axis futures
// resolve together at the end; if any child failed, that error is
// returned and Result is nil (the scanner's "drop rethrows" contract).
func Scan(runner PkgInfoRunner, axes []Axis, maxWorkers int) (Result, error) {
	names, err := runner.ListInstalled()
	if err != nil {
		return nil, err
	}

	result := make(Result, len(axes))
	for _, a := range axes {
		result[a.Name] = nil
	}

	var mu sync.Mutex
	n := nursery.New(maxWorkers)

	for _, name := range names {
		name := name
		if serr := n.StartSoon(func() error {
			body, err := runner.BuildInfo(name)
			if err != nil {
				return err
			}
			entry, matchedAxes := evaluateOne(name, body, axes)
			if len(matchedAxes) == 0 {
				return nil
			}
			mu.Lock()
			for _, axisName := range matchedAxes {
				result[axisName] = append(result[axisName], entry)
			}
			mu.Unlock()
			return nil
		}); serr != nil {
			break
		}
	}

	if err := n.Close(); err != nil {
		return nil, err
	}
	return result, nil
}

// evaluateOne scans one child's VAR=VALUE lines against every axis, in a
// single pass, and returns the package entry (populated only if at least
// one axis matched) plus the list of axis names it matched.
func evaluateOne(rawName, body string, axes []Axis) (Entry, []string) {
	n, err := pkgname.ParseName(rawName)
	if err != nil {
		return Entry{}, nil
	}
	entry := Entry{PkgName: n}

	matched := map[string]bool{}
	for _, line := range strings.Split(body, "\n") {
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := line[idx+1:]
		if key == "PKGPATH" {
			entry.PkgPath = val
			continue
		}
		for _, a := range axes {
			if matched[a.Name] || a.Flag == "" {
				continue
			}
			if key != a.Flag {
				continue
			}
			if a.Exclude[rawName] || a.Exclude[string(n.Base)] {
				continue
			}
			if strings.EqualFold(val, "yes") {
				matched[a.Name] = true
			}
		}
	}

	for _, a := range axes {
		if a.Flag == "" && !a.Exclude[rawName] && !a.Exclude[string(n.Base)] {
			matched[a.Name] = true
		}
	}

	var names []string
	for name := range matched {
		names = append(names, name)
	}
	return entry, names
}
