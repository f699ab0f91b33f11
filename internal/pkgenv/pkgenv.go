// Package pkgenv resolves the pkgsrc build environment chk and rr run
// against: PKGSRCDIR, MAKECONF, the binary package tree, the platform
// tags used by pattern matching, and the handful of pkgsrc tool paths
// (PKG_INFO, PKG_ADD, ...) that spec.md's C6 names.
//
// Grounded on the teacher's config.LoadConfig (probing a short list of
// candidate directories, falling back to a default, never failing setup
// just because a directory is absent) and config.GetSystemInfo
// (golang.org/x/sys/unix.Uname), generalized from dsynth's fixed build
// paths to pkgsrc's env-var-then-mk.conf-then-guess resolution order.
package pkgenv

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"pkgtool/internal/procharness"
)

// guessedPkgsrcDirs are probed, in order, when PKGSRCDIR is not set by
// the environment or mk.conf and the marker file mk/bsd.pkg.mk is found
// under one of them.
var guessedPkgsrcDirs = []string{
	"/usr/pkgsrc",
	"/usr/pkg/pkgsrc",
	"/opt/pkgsrc",
	"/usr/local/pkgsrc",
}

// Platform carries the three tags pattern matching and summary lookups
// key off: OPSYS, OS_VERSION, MACHINE_ARCH.
type Platform struct {
	OPSYS       string
	OSVersion   string
	MachineArch string
}

// Tags projects the platform triple into the tag names pkgconf.Filter
// matches pkg-defs against.
func (p Platform) Tags() []string {
	return []string{p.OPSYS, p.OSVersion, p.MachineArch}
}

// Env is a resolved snapshot of the pkgsrc build environment. It is not
// safe to share across goroutines that might each want to override a
// field (e.g. a per-worker PKG_PATH) - callers that need isolated copies
// should call Clone.
type Env struct {
	PkgPath  string // captured at resolution time, then unset from os.Environ for children
	MakeConf string
	PkgsrcDir string

	PkgInfo   string
	PkgAdd    string
	PkgDelete string
	PkgAdmin  string
	PkgSufx   string

	Packages string // adjusted to Packages/All if that subdirectory exists

	SuCmd string

	// FetchUsing is the pkgbase of the bootstrap fetch helper (FETCH_USING,
	// e.g. "curl"). It shows up as a BOOTSTRAP_DEPENDS on nearly everything,
	// which would otherwise make the installed dependency graph look
	// cyclic; the replacement driver cuts its in-edges after discovery.
	FetchUsing string

	PkgchkConf       string
	PkgchkTags       []string
	PkgchkNoTags     []string
	PkgchkUpdateConf string

	Platform Platform
}

// Clone returns a deep-enough copy for a goroutine that wants to mutate
// its own view (e.g. override PkgPath) without racing siblings.
func (e Env) Clone() Env {
	c := e
	c.PkgchkTags = append([]string(nil), e.PkgchkTags...)
	c.PkgchkNoTags = append([]string(nil), e.PkgchkNoTags...)
	return c
}

// Resolve builds an Env from the process environment, mk.conf, and a
// fallback probe of well-known pkgsrc locations. runner is used to shell
// out to uname(1) if golang.org/x/sys/unix.Uname fails (e.g. when cross
// compiled for a platform where the syscall isn't wired up).
func Resolve(runner Runner) (Env, error) {
	var e Env

	e.PkgPath = os.Getenv("PKG_PATH")
	os.Unsetenv("PKG_PATH")

	e.PkgsrcDir = os.Getenv("PKGSRCDIR")
	e.MakeConf = os.Getenv("MAKECONF")
	if e.MakeConf == "" {
		e.MakeConf = "/etc/mk.conf"
	}

	if e.PkgsrcDir == "" {
		if v, ok := readMkConfVar(e.MakeConf, "PKGSRCDIR"); ok {
			e.PkgsrcDir = v
		}
	}
	if e.PkgsrcDir == "" {
		for _, candidate := range guessedPkgsrcDirs {
			if _, err := os.Stat(filepath.Join(candidate, "mk", "bsd.pkg.mk")); err == nil {
				e.PkgsrcDir = candidate
				break
			}
		}
	}
	if e.PkgsrcDir == "" {
		return e, fmt.Errorf("pkgenv: could not locate pkgsrc tree (set PKGSRCDIR)")
	}

	e.PkgInfo = firstNonEmpty(os.Getenv("PKG_INFO"), "pkg_info")
	e.PkgAdd = firstNonEmpty(os.Getenv("PKG_ADD"), "pkg_add")
	e.PkgDelete = firstNonEmpty(os.Getenv("PKG_DELETE"), "pkg_delete")
	e.PkgAdmin = firstNonEmpty(os.Getenv("PKG_ADMIN"), "pkg_admin")
	e.PkgSufx = firstNonEmpty(os.Getenv("PKG_SUFX"), ".tgz")
	e.SuCmd = os.Getenv("SU_CMD")

	e.FetchUsing = os.Getenv("FETCH_USING")
	if e.FetchUsing == "" {
		if v, ok := readMkConfVar(e.MakeConf, "FETCH_USING"); ok {
			e.FetchUsing = v
		}
	}

	e.Packages = os.Getenv("PACKAGES")
	if e.Packages == "" {
		if v, ok := readMkConfVar(e.MakeConf, "PACKAGES"); ok {
			e.Packages = v
		}
	}
	if e.Packages == "" {
		e.Packages = filepath.Join(e.PkgsrcDir, "packages")
	}
	if info, err := os.Stat(filepath.Join(e.Packages, "All")); err == nil && info.IsDir() {
		e.Packages = filepath.Join(e.Packages, "All")
	}

	e.PkgchkConf = firstNonEmpty(os.Getenv("PKGCHK_CONF"), "/etc/pkgchk.conf")
	e.PkgchkUpdateConf = os.Getenv("PKGCHK_UPDATE_CONF")
	e.PkgchkTags = splitFields(os.Getenv("PKGCHK_TAGS"))
	e.PkgchkNoTags = splitFields(os.Getenv("PKGCHK_NOTAGS"))

	plat, err := resolvePlatform(runner)
	if err != nil {
		return e, err
	}
	e.Platform = plat

	return e, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitFields(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

// readMkConfVar does a best-effort, non-recursive scan of a Makefile-style
// conf file for a "VAR=value" or "VAR?=value" assignment. It does not
// evaluate make(1) expressions - if the value needs full make semantics,
// callers fall through to guessing or leave the field unset.
func readMkConfVar(path, name string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, sep := range []string{"?=", "+=", "="} {
			idx := strings.Index(line, sep)
			if idx <= 0 {
				continue
			}
			key := strings.TrimSpace(line[:idx])
			if key != name {
				continue
			}
			val := strings.TrimSpace(line[idx+len(sep):])
			val = strings.Trim(val, `"`)
			return val, true
		}
	}
	return "", false
}

// Runner shells out to uname(1) when the unix.Uname syscall is
// unavailable. ExecRunner below adapts internal/procharness to it; tests
// supply a stub.
type Runner interface {
	Output(name string, args ...string) (string, error)
}

// ExecRunner runs commands through internal/procharness.
type ExecRunner struct{}

func (ExecRunner) Output(name string, args ...string) (string, error) {
	h, err := procharness.Spawn(procharness.Config{
		Command: name,
		Args:    args,
		Stdin:   procharness.Close,
		Stdout:  procharness.Pipe,
		Stderr:  procharness.Close,
		Default: procharness.ActionWaitSuccess,
	})
	if err != nil {
		return "", err
	}
	defer h.Close()

	out, readErr := io.ReadAll(h.Stdout())
	if waitErr := h.Wait(); waitErr != nil {
		return "", waitErr
	}
	if readErr != nil {
		return "", readErr
	}
	return strings.TrimSpace(string(out)), nil
}

func resolvePlatform(runner Runner) (Platform, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		return Platform{
			OPSYS:       trimNul(uts.Sysname[:]),
			OSVersion:   trimNul(uts.Release[:]),
			MachineArch: trimNul(uts.Machine[:]),
		}, nil
	}

	if runner == nil {
		return Platform{}, fmt.Errorf("pkgenv: uname(2) unavailable and no fallback runner configured")
	}
	sysname, err := runner.Output("uname", "-s")
	if err != nil {
		return Platform{}, fmt.Errorf("pkgenv: uname -s: %w", err)
	}
	release, err := runner.Output("uname", "-r")
	if err != nil {
		return Platform{}, fmt.Errorf("pkgenv: uname -r: %w", err)
	}
	machine, err := runner.Output("uname", "-m")
	if err != nil {
		return Platform{}, fmt.Errorf("pkgenv: uname -m: %w", err)
	}
	return Platform{OPSYS: sysname, OSVersion: release, MachineArch: machine}, nil
}

func trimNul(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
