// Package config loads pkgtool.ini, the app-level defaults file chk and
// rr both read before applying command-line overrides: worker counts,
// default paths, and the run-history database location.
//
// Grounded on the teacher's config.LoadConfig (probe a short candidate
// list for the config directory, defaults for everything, INI file
// optional) but the parsing itself uses gopkg.in/ini.v1 rather than the
// teacher's hand-rolled bufio.Scanner loop - a real parser is warranted
// here since pkgtool.ini supports profile sections the same way the
// teacher's dsynth.ini does, and ini.v1 gets quoting, multi-line values,
// and comment styles right for free.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/ini.v1"
)

// Config holds pkgtool's own defaults, separate from the pkgsrc
// environment (internal/pkgenv) which is always re-derived from the live
// system.
type Config struct {
	ConfigPath string

	MaxWorkers     int
	ScanWorkers    int
	XargsWorkers   int

	RunDBPath  string
	LogDir     string
	PkgchkConf string

	Profile string
}

// candidateConfigDirs mirrors the teacher's /etc then /usr/local/etc
// probe order.
var candidateConfigDirs = []string{"/etc/pkgtool", "/usr/local/etc/pkgtool"}

// Load resolves configDir (probing candidateConfigDirs if empty), then
// loads pkgtool.ini from it via ini.v1 if present, applying profile as
// the active section. Missing file or directory is not an error -
// defaults apply as-is.
func Load(configDir, profile string) (*Config, error) {
	cfg := &Config{
		MaxWorkers:   runtime.NumCPU(),
		ScanWorkers:  runtime.NumCPU(),
		XargsWorkers: 4,
		LogDir:       "/var/log/pkgtool",
		RunDBPath:    "/var/db/pkgtool/runs.db",
		PkgchkConf:   "/etc/pkgchk.conf",
		Profile:      profile,
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}

	if configDir == "" {
		for _, candidate := range candidateConfigDirs {
			if _, err := os.Stat(candidate); err == nil {
				configDir = candidate
				break
			}
		}
		if configDir == "" {
			configDir = candidateConfigDirs[0]
		}
	}
	cfg.ConfigPath = configDir

	iniPath := filepath.Join(configDir, "pkgtool.ini")
	if _, err := os.Stat(iniPath); err != nil {
		return cfg, nil
	}

	f, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", iniPath, err)
	}

	sectionName := ini.DefaultSection
	if profile != "" && f.HasSection(profile) {
		sectionName = profile
	}
	sec := f.Section(sectionName)

	applyInt(sec, "max_workers", &cfg.MaxWorkers)
	applyInt(sec, "scan_workers", &cfg.ScanWorkers)
	applyInt(sec, "xargs_workers", &cfg.XargsWorkers)
	applyString(sec, "rundb_path", &cfg.RunDBPath)
	applyString(sec, "log_dir", &cfg.LogDir)
	applyString(sec, "pkgchk_conf", &cfg.PkgchkConf)

	return cfg, nil
}

func applyInt(sec *ini.Section, key string, dst *int) {
	if !sec.HasKey(key) {
		return
	}
	if v, err := sec.Key(key).Int(); err == nil && v > 0 {
		*dst = v
	}
}

func applyString(sec *ini.Section, key string, dst *string) {
	if !sec.HasKey(key) {
		return
	}
	if v := sec.Key(key).String(); v != "" {
		*dst = v
	}
}
