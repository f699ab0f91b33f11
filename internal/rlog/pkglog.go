package rlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PackageLogger writes a single package's build transcript to
// DIR/<pkgbase>.log, used by rr's -L DIR flag. Grounded on the teacher's
// log.PackageLogger (WriteHeader/WritePhase/WriteSuccess/WriteFailure),
// retargeted from "build phase" to the replace driver's per-pkgpath build
// attempts.
type PackageLogger struct {
	mu      sync.Mutex
	file    *os.File
	pkgpath string
}

// OpenPackageLogger creates (or truncates) dir/<pkgbase>.log.
func OpenPackageLogger(dir, pkgbase, pkgpath string) (*PackageLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rlog: creating log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, pkgbase+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("rlog: creating package log %s: %w", path, err)
	}
	return &PackageLogger{file: f, pkgpath: pkgpath}, nil
}

func (pl *PackageLogger) rule() string { return strings.Repeat("=", 70) }

// WriteHeader stamps the log with the pkgpath and start time.
func (pl *PackageLogger) WriteHeader() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "%s\nBuild Log: %s\nStarted: %s\n%s\n\n", pl.rule(), pl.pkgpath, time.Now().Format(time.RFC3339), pl.rule())
	pl.file.Sync()
}

// Write appends a chunk of subprocess output verbatim, making the
// PackageLogger an io.Writer; cmd/rr copies a child's piped stdout into it.
func (pl *PackageLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.file.Write(p)
}

// WriteOutcome stamps a terminal BUILD SUCCESS / BUILD FAILED block.
func (pl *PackageLogger) WriteOutcome(success bool, duration time.Duration, reason string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintf(pl.file, "\n%s\n", pl.rule())
	if success {
		fmt.Fprintf(pl.file, "BUILD SUCCESS\n")
	} else {
		fmt.Fprintf(pl.file, "BUILD FAILED\n")
		if reason != "" {
			fmt.Fprintf(pl.file, "Reason: %s\n", reason)
		}
	}
	fmt.Fprintf(pl.file, "Completed: %s\nDuration: %s\n%s\n", time.Now().Format(time.RFC3339), duration, pl.rule())
	pl.file.Sync()
}

// Close flushes and closes the underlying file.
func (pl *PackageLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.file.Close()
}
