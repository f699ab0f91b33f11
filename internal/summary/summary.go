// Package summary parses pkg_summary(5) data - the subset the core cares
// about: PKGNAME, PKGPATH, FILE_NAME, and the DEPENDS vector - and builds
// the ordered Summary and derived Pkgmap structures spec.md's C7 and
// glossary describe.
//
// Grounded on the teacher's pkg/bulk.go BulkQueue (parallel worker pool
// feeding a result channel, generalized here to internal/nursery) for the
// xargs-fold binary-directory fallback, and on config.LoadConfig's
// candidate-then-fallback resolution order for the local/HTTP candidate
// search.
package summary

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pkgtool/internal/nursery"
	"pkgtool/internal/pkgname"
	"pkgtool/internal/rlog"
)

// Pkgvars is the subset of pkg_summary(5) fields the core consumes.
type Pkgvars struct {
	PkgName  string
	PkgPath  string
	FileName string
	Depends  []string
}

// Summary is an ordered map pkgname -> pkgvars. Every value's PkgName
// equals its key; if two entries share a base, their versions differ
// (enforced by Add, which overwrites same-key entries in place so the
// invariant can never be violated by construction).
type Summary struct {
	order   []string
	entries map[string]Pkgvars
}

// New returns an empty Summary ready for incremental construction.
func New() *Summary {
	return &Summary{entries: make(map[string]Pkgvars)}
}

// Add inserts or overwrites the entry keyed by vars.PkgName.
func (s *Summary) Add(vars Pkgvars) {
	if _, exists := s.entries[vars.PkgName]; !exists {
		s.order = append(s.order, vars.PkgName)
	}
	s.entries[vars.PkgName] = vars
}

// Get looks up an entry by exact pkgname.
func (s *Summary) Get(name string) (Pkgvars, bool) {
	v, ok := s.entries[name]
	return v, ok
}

// Len reports the number of entries.
func (s *Summary) Len() int { return len(s.order) }

// All iterates entries in insertion order.
func (s *Summary) All() []Pkgvars {
	out := make([]Pkgvars, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.entries[k])
	}
	return out
}

// Merge combines other into s in place (map-merge: a commutative monoid
// over the key space, used to fold xargs-fold partial summaries back
// together - last writer for a duplicate key wins, which is harmless
// since every source describes the same binary tree).
func (s *Summary) Merge(other *Summary) {
	for _, v := range other.All() {
		s.Add(v)
	}
}

// NameIndex projects the summary's pkgnames into a pkgname.NameIndex for
// range-query pattern matching.
func (s *Summary) NameIndex() *pkgname.NameIndex {
	names := make([]pkgname.Pkgname, 0, len(s.order))
	for _, k := range s.order {
		if n, err := pkgname.ParseName(k); err == nil {
			names = append(names, n)
		}
	}
	return pkgname.NewNameIndex(names)
}

// Pkgmap groups a Summary by pkgpath -> pkgbase -> Summary, derived once
// from a fully-built Summary.
type Pkgmap map[string]map[string]*Summary

// BuildPkgmap derives a Pkgmap from s.
func BuildPkgmap(s *Summary) Pkgmap {
	m := Pkgmap{}
	for _, v := range s.All() {
		if v.PkgPath == "" {
			continue
		}
		n, err := pkgname.ParseName(v.PkgName)
		if err != nil {
			continue
		}
		byBase, ok := m[v.PkgPath]
		if !ok {
			byBase = map[string]*Summary{}
			m[v.PkgPath] = byBase
		}
		sub, ok := byBase[string(n.Base)]
		if !ok {
			sub = New()
			byBase[string(n.Base)] = sub
		}
		sub.Add(v)
	}
	return m
}

// ParseText parses pkg_summary(5) paragraph-format text into a Summary.
// A paragraph is committed only if both PKGNAME and PKGPATH were seen;
// otherwise it is silently discarded.
func ParseText(r io.Reader) (*Summary, error) {
	s := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var cur Pkgvars
	have := false

	commit := func() {
		if have && cur.PkgName != "" && cur.PkgPath != "" {
			s.Add(cur)
		}
		cur = Pkgvars{}
		have = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			commit()
			continue
		}
		have = true
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := line[idx+1:]
		switch key {
		case "PKGNAME":
			cur.PkgName = val
		case "PKGPATH":
			cur.PkgPath = val
		case "FILE_NAME":
			cur.FileName = val
		case "DEPENDS":
			cur.Depends = append(cur.Depends, val)
		}
	}
	commit()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("summary: reading paragraphs: %w", err)
	}
	return s, nil
}

// candidateNames is the search order for local/remote summary files.
var candidateNames = []string{"pkg_summary.bz2", "pkg_summary.gz", "pkg_summary.txt"}

// decompress wraps r according to the candidate's extension.
func decompress(name string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		return bzip2.NewReader(r), nil
	case strings.HasSuffix(name, ".gz"):
		return gzip.NewReader(r)
	default:
		return r, nil
	}
}

// newestMtimeIn returns the newest modification time among dir's direct
// entries, used to detect a stale cached summary candidate.
func newestMtimeIn(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest, nil
}

// Fetcher abstracts HTTP/FTP retrieval of a candidate summary URL, so
// tests can supply a stub instead of making network calls.
type Fetcher interface {
	// Fetch returns the candidate's body, or ErrNotAvailable if the
	// remote reports the file doesn't exist.
	Fetch(url string) (io.ReadCloser, error)
}

// ErrNotAvailable is returned by a Fetcher when a candidate does not
// exist remotely - callers fall through to the next candidate rather
// than treating it as a transport failure.
var ErrNotAvailable = fmt.Errorf("summary: remote candidate not available")

// XargsRunner invokes `pkg_info -X <names...>` for one slice of
// filenames and returns its concatenated pkg_summary-format stdout.
type XargsRunner interface {
	Run(names []string) (string, error)
}

// Load resolves and parses the summary for packagesPath, which may be a
// local directory or an http(s)/ftp URL. fallback supplies the binary
// directory's package file list and the xargs-fold runner for when no
// candidate summary file is usable; it may be nil if packagesPath is a
// URL (the binary fallback is local-only).
func Load(packagesPath string, fetcher Fetcher, fallback *BinaryFallback, logger rlog.LibraryLogger) (*Summary, error) {
	if isURL(packagesPath) {
		return loadRemote(packagesPath, fetcher, logger)
	}
	return loadLocal(packagesPath, fallback, logger)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "ftp://")
}

func loadLocal(dir string, fallback *BinaryFallback, logger rlog.LibraryLogger) (*Summary, error) {
	newest, _ := newestMtimeIn(dir)

	for _, name := range candidateNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !newest.IsZero() && info.ModTime().Before(newest) {
			logger.Warn("summary candidate %s is stale (older than newest package), skipping", path)
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			logger.Warn("summary candidate %s unreadable: %v", path, err)
			continue
		}
		r, err := decompress(name, f)
		if err != nil {
			f.Close()
			logger.Warn("summary candidate %s failed to decompress: %v", path, err)
			continue
		}
		s, err := ParseText(r)
		f.Close()
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	if fallback == nil {
		return nil, fmt.Errorf("summary: no usable candidate in %s and no binary fallback configured", dir)
	}
	return fallback.Scan()
}

func loadRemote(base string, fetcher Fetcher, logger rlog.LibraryLogger) (*Summary, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("summary: %s requires a Fetcher", base)
	}
	for _, name := range candidateNames {
		url := strings.TrimRight(base, "/") + "/" + name
		body, err := fetcher.Fetch(url)
		if err == ErrNotAvailable {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("summary: fetching %s: %w", url, err)
		}
		r, err := decompress(name, body)
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("summary: decompressing %s: %w", url, err)
		}
		s, err := ParseText(r)
		body.Close()
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("summary: no candidate available at %s", base)
}

// BinaryFallback scans a binary package directory via parallel
// `pkg_info -X` invocations, folding the partial summaries together -
// the xargs-fold described in spec.md §4.7.
type BinaryFallback struct {
	Dir     string
	PkgSufx string
	Runner  XargsRunner
	Workers int
}

// Scan lists Dir for PkgSufx files, splits them round-robin across
// Workers nursery tasks, and folds each worker's parsed partial summary
// into the result via Summary.Merge.
func (b *BinaryFallback) Scan() (*Summary, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return nil, fmt.Errorf("summary: scanning %s: %w", b.Dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), b.PkgSufx) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return New(), nil
	}

	workers := b.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(files) {
		workers = len(files)
	}

	slices := make([][]string, workers)
	for i, f := range files {
		slices[i%workers] = append(slices[i%workers], f)
	}

	partials := make([]*Summary, workers)
	n := nursery.New(workers)
	for i, slice := range slices {
		i, slice := i, slice
		if err := n.StartSoon(func() error {
			out, err := b.Runner.Run(slice)
			if err != nil {
				return err
			}
			partial, err := ParseText(bytes.NewReader([]byte(out)))
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		}); err != nil {
			break
		}
	}
	if err := n.Close(); err != nil {
		return nil, err
	}

	result := New()
	for _, p := range partials {
		if p != nil {
			result.Merge(p)
		}
	}
	return result, nil
}

// Bases returns the sorted set of pkgbases known under pkgpath.
func (m Pkgmap) Bases(pkgpath string) []string {
	byBase, ok := m[pkgpath]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byBase))
	for k := range byBase {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
