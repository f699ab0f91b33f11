package pkgname

import "sort"

// NameIndex is an ordered set of Pkgname, kept sorted by CompareNames, used
// by the pattern algebra (internal/pattern) for range queries: for ">=v"
// iterate while base matches; for "==v" a single lookup; for globs, narrow
// by literal prefix.
type NameIndex struct {
	names []Pkgname
}

// NewNameIndex builds an index from an unordered slice, sorting it.
func NewNameIndex(names []Pkgname) *NameIndex {
	cp := make([]Pkgname, len(names))
	copy(cp, names)
	sort.Slice(cp, func(i, j int) bool { return NameLess(cp[i], cp[j]) })
	return &NameIndex{names: cp}
}

// Len returns the number of entries.
func (idx *NameIndex) Len() int { return len(idx.names) }

// All returns the full ordered slice. Callers must not mutate it.
func (idx *NameIndex) All() []Pkgname { return idx.names }

// LowerBound returns the index of the first entry >= n.
func (idx *NameIndex) LowerBound(n Pkgname) int {
	return sort.Search(len(idx.names), func(i int) bool {
		return !NameLess(idx.names[i], n)
	})
}

// UpperBound returns the index of the first entry > n.
func (idx *NameIndex) UpperBound(n Pkgname) int {
	return sort.Search(len(idx.names), func(i int) bool {
		return NameLess(n, idx.names[i])
	})
}

// RangeFromBase iterates all entries whose base equals base, starting from
// the first entry with that base, in version order.
func (idx *NameIndex) RangeFromBase(base Pkgbase, fn func(Pkgname) bool) {
	start := sort.Search(len(idx.names), func(i int) bool {
		return idx.names[i].Base >= base
	})
	for i := start; i < len(idx.names); i++ {
		if idx.names[i].Base != base {
			return
		}
		if !fn(idx.names[i]) {
			return
		}
	}
}

// Lookup finds an exact Pkgname, returning (name, true) if present.
func (idx *NameIndex) Lookup(n Pkgname) (Pkgname, bool) {
	i := idx.LowerBound(n)
	if i < len(idx.names) && CompareNames(idx.names[i], n) == 0 {
		return idx.names[i], true
	}
	return Pkgname{}, false
}
