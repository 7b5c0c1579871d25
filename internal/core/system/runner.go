package system

import "sort"

// Entry is one named system in tick order.
type Entry struct {
	Name   string
	System System
}

// Runner keeps systems in tick order: by phase, then by name.
type Runner struct {
	entries []Entry
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		entries: make([]Entry, 0, 16),
	}
}

func (r *Runner) Register(name string, s System) {
	r.entries = append(r.entries, Entry{Name: name, System: s})
	r.sorted = false
}

func (r *Runner) Remove(name string) {
	for i, e := range r.entries {
		if e.Name == name {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Runner) Clear() {
	r.entries = r.entries[:0]
}

// Ordered returns a snapshot in tick order, so systems may be added or
// removed while the caller iterates.
func (r *Runner) Ordered() []Entry {
	r.ensureSorted()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.entries, func(i, j int) bool {
			pi, pj := r.entries[i].System.Phase(), r.entries[j].System.Phase()
			if pi != pj {
				return pi < pj
			}
			return r.entries[i].Name < r.entries[j].Name
		})
		r.sorted = true
	}
}
