package project

import (
	"strconv"
	"strings"
	"time"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// Snapshot is an immutable copy of the head at a lifecycle point.
type Snapshot struct {
	Label         string    `json:"label"`
	Time          time.Time `json:"time"`
	Artifacts     Artifacts `json:"artifacts"`
	Configuration Config    `json:"configuration"`
	Specification string    `json:"specification"`
}

// NewSnapshot captures the head of p by value.
func NewSnapshot(label string, p *Project) Snapshot {
	return Snapshot{
		Label:         label,
		Time:          time.Now().UTC(),
		Artifacts:     p.Artifacts.Clone(),
		Configuration: p.Configuration.Clone(),
		Specification: p.Specification,
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Artifacts = s.Artifacts.Clone()
	s.Configuration = s.Configuration.Clone()
	return s
}

// VersionRef addresses either the head or a 1-based snapshot index.
// The zero value is the head.
type VersionRef struct {
	index int
}

// Head addresses the current head.
func Head() VersionRef { return VersionRef{} }

// SnapshotAt addresses history[n-1]. Non-positive n addresses the head.
func SnapshotAt(n int) VersionRef {
	if n < 1 {
		return Head()
	}
	return VersionRef{index: n}
}

// IsHead reports whether r addresses the head.
func (r VersionRef) IsHead() bool { return r.index == 0 }

// Index returns the 1-based snapshot index, or false for the head.
func (r VersionRef) Index() (int, bool) {
	return r.index, r.index > 0
}

func (r VersionRef) String() string {
	if r.IsHead() {
		return "head"
	}
	return strconv.Itoa(r.index)
}

// ParseVersionRef parses "", "head" or a positive integer.
func ParseVersionRef(s string) (VersionRef, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "head") {
		return Head(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Head(), perrors.Validation("version must be \"head\" or a positive integer, got %q", s)
	}
	return SnapshotAt(n), nil
}

// Normalize returns r if it addresses an existing snapshot, otherwise the head.
func (p *Project) Normalize(r VersionRef) VersionRef {
	if n, ok := r.Index(); ok && n <= len(p.History) {
		return r
	}
	return Head()
}

// Next moves forward one version. Moving past the last snapshot returns to the head;
// the head has no successor.
func (p *Project) Next(r VersionRef) VersionRef {
	r = p.Normalize(r)
	n, ok := r.Index()
	if !ok {
		return Head()
	}
	return p.Normalize(SnapshotAt(n + 1))
}

// Prev moves backward one version. From the head it goes to the newest snapshot;
// the oldest snapshot has no predecessor.
func (p *Project) Prev(r VersionRef) VersionRef {
	r = p.Normalize(r)
	n, ok := r.Index()
	if !ok {
		return p.Normalize(SnapshotAt(len(p.History)))
	}
	if n <= 1 {
		return r
	}
	return SnapshotAt(n - 1)
}

// View is a read-only rendering of one version of a project.
type View struct {
	Version       string    `json:"version"`
	IsHead        bool      `json:"is_head"`
	Label         string    `json:"label"`
	Time          time.Time `json:"time"`
	Artifacts     Artifacts `json:"artifacts"`
	Configuration Config    `json:"configuration"`
	Specification string    `json:"specification"`
	Versions      int       `json:"versions"`
	Prev          string    `json:"prev"`
	Next          string    `json:"next"`
}

// Resolve renders the version addressed by r. Out-of-range references resolve to the head.
func (p *Project) Resolve(r VersionRef) View {
	r = p.Normalize(r)
	v := View{
		Version:  r.String(),
		IsHead:   r.IsHead(),
		Versions: len(p.History),
		Prev:     p.Prev(r).String(),
		Next:     p.Next(r).String(),
	}
	if n, ok := r.Index(); ok {
		s := p.History[n-1].Clone()
		v.Label = s.Label
		v.Time = s.Time
		v.Artifacts = s.Artifacts
		v.Configuration = s.Configuration
		v.Specification = s.Specification
		return v
	}
	v.Label = "head"
	v.Time = p.UpdatedAt
	v.Artifacts = p.Artifacts.Clone()
	v.Configuration = p.Configuration.Clone()
	v.Specification = p.Specification
	return v
}
