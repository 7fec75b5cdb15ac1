package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
)

// DefaultName is used when a project is created without a name.
const DefaultName = "Untitled Project"

// Severity classifies a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// LogEntry is one line of a project's build log.
type LogEntry struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message of the project conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Project is the unit of work and the unit of persistence. Artifacts,
// Specification and Configuration form the head; History holds immutable snapshots.
type Project struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	Name          string     `json:"name"`
	Specification string     `json:"specification"`
	Configuration Config     `json:"configuration"`
	Status        Status     `json:"status"`
	Progress      int        `json:"progress"`
	Artifacts     Artifacts  `json:"artifacts"`
	History       []Snapshot `json:"history"`
	Log           []LogEntry `json:"log"`
	Conversation  []Turn     `json:"conversation"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// Revision is the optimistic-concurrency token maintained by the store.
	Revision int64 `json:"revision"`
}

// Summary is the list view of a project.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Versions  int       `json:"versions"`
	Artifacts int       `json:"artifacts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a queued project with the empty "v1" baseline snapshot.
func New(owner, name, specification string, cfg Config) (*Project, error) {
	specification = strings.TrimSpace(specification)
	if specification == "" {
		return nil, perrors.Validation("specification is required")
	}
	if strings.TrimSpace(owner) == "" {
		return nil, perrors.Validation("owner is required")
	}
	if cfg == nil {
		cfg = Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}

	now := time.Now().UTC()
	p := &Project{
		ID:            uuid.New().String(),
		Owner:         owner,
		Name:          name,
		Specification: specification,
		Configuration: cfg.Clone(),
		Status:        StatusQueued,
		Artifacts:     Artifacts{},
		History:       []Snapshot{},
		Log:           []LogEntry{},
		Conversation:  []Turn{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.CaptureSnapshot()
	return p, nil
}

// Authorize returns ErrUnauthorized unless owner owns the project.
func (p *Project) Authorize(owner string) error {
	if owner == "" || owner != p.Owner {
		return fmt.Errorf("project %s: %w", p.ID, perrors.ErrUnauthorized)
	}
	return nil
}

// AppendLog appends a log entry and returns the new log length.
func (p *Project) AppendLog(sev Severity, format string, args ...any) int {
	p.Log = append(p.Log, LogEntry{
		Time:     time.Now().UTC(),
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
	return len(p.Log)
}

// AppendTurn appends a conversation turn and returns the new conversation length.
func (p *Project) AppendTurn(role Role, text string) int {
	p.Conversation = append(p.Conversation, Turn{Role: role, Text: text, Time: time.Now().UTC()})
	return len(p.Conversation)
}

// CaptureSnapshot appends a snapshot of the head labelled by its position and
// returns the new history length.
func (p *Project) CaptureSnapshot() int {
	label := fmt.Sprintf("v%d", len(p.History)+1)
	p.History = append(p.History, NewSnapshot(label, p))
	return len(p.History)
}

// Amend replaces the driving inputs for the next run. The head artifacts are kept
// as generation context.
func (p *Project) Amend(specification string, cfg Config) error {
	specification = strings.TrimSpace(specification)
	if specification == "" {
		return perrors.Validation("specification is required")
	}
	if cfg == nil {
		cfg = Config{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.Specification = specification
	p.Configuration = cfg.Clone()
	return nil
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	out := *p
	out.Configuration = p.Configuration.Clone()
	out.Artifacts = p.Artifacts.Clone()
	out.History = make([]Snapshot, len(p.History))
	for i, s := range p.History {
		out.History[i] = s.Clone()
	}
	out.Log = append([]LogEntry{}, p.Log...)
	out.Conversation = append([]Turn{}, p.Conversation...)
	return &out
}

// Summary returns the list view of the project.
func (p *Project) Summary() Summary {
	return Summary{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		Progress:  p.Progress,
		Versions:  len(p.History),
		Artifacts: len(p.Artifacts),
		UpdatedAt: p.UpdatedAt,
	}
}
