package membership

import (
	"context"
	"time"

	"github.com/platinummonkey/carehub/pkg/period"
)

// RoleGroup is a named authorization role. Groups are flat; the name is
// immutable once records reference it.
type RoleGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is a time-bounded grant of a role group to a subject. A nil
// StartDate means effective since the beginning of time and a nil EndDate
// means the grant never expires.
type Record struct {
	ID        int64      `json:"id"`
	SubjectID int64      `json:"subject_id"`
	RoleGroup string     `json:"role_group"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Interval returns the validity window of the grant.
func (r Record) Interval() period.Interval {
	return period.Interval{Start: r.StartDate, End: r.EndDate}
}

// ActiveAt reports whether the grant is in effect on the given date.
func (r Record) ActiveAt(at time.Time) bool {
	return period.IsActive(r.StartDate, r.EndDate, at)
}

// GrantRequest describes a new grant.
type GrantRequest struct {
	SubjectID int64
	RoleGroup string
	StartDate *time.Time
	EndDate   *time.Time
	GrantedBy *int64
}

// Store persists subjects' grants and role groups.
type Store interface {
	SubjectExists(ctx context.Context, subjectID int64) (bool, error)

	CreateRoleGroup(ctx context.Context, group *RoleGroup) error
	GetRoleGroup(ctx context.Context, name string) (*RoleGroup, error)
	ListRoleGroups(ctx context.Context) ([]RoleGroup, error)
	DeleteRoleGroup(ctx context.Context, name string) error

	CreateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, id int64) (*Record, error)
	UpdateRecordDates(ctx context.Context, id int64, start, end *time.Time) error
	DeleteRecord(ctx context.Context, id int64) error

	// ListBySubject returns every grant held by the subject, active or not.
	ListBySubject(ctx context.Context, subjectID int64) ([]Record, error)
	// ListByRoleGroup returns every grant of the role group, active or not.
	ListByRoleGroup(ctx context.Context, roleGroup string) ([]Record, error)
}

// Roster is the externally materialized membership of role groups that
// Reconcile keeps in sync with the ledger.
type Roster interface {
	Add(ctx context.Context, roleGroup string, subjectID int64) error
	Remove(ctx context.Context, roleGroup string, subjectID int64) error
	List(ctx context.Context, roleGroup string) ([]int64, error)
}

// ChangeHook is called with the affected subject after a grant is created,
// corrected or revoked.
type ChangeHook func(subjectID int64)
