// Package capacity holds the pure staffing logic for roles: sign-up
// admission, fill-rate metrics and the dashboard staffing report. Nothing in
// here performs I/O; callers read state, ask the predicates, and persist.
package capacity

import (
	"fmt"
	"math"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// StaffingLevel classifies how well a role is staffed against its minimum.
type StaffingLevel string

const (
	// FullyStaffed: filled >= minimum.
	FullyStaffed StaffingLevel = "fully_staffed"
	// PartiallyFilled: filled >= minimum/2 but below minimum.
	PartiallyFilled StaffingLevel = "partially_filled"
	// Understaffed: below half the minimum.
	Understaffed StaffingLevel = "understaffed"
)

// Filled is the current volunteer headcount of a role.
func Filled(role *models.Role) int {
	return len(role.Volunteers)
}

// Minimum is the headcount considered adequately staffed.
func Minimum(role *models.Role) int {
	return role.Capacity
}

// Ceiling is the hard upper bound on accepted volunteers. A role with no
// explicit maximum uses its minimum as the ceiling.
func Ceiling(role *models.Role) int {
	if role.MaxCapacity != nil {
		return *role.MaxCapacity
	}
	return role.Capacity
}

// IsFull reports whether the role accepts no further sign-ups.
func IsFull(role *models.Role) bool {
	return Filled(role) >= Ceiling(role)
}

// HasReachedMinimum reports whether the role is adequately staffed.
func HasReachedMinimum(role *models.Role) bool {
	return Filled(role) >= Minimum(role)
}

// FillRate is the filled headcount as a rounded percentage of the minimum.
// The minimum is the denominator even when a higher ceiling exists, so a
// role filled to its ceiling can report more than 100.
func FillRate(role *models.Role) int {
	return rate(Filled(role), Minimum(role))
}

// Level buckets a role into the three staffing classifications.
func Level(role *models.Role) StaffingLevel {
	filled := Filled(role)
	min := Minimum(role)
	switch {
	case filled >= min:
		return FullyStaffed
	case float64(filled) >= float64(min)/2:
		return PartiallyFilled
	default:
		return Understaffed
	}
}

// ValidateRole checks the capacity invariants before a role reaches storage:
// the minimum is at least 1 and any explicit maximum is at least the
// minimum.
func ValidateRole(role *models.Role) error {
	if role.Capacity < 1 {
		return fmt.Errorf("%w: role %q capacity must be at least 1, got %d",
			storage.ErrValidation, role.Name, role.Capacity)
	}
	if role.MaxCapacity != nil && *role.MaxCapacity < role.Capacity {
		return fmt.Errorf("%w: role %q max capacity %d is below capacity %d",
			storage.ErrValidation, role.Name, *role.MaxCapacity, role.Capacity)
	}
	return nil
}

// RoleReport is the per-role slice of the staffing report.
type RoleReport struct {
	RoleID   string        `json:"roleId"`
	RoleName string        `json:"roleName"`
	Filled   int           `json:"filled"`
	Minimum  int           `json:"minimum"`
	Ceiling  int           `json:"ceiling"`
	FillRate int           `json:"fillRate"`
	Level    StaffingLevel `json:"level"`
}

// EventReport aggregates staffing across one event's roles.
type EventReport struct {
	EventID   string       `json:"eventId"`
	EventName string       `json:"eventName"`
	Filled    int          `json:"filled"`
	Minimum   int          `json:"minimum"`
	Ceiling   int          `json:"ceiling"`
	FillRate  int          `json:"fillRate"`
	Roles     []RoleReport `json:"roles"`
}

// Report is the global staffing dashboard.
type Report struct {
	Filled   int           `json:"filled"`
	Minimum  int           `json:"minimum"`
	Ceiling  int           `json:"ceiling"`
	FillRate int           `json:"fillRate"`
	Events   []EventReport `json:"events"`
}

// BuildReport derives the staffing dashboard for a set of events: per-role
// rows, per-event sums, and global totals, all using the same fill-rate
// formula.
func BuildReport(events []models.Event) Report {
	report := Report{Events: []EventReport{}}
	for i := range events {
		ev := &events[i]
		evReport := EventReport{
			EventID:   ev.ID,
			EventName: ev.Name,
			Roles:     []RoleReport{},
		}
		for j := range ev.Roles {
			role := &ev.Roles[j]
			evReport.Roles = append(evReport.Roles, RoleReport{
				RoleID:   role.ID,
				RoleName: role.Name,
				Filled:   Filled(role),
				Minimum:  Minimum(role),
				Ceiling:  Ceiling(role),
				FillRate: FillRate(role),
				Level:    Level(role),
			})
			evReport.Filled += Filled(role)
			evReport.Minimum += Minimum(role)
			evReport.Ceiling += Ceiling(role)
		}
		evReport.FillRate = rate(evReport.Filled, evReport.Minimum)
		report.Filled += evReport.Filled
		report.Minimum += evReport.Minimum
		report.Ceiling += evReport.Ceiling
		report.Events = append(report.Events, evReport)
	}
	report.FillRate = rate(report.Filled, report.Minimum)
	return report
}

func rate(filled, minimum int) int {
	if minimum <= 0 {
		return 0
	}
	return int(math.Round(float64(filled) / float64(minimum) * 100))
}
