package models

// UserRole is the permission tier of a user. The tiers are hierarchical:
// an owner can do everything a manager can, and a manager everything a
// volunteer can.
type UserRole string

const (
	RoleOwner     UserRole = "owner"
	RoleManager   UserRole = "manager"
	RoleVolunteer UserRole = "volunteer"
)

// AtLeast reports whether r carries the capabilities of required.
func (r UserRole) AtLeast(required UserRole) bool {
	return roleRank(r) >= roleRank(required)
}

func roleRank(r UserRole) int {
	switch r {
	case RoleOwner:
		return 3
	case RoleManager:
		return 2
	case RoleVolunteer:
		return 1
	default:
		return 0
	}
}

// Volunteer is a person signed up for a single role. Volunteers are owned by
// their role: they are created through the sign-up flow and removed only by
// being dropped from the role's list.
type Volunteer struct {
	ID          string `json:"id"`
	RoleID      string `json:"roleId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

// Role is a volunteer position within an event with a staffing target and an
// optional hard ceiling.
//
// Capacity is the minimum headcount considered adequately staffed and must be
// at least 1. MaxCapacity, when set, must be >= Capacity and caps how many
// volunteers are accepted; when unset the minimum doubles as the ceiling.
type Role struct {
	ID          string      `json:"id"`
	EventID     string      `json:"eventId"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Capacity    int         `json:"capacity"`
	MaxCapacity *int        `json:"maxCapacity,omitempty"`
	Volunteers  []Volunteer `json:"volunteers"`
}

// LandingPage holds the optional public landing-page fields of an event.
type LandingPage struct {
	Enabled     bool   `json:"enabled"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Theme       string `json:"theme"`
}

// Event is a published volunteer event. Roles are owned by the event and kept
// in display order. Version is a storage stamp bumped by every accepted
// update; it backs the conditional write used by the sign-up path.
type Event struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Date        string      `json:"date"`
	Location    string      `json:"location"`
	Description string      `json:"description"`
	LandingPage LandingPage `json:"landingPage"`
	CustomURL   string      `json:"customUrl,omitempty"`
	Recurrence  string      `json:"recurrence,omitempty"`
	Roles       []Role      `json:"roles"`
	Version     int64       `json:"version"`
}

// FindRole returns the role with the given id, or nil.
func (e *Event) FindRole(roleID string) *Role {
	for i := range e.Roles {
		if e.Roles[i].ID == roleID {
			return &e.Roles[i]
		}
	}
	return nil
}

// User is an account created by the identity provider on first sign-in.
// Exactly one user holds RoleOwner at any time.
type User struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Role               UserRole `json:"role"`
	EmailNotifications bool     `json:"emailNotifications"`
	UnreadMessages     int      `json:"unreadMessages"`
	AuthProvider       string   `json:"authProvider,omitempty"`
}

// Message is a single delivered copy of an internal message. Fan-out happens
// before persistence, so RecipientID always names one concrete user. Read is
// monotonic: it flips false to true on inbox visit and is never reset.
type Message struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Read        bool   `json:"read"`
}

// SystemSettings is the singleton configuration record: auth-provider
// toggles, organization branding and the public-viewing flag. When the
// backing record is absent, defaults are synthesized instead of erroring.
type SystemSettings struct {
	GoogleAuthEnabled   bool   `json:"googleAuthEnabled"`
	GoogleClientID      string `json:"googleClientId"`
	GoogleClientSecret  string `json:"googleClientSecret"`
	PasswordAuthEnabled bool   `json:"passwordAuthEnabled"`
	OrgName             string `json:"orgName"`
	OrgLogo             string `json:"orgLogo"`
	PrimaryColor        string `json:"primaryColor"`
	PublicViewing       bool   `json:"publicViewing"`
}

// DefaultSettings returns the settings used before an owner has saved any.
func DefaultSettings() SystemSettings {
	return SystemSettings{
		PasswordAuthEnabled: true,
		OrgName:             "VolunteerHub",
		PrimaryColor:        "#2563eb",
		PublicViewing:       true,
	}
}

// RecipientType selects how a message send is fanned out.
type RecipientType string

const (
	RecipientIndividual RecipientType = "individual"
	RecipientEvent      RecipientType = "event"
	RecipientRole       RecipientType = "role"
	RecipientAll        RecipientType = "all"
)

// RecipientSelector is the logical address of a message send before fan-out
// resolution. Which target fields matter depends on Type: UserID for
// individual sends, EventID for event sends, EventID+RoleID for role sends,
// and none for broadcasts.
type RecipientSelector struct {
	Type    RecipientType `json:"type"`
	UserID  string        `json:"userId,omitempty"`
	EventID string        `json:"eventId,omitempty"`
	RoleID  string        `json:"roleId,omitempty"`
}
