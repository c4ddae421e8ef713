package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Collection names for synced resources.
const (
	CollectionAgencies  = "agencies"
	CollectionUsers     = "users"
	CollectionNeeds     = "needs"
	CollectionHours     = "hours"
	CollectionResponses = "responses"
	CollectionEvents    = "events"
)

// Entity is a decoded remote record that knows its own document
// identity and carries sync metadata.
type Entity interface {
	// DocID returns the document id, or "" when the record has no
	// usable id and must be skipped.
	DocID() string
	// Stamp sets the sync metadata prior to persistence.
	Stamp(at time.Time, source string)
}

// SyncMeta is embedded in every synced entity.
type SyncMeta struct {
	SyncedAt   Instant `json:"synced_at"`
	SyncSource string  `json:"sync_source,omitempty"`
}

func (m *SyncMeta) Stamp(at time.Time, source string) {
	m.SyncedAt = Instant{at.UTC()}
	m.SyncSource = source
}

// UserRef is the denormalized user snapshot embedded in hours and
// responses. Once embedded it is frozen; later user syncs do not
// rewrite it.
type UserRef struct {
	ID        Integer `json:"id"`
	Email     string  `json:"user_email,omitempty"`
	FirstName string  `json:"user_fname,omitempty"`
	LastName  string  `json:"user_lname,omitempty"`
}

// NeedRef is the denormalized opportunity snapshot embedded in hours
// and responses.
type NeedRef struct {
	ID       Integer `json:"id"`
	Title    string  `json:"need_title,omitempty"`
	AgencyID Integer `json:"agency_id,omitempty"`
}

// ShiftRef identifies the shift an hour or response belongs to.
type ShiftRef struct {
	ID Integer `json:"id"`
}

// Shift is one scheduled slot attached to an opportunity.
type Shift struct {
	ID       Integer `json:"id"`
	Start    Instant `json:"start"`
	End      Instant `json:"end"`
	Duration Number  `json:"duration"`
	Slots    Integer `json:"slots"`
}

// Agency is a volunteer-hosting organization.
type Agency struct {
	ID            Integer `json:"id"`
	AgencyName    string  `json:"agency_name,omitempty"`
	AgencyStatus  string  `json:"agency_status,omitempty"`
	AgencyEmail   string  `json:"agency_email,omitempty"`
	AgencyPhone   string  `json:"agency_phone,omitempty"`
	AgencyCity    string  `json:"agency_city,omitempty"`
	AgencyState   string  `json:"agency_state,omitempty"`
	DateCreated   Instant `json:"agency_date_created"`
	DateUpdated   Instant `json:"agency_date_updated"`
	SyncMeta
}

// User is a volunteer account.
type User struct {
	ID          Integer `json:"id"`
	Email       string  `json:"user_email,omitempty"`
	FirstName   string  `json:"user_fname,omitempty"`
	LastName    string  `json:"user_lname,omitempty"`
	Status      string  `json:"user_status,omitempty"`
	DateCreated Instant `json:"user_date_created"`
	DateUpdated Instant `json:"user_date_updated"`
	SyncMeta
}

// Need is a volunteer opportunity, optionally carrying shifts.
type Need struct {
	ID          Integer `json:"id"`
	Title       string  `json:"need_title,omitempty"`
	Status      string  `json:"need_status,omitempty"`
	AgencyID    Integer `json:"agency_id,omitempty"`
	AgencyName  string  `json:"agency_name,omitempty"`
	NeedHours   Number  `json:"need_hours,omitempty"`
	DateCreated Instant `json:"need_date_created"`
	DateUpdated Instant `json:"need_date_updated"`
	Shifts      []Shift `json:"shifts,omitempty"`
	SyncMeta
}

// Hour is a logged volunteer time entry. User and Need hold frozen
// snapshots; UserID and NeedID are fallbacks for records that arrive
// with bare foreign keys instead of nested objects.
type Hour struct {
	ID            Integer  `json:"id"`
	User          UserRef  `json:"user"`
	Need          NeedRef  `json:"need"`
	Shift         ShiftRef `json:"shift"`
	UserID        Integer  `json:"user_id,omitempty"`
	NeedID        Integer  `json:"need_id,omitempty"`
	HourStatus    string   `json:"hour_status,omitempty"`
	HourDuration  Number   `json:"hour_hours"`
	HourDateStart Instant  `json:"hour_date_start"`
	HourDateEnd   Instant  `json:"hour_date_end"`
	DateCreated   Instant  `json:"hour_date_created"`
	DateUpdated   Instant  `json:"hour_date_updated"`
	HourSource    string   `json:"hour_source,omitempty"`
	SyncMeta
}

// Response is a signup for an opportunity or one of its shifts.
type Response struct {
	ID             Integer  `json:"id"`
	User           UserRef  `json:"user"`
	Need           NeedRef  `json:"need"`
	Shift          ShiftRef `json:"shift"`
	UserID         Integer  `json:"user_id,omitempty"`
	NeedID         Integer  `json:"need_id,omitempty"`
	ResponseStatus string   `json:"response_status,omitempty"`
	DateCreated    Instant  `json:"response_date_created"`
	DateUpdated    Instant  `json:"response_date_updated"`
	SyncMeta
}

// Event is a calendar event. Events have no incremental filter
// upstream, so every sync fetches the full set.
type Event struct {
	ID          Integer `json:"id"`
	Title       string  `json:"event_title,omitempty"`
	AgencyID    Integer `json:"agency_id,omitempty"`
	DateStart   Instant `json:"event_date_start"`
	DateEnd     Instant `json:"event_date_end"`
	DateCreated Instant `json:"event_date_created"`
	DateUpdated Instant `json:"event_date_updated"`
	SyncMeta
}

func idString(id Integer) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(int64(id), 10)
}

func (a *Agency) DocID() string   { return idString(a.ID) }
func (u *User) DocID() string     { return idString(u.ID) }
func (n *Need) DocID() string     { return idString(n.ID) }
func (h *Hour) DocID() string     { return idString(h.ID) }
func (r *Response) DocID() string { return idString(r.ID) }
func (e *Event) DocID() string    { return idString(e.ID) }

// Decode parses one raw record into the entity type for kind.
func Decode(kind string, raw json.RawMessage) (Entity, error) {
	var ent Entity
	switch kind {
	case CollectionAgencies:
		ent = &Agency{}
	case CollectionUsers:
		ent = &User{}
	case CollectionNeeds:
		ent = &Need{}
	case CollectionHours:
		ent = &Hour{}
	case CollectionResponses:
		ent = &Response{}
	case CollectionEvents:
		ent = &Event{}
	default:
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	if err := json.Unmarshal(raw, ent); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", kind, err)
	}
	return ent, nil
}
