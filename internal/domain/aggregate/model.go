package aggregate

import (
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
)

// SyncSource marks documents produced by the aggregation engine.
const SyncSource = "aggregation"

// Report names accepted by Generate.
const (
	ReportUserActivity        = "user_activity_summary"
	ReportOpportunityActivity = "opportunity_activity"
	ReportAgencyActivity      = "agency_activity"
	ReportMonthlyActivity     = "monthly_activity"
	ReportShiftStatus         = "shift_status"
)

// Reports lists every report in generation order.
func Reports() []string {
	return []string{
		ReportUserActivity,
		ReportOpportunityActivity,
		ReportAgencyActivity,
		ReportMonthlyActivity,
		ReportShiftStatus,
	}
}

// RollupReport summarizes one report generation run.
type RollupReport struct {
	Report         string        `json:"report"`
	Collection     string        `json:"collection"`
	RecordsWritten int           `json:"records_written"`
	RecordsSkipped int           `json:"records_skipped"`
	Duration       time.Duration `json:"duration_ns"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// UserActivity is one volunteer's rollup across approved hours.
type UserActivity struct {
	UserID            int64              `json:"user_id"`
	Email             string             `json:"user_email,omitempty"`
	FirstName         string             `json:"user_fname,omitempty"`
	LastName          string             `json:"user_lname,omitempty"`
	TotalHours        float64            `json:"total_hours"`
	ShiftsAttended    int                `json:"shifts_attended"`
	AvgHoursPerShift  float64            `json:"avg_hours_per_shift"`
	Opportunities     []int64            `json:"opportunities"`
	OpportunityCount  int                `json:"opportunity_count"`
	FirstActivity     resource.Instant   `json:"first_activity"`
	LastActivity      resource.Instant   `json:"last_activity"`
	DaysSinceActivity int                `json:"days_since_last_activity"`
	HoursByMonth      map[string]float64 `json:"hours_by_month,omitempty"`
	GeneratedAt       resource.Instant   `json:"generated_at"`
}

// OpportunityActivity is one opportunity's rollup.
type OpportunityActivity struct {
	NeedID       int64              `json:"need_id"`
	Title        string             `json:"need_title,omitempty"`
	AgencyID     int64              `json:"agency_id,omitempty"`
	TotalHours   float64            `json:"total_hours"`
	HourEntries  int                `json:"hour_entries"`
	Volunteers   int                `json:"unique_volunteers"`
	FirstHour    resource.Instant   `json:"first_hour"`
	LastHour     resource.Instant   `json:"last_hour"`
	HoursByMonth map[string]float64 `json:"hours_by_month,omitempty"`
	GeneratedAt  resource.Instant   `json:"generated_at"`
}

// AgencyActivity is one agency's rollup across its opportunities.
type AgencyActivity struct {
	AgencyID      int64            `json:"agency_id"`
	AgencyName    string           `json:"agency_name,omitempty"`
	TotalHours    float64          `json:"total_hours"`
	HourEntries   int              `json:"hour_entries"`
	Volunteers    int              `json:"unique_volunteers"`
	Opportunities int              `json:"opportunity_count"`
	GeneratedAt   resource.Instant `json:"generated_at"`
}

// MonthlyActivity buckets approved hours by calendar month.
type MonthlyActivity struct {
	Month       string           `json:"month"`
	TotalHours  float64          `json:"total_hours"`
	HourEntries int              `json:"hour_entries"`
	Users       int              `json:"unique_users"`
	Needs       int              `json:"unique_needs"`
	Agencies    int              `json:"unique_agencies"`
	GeneratedAt resource.Instant `json:"generated_at"`
}

// Check-in statuses for shift volunteers.
const (
	CheckinPending   = "pending"
	CheckinActive    = "active"
	CheckinCompleted = "completed"
	CheckinAbsent    = "absent"
	CheckinCancelled = "cancelled"
)

// ShiftVolunteer is one volunteer's standing on a shift.
type ShiftVolunteer struct {
	UserID        int64            `json:"user_id"`
	Email         string           `json:"user_email,omitempty"`
	FirstName     string           `json:"user_fname,omitempty"`
	LastName      string           `json:"user_lname,omitempty"`
	CheckinStatus string           `json:"checkin_status"`
	HoursLogged   float64          `json:"hours_logged,omitempty"`
	CheckinAt     resource.Instant `json:"checkin_at"`
	CheckoutAt    resource.Instant `json:"checkout_at"`
}

// ShiftStatus is the live roster for one shift.
type ShiftStatus struct {
	ShiftID     int64            `json:"shift_id"`
	NeedID      int64            `json:"need_id"`
	Title       string           `json:"need_title,omitempty"`
	Start       resource.Instant `json:"start"`
	End         resource.Instant `json:"end"`
	Duration    float64          `json:"duration,omitempty"`
	Slots       int64            `json:"slots,omitempty"`
	SlotsFilled int              `json:"slots_filled"`
	Volunteers  []ShiftVolunteer `json:"volunteers"`
	GeneratedAt resource.Instant `json:"generated_at"`
}
