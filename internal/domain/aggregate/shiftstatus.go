package aggregate

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/repository"
)

// shiftKey identifies a shift within an opportunity.
type shiftKey struct {
	needID  int64
	shiftID int64
}

// shiftStatus builds the live roster for every shift found on synced
// opportunities. A volunteer starts pending from their signup, moves
// to active when an hour entry shows a check-in, and to completed
// once the entry has an end time.
func (s *Service) shiftStatus(ctx context.Context, generatedAt time.Time) ([]repository.Document, int, error) {
	needs, skipped, err := s.loadNeeds(ctx)
	if err != nil {
		return nil, 0, err
	}
	responses, respSkipped, err := s.loadResponses(ctx)
	if err != nil {
		return nil, 0, err
	}
	skipped += respSkipped
	hours, hourSkipped, err := s.loadHours(ctx)
	if err != nil {
		return nil, 0, err
	}
	skipped += hourSkipped

	statuses := map[shiftKey]*ShiftStatus{}
	for needID, need := range needs {
		for _, shift := range need.Shifts {
			if shift.ID <= 0 {
				skipped++
				continue
			}
			duration := float64(shift.Duration)
			if duration == 0 {
				duration = float64(need.NeedHours)
			}
			statuses[shiftKey{needID: needID, shiftID: int64(shift.ID)}] = &ShiftStatus{
				ShiftID:     int64(shift.ID),
				NeedID:      needID,
				Title:       need.Title,
				Start:       shift.Start,
				End:         shift.End,
				Duration:    duration,
				Slots:       int64(shift.Slots),
				GeneratedAt: resource.Instant{Time: generatedAt},
			}
		}
	}

	// Signups seed the roster.
	volunteers := map[shiftKey]map[int64]*ShiftVolunteer{}
	for _, response := range responses {
		key := shiftKey{needID: int64(response.Need.ID), shiftID: int64(response.Shift.ID)}
		if _, ok := statuses[key]; !ok || response.User.ID <= 0 {
			skipped++
			continue
		}

		if volunteers[key] == nil {
			volunteers[key] = map[int64]*ShiftVolunteer{}
		}
		volunteers[key][int64(response.User.ID)] = &ShiftVolunteer{
			UserID:        int64(response.User.ID),
			Email:         response.User.Email,
			FirstName:     response.User.FirstName,
			LastName:      response.User.LastName,
			CheckinStatus: responseCheckinStatus(response.ResponseStatus),
		}
	}

	// Hour entries override the signup state. When a volunteer has
	// several entries for the same shift, the most recently updated
	// one wins.
	latest := map[shiftKey]map[int64]resource.Hour{}
	for _, hour := range hours {
		key := shiftKey{needID: int64(hour.Need.ID), shiftID: int64(hour.Shift.ID)}
		if key.shiftID <= 0 {
			continue
		}
		if _, ok := statuses[key]; !ok {
			skipped++
			continue
		}
		userID := int64(hour.User.ID)
		if userID <= 0 {
			skipped++
			continue
		}
		if latest[key] == nil {
			latest[key] = map[int64]resource.Hour{}
		}
		if prev, ok := latest[key][userID]; !ok || hour.DateUpdated.After(prev.DateUpdated.Time) {
			latest[key][userID] = hour
		}
	}

	for key, byUser := range latest {
		if volunteers[key] == nil {
			volunteers[key] = map[int64]*ShiftVolunteer{}
		}
		for userID, hour := range byUser {
			volunteer, ok := volunteers[key][userID]
			if !ok {
				volunteer = &ShiftVolunteer{
					UserID:    userID,
					Email:     hour.User.Email,
					FirstName: hour.User.FirstName,
					LastName:  hour.User.LastName,
				}
				volunteers[key][userID] = volunteer
			}
			volunteer.CheckinStatus = hourCheckinStatus(hour)
			volunteer.HoursLogged = float64(hour.HourDuration)
			volunteer.CheckinAt = hour.HourDateStart
			volunteer.CheckoutAt = hour.HourDateEnd
		}
	}

	docs := make([]repository.Document, 0, len(statuses))
	for key, status := range statuses {
		roster := make([]ShiftVolunteer, 0, len(volunteers[key]))
		for _, volunteer := range volunteers[key] {
			roster = append(roster, *volunteer)
		}
		sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
		status.Volunteers = roster

		// Only a cancelled row releases its slot; an absent volunteer
		// still held one.
		filled := 0
		for _, volunteer := range roster {
			if volunteer.CheckinStatus != CheckinCancelled {
				filled++
			}
		}
		status.SlotsFilled = filled

		id := strconv.FormatInt(key.needID, 10) + ":" + strconv.FormatInt(key.shiftID, 10)
		doc, err := s.rollupDoc(ReportShiftStatus, id, status, generatedAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	sortDocs(docs)
	return docs, skipped, nil
}

// responseCheckinStatus maps a signup status to a roster status.
// Anything unrecognized is treated as a live signup.
func responseCheckinStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "inactive", "cancelled", "canceled":
		return CheckinCancelled
	case "declined", "denied":
		return CheckinAbsent
	default:
		return CheckinPending
	}
}

// hourCheckinStatus derives the roster status from a time entry.
// An entry without an end time is a check-in still in progress.
func hourCheckinStatus(hour resource.Hour) string {
	switch strings.ToLower(strings.TrimSpace(hour.HourStatus)) {
	case "denied", "rejected":
		return CheckinCancelled
	}
	if hour.HourDateEnd.IsZero() {
		return CheckinActive
	}
	return CheckinCompleted
}
