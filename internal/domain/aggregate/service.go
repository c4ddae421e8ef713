package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/repository"
)

// ErrUnknownReport marks a request for an unregistered report.
var ErrUnknownReport = errors.New("unknown report")

// Service derives rollup collections from synced documents. Each
// report reads the current state of its source collections and
// atomically replaces the derived collection.
type Service struct {
	docs   repository.DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an aggregation Service.
func NewService(docs repository.DocumentStore, logger *slog.Logger) *Service {
	return &Service{docs: docs, logger: logger, now: time.Now}
}

// Generate computes one report and replaces its collection.
func (s *Service) Generate(ctx context.Context, report string) (*RollupReport, error) {
	started := s.now()
	generatedAt := started.UTC()

	var docs []repository.Document
	var skipped int
	var err error

	switch report {
	case ReportUserActivity:
		docs, skipped, err = s.userActivity(ctx, generatedAt)
	case ReportOpportunityActivity:
		docs, skipped, err = s.opportunityActivity(ctx, generatedAt)
	case ReportAgencyActivity:
		docs, skipped, err = s.agencyActivity(ctx, generatedAt)
	case ReportMonthlyActivity:
		docs, skipped, err = s.monthlyActivity(ctx, generatedAt)
	case ReportShiftStatus:
		docs, skipped, err = s.shiftStatus(ctx, generatedAt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, report)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", report, err)
	}

	if err := s.docs.ReplaceAll(ctx, report, docs); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", report, err)
	}

	result := &RollupReport{
		Report:         report,
		Collection:     report,
		RecordsWritten: len(docs),
		RecordsSkipped: skipped,
		Duration:       s.now().Sub(started),
		GeneratedAt:    generatedAt,
	}
	s.logger.Info("report generated",
		"report", report, "written", result.RecordsWritten, "skipped", result.RecordsSkipped)
	return result, nil
}

// GenerateAll computes every report. Reports fail independently; the
// returned error joins any failures.
func (s *Service) GenerateAll(ctx context.Context) ([]RollupReport, error) {
	var results []RollupReport
	var errs []error
	for _, report := range Reports() {
		result, err := s.Generate(ctx, report)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, *result)
	}
	return results, errors.Join(errs...)
}

// approved reports whether an hour entry counts toward totals.
func approved(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "approved")
}

func (s *Service) loadHours(ctx context.Context) ([]resource.Hour, int, error) {
	docs, err := s.docs.List(ctx, resource.CollectionHours)
	if err != nil {
		return nil, 0, err
	}
	hours := make([]resource.Hour, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		var hour resource.Hour
		if err := json.Unmarshal(doc.Body, &hour); err != nil {
			skipped++
			continue
		}
		hours = append(hours, hour)
	}
	return hours, skipped, nil
}

func (s *Service) loadNeeds(ctx context.Context) (map[int64]resource.Need, int, error) {
	docs, err := s.docs.List(ctx, resource.CollectionNeeds)
	if err != nil {
		return nil, 0, err
	}
	needs := make(map[int64]resource.Need, len(docs))
	skipped := 0
	for _, doc := range docs {
		var need resource.Need
		if err := json.Unmarshal(doc.Body, &need); err != nil || need.ID <= 0 {
			skipped++
			continue
		}
		needs[int64(need.ID)] = need
	}
	return needs, skipped, nil
}

func (s *Service) loadAgencies(ctx context.Context) (map[int64]resource.Agency, error) {
	docs, err := s.docs.List(ctx, resource.CollectionAgencies)
	if err != nil {
		return nil, err
	}
	agencies := make(map[int64]resource.Agency, len(docs))
	for _, doc := range docs {
		var agency resource.Agency
		if err := json.Unmarshal(doc.Body, &agency); err != nil || agency.ID <= 0 {
			continue
		}
		agencies[int64(agency.ID)] = agency
	}
	return agencies, nil
}

func (s *Service) loadResponses(ctx context.Context) ([]resource.Response, int, error) {
	docs, err := s.docs.List(ctx, resource.CollectionResponses)
	if err != nil {
		return nil, 0, err
	}
	responses := make([]resource.Response, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		var response resource.Response
		if err := json.Unmarshal(doc.Body, &response); err != nil {
			skipped++
			continue
		}
		responses = append(responses, response)
	}
	return responses, skipped, nil
}

// hourMoment picks the timestamp an hour entry is bucketed by,
// preferring the volunteering date over bookkeeping dates.
func hourMoment(hour resource.Hour) resource.Instant {
	if !hour.HourDateStart.IsZero() {
		return hour.HourDateStart
	}
	if !hour.DateCreated.IsZero() {
		return hour.DateCreated
	}
	return hour.DateUpdated
}

func (s *Service) userActivity(ctx context.Context, generatedAt time.Time) ([]repository.Document, int, error) {
	hours, skipped, err := s.loadHours(ctx)
	if err != nil {
		return nil, 0, err
	}

	byUser := map[int64]*UserActivity{}
	needsSeen := map[int64]map[int64]bool{}
	for _, hour := range hours {
		if !approved(hour.HourStatus) {
			continue
		}
		userID := int64(hour.User.ID)
		if userID <= 0 {
			skipped++
			continue
		}

		activity, ok := byUser[userID]
		if !ok {
			activity = &UserActivity{
				UserID:       userID,
				Email:        hour.User.Email,
				FirstName:    hour.User.FirstName,
				LastName:     hour.User.LastName,
				HoursByMonth: map[string]float64{},
				GeneratedAt:  resource.Instant{Time: generatedAt},
			}
			byUser[userID] = activity
			needsSeen[userID] = map[int64]bool{}
		}

		activity.TotalHours += float64(hour.HourDuration)
		activity.ShiftsAttended++
		if needID := int64(hour.Need.ID); needID > 0 {
			needsSeen[userID][needID] = true
		}

		moment := hourMoment(hour)
		if !moment.IsZero() {
			if activity.FirstActivity.IsZero() || moment.Before(activity.FirstActivity.Time) {
				activity.FirstActivity = moment
			}
			if moment.After(activity.LastActivity.Time) {
				activity.LastActivity = moment
			}
			if month := moment.YearMonth(); month != "" {
				activity.HoursByMonth[month] += float64(hour.HourDuration)
			}
		}
	}

	docs := make([]repository.Document, 0, len(byUser))
	for userID, activity := range byUser {
		opportunities := make([]int64, 0, len(needsSeen[userID]))
		for needID := range needsSeen[userID] {
			opportunities = append(opportunities, needID)
		}
		sort.Slice(opportunities, func(i, j int) bool { return opportunities[i] < opportunities[j] })
		activity.Opportunities = opportunities
		activity.OpportunityCount = len(opportunities)
		if activity.ShiftsAttended > 0 {
			activity.AvgHoursPerShift = activity.TotalHours / float64(activity.ShiftsAttended)
		}
		if !activity.LastActivity.IsZero() {
			activity.DaysSinceActivity = int(generatedAt.Sub(activity.LastActivity.Time).Hours() / 24)
		}
		doc, err := s.rollupDoc(ReportUserActivity, strconv.FormatInt(userID, 10), activity, generatedAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	sortDocs(docs)
	return docs, skipped, nil
}

func (s *Service) opportunityActivity(ctx context.Context, generatedAt time.Time) ([]repository.Document, int, error) {
	hours, skipped, err := s.loadHours(ctx)
	if err != nil {
		return nil, 0, err
	}
	needs, needSkipped, err := s.loadNeeds(ctx)
	if err != nil {
		return nil, 0, err
	}
	skipped += needSkipped

	byNeed := map[int64]*OpportunityActivity{}
	usersSeen := map[int64]map[int64]bool{}
	for _, hour := range hours {
		if !approved(hour.HourStatus) {
			continue
		}
		needID := int64(hour.Need.ID)
		if needID <= 0 {
			skipped++
			continue
		}

		activity, ok := byNeed[needID]
		if !ok {
			activity = &OpportunityActivity{
				NeedID:       needID,
				Title:        hour.Need.Title,
				AgencyID:     int64(hour.Need.AgencyID),
				HoursByMonth: map[string]float64{},
				GeneratedAt:  resource.Instant{Time: generatedAt},
			}
			if need, ok := needs[needID]; ok {
				activity.Title = need.Title
				activity.AgencyID = int64(need.AgencyID)
			}
			byNeed[needID] = activity
			usersSeen[needID] = map[int64]bool{}
		}

		activity.TotalHours += float64(hour.HourDuration)
		activity.HourEntries++
		if userID := int64(hour.User.ID); userID > 0 {
			usersSeen[needID][userID] = true
		}

		moment := hourMoment(hour)
		if !moment.IsZero() {
			if activity.FirstHour.IsZero() || moment.Before(activity.FirstHour.Time) {
				activity.FirstHour = moment
			}
			if moment.After(activity.LastHour.Time) {
				activity.LastHour = moment
			}
			if month := moment.YearMonth(); month != "" {
				activity.HoursByMonth[month] += float64(hour.HourDuration)
			}
		}
	}

	docs := make([]repository.Document, 0, len(byNeed))
	for needID, activity := range byNeed {
		activity.Volunteers = len(usersSeen[needID])
		doc, err := s.rollupDoc(ReportOpportunityActivity, strconv.FormatInt(needID, 10), activity, generatedAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	sortDocs(docs)
	return docs, skipped, nil
}

func (s *Service) agencyActivity(ctx context.Context, generatedAt time.Time) ([]repository.Document, int, error) {
	hours, skipped, err := s.loadHours(ctx)
	if err != nil {
		return nil, 0, err
	}
	needs, needSkipped, err := s.loadNeeds(ctx)
	if err != nil {
		return nil, 0, err
	}
	skipped += needSkipped
	agencies, err := s.loadAgencies(ctx)
	if err != nil {
		return nil, 0, err
	}

	byAgency := map[int64]*AgencyActivity{}
	usersSeen := map[int64]map[int64]bool{}
	needsSeen := map[int64]map[int64]bool{}
	for _, hour := range hours {
		if !approved(hour.HourStatus) {
			continue
		}

		agencyID := int64(hour.Need.AgencyID)
		needID := int64(hour.Need.ID)
		if agencyID <= 0 && needID > 0 {
			if need, ok := needs[needID]; ok {
				agencyID = int64(need.AgencyID)
			}
		}
		if agencyID <= 0 {
			skipped++
			continue
		}

		activity, ok := byAgency[agencyID]
		if !ok {
			activity = &AgencyActivity{
				AgencyID:    agencyID,
				GeneratedAt: resource.Instant{Time: generatedAt},
			}
			if agency, ok := agencies[agencyID]; ok {
				activity.AgencyName = agency.AgencyName
			}
			byAgency[agencyID] = activity
			usersSeen[agencyID] = map[int64]bool{}
			needsSeen[agencyID] = map[int64]bool{}
		}

		activity.TotalHours += float64(hour.HourDuration)
		activity.HourEntries++
		if userID := int64(hour.User.ID); userID > 0 {
			usersSeen[agencyID][userID] = true
		}
		if needID > 0 {
			needsSeen[agencyID][needID] = true
		}
	}

	docs := make([]repository.Document, 0, len(byAgency))
	for agencyID, activity := range byAgency {
		activity.Volunteers = len(usersSeen[agencyID])
		activity.Opportunities = len(needsSeen[agencyID])
		doc, err := s.rollupDoc(ReportAgencyActivity, strconv.FormatInt(agencyID, 10), activity, generatedAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	sortDocs(docs)
	return docs, skipped, nil
}

func (s *Service) monthlyActivity(ctx context.Context, generatedAt time.Time) ([]repository.Document, int, error) {
	hours, skipped, err := s.loadHours(ctx)
	if err != nil {
		return nil, 0, err
	}
	needs, needSkipped, err := s.loadNeeds(ctx)
	if err != nil {
		return nil, 0, err
	}
	skipped += needSkipped

	byMonth := map[string]*MonthlyActivity{}
	usersSeen := map[string]map[int64]bool{}
	needsSeen := map[string]map[int64]bool{}
	agenciesSeen := map[string]map[int64]bool{}
	for _, hour := range hours {
		if !approved(hour.HourStatus) {
			continue
		}
		month := hourMoment(hour).YearMonth()
		if month == "" {
			skipped++
			continue
		}

		activity, ok := byMonth[month]
		if !ok {
			activity = &MonthlyActivity{
				Month:       month,
				GeneratedAt: resource.Instant{Time: generatedAt},
			}
			byMonth[month] = activity
			usersSeen[month] = map[int64]bool{}
			needsSeen[month] = map[int64]bool{}
			agenciesSeen[month] = map[int64]bool{}
		}

		activity.TotalHours += float64(hour.HourDuration)
		activity.HourEntries++
		if userID := int64(hour.User.ID); userID > 0 {
			usersSeen[month][userID] = true
		}
		needID := int64(hour.Need.ID)
		if needID > 0 {
			needsSeen[month][needID] = true
		}
		agencyID := int64(hour.Need.AgencyID)
		if agencyID <= 0 && needID > 0 {
			if need, ok := needs[needID]; ok {
				agencyID = int64(need.AgencyID)
			}
		}
		if agencyID > 0 {
			agenciesSeen[month][agencyID] = true
		}
	}

	docs := make([]repository.Document, 0, len(byMonth))
	for month, activity := range byMonth {
		activity.Users = len(usersSeen[month])
		activity.Needs = len(needsSeen[month])
		activity.Agencies = len(agenciesSeen[month])
		doc, err := s.rollupDoc(ReportMonthlyActivity, month, activity, generatedAt)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	sortDocs(docs)
	return docs, skipped, nil
}

func (s *Service) rollupDoc(collection, id string, body any, generatedAt time.Time) (*repository.Document, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	return &repository.Document{
		Collection: collection,
		ID:         id,
		Body:       encoded,
		SyncedAt:   generatedAt,
		SyncSource: SyncSource,
	}, nil
}

func sortDocs(docs []repository.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
