package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/repository"
)

// SourceGalaxyAPI marks documents written by the sync pipeline.
const SourceGalaxyAPI = "galaxy_api"

// Writer normalizes raw API records and upserts them as documents.
// A bad record is reported in the page result and skipped; it never
// fails the page.
type Writer struct {
	docs   repository.DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Writer over the given document store.
func NewWriter(docs repository.DocumentStore, logger *slog.Logger) *Writer {
	return &Writer{docs: docs, logger: logger, now: time.Now}
}

// WritePage persists one page of records. The returned error is
// non-nil only for storage failures; per-record problems land in
// PageResult.Failures.
func (w *Writer) WritePage(ctx context.Context, res resource.Resource, records []json.RawMessage) (PageResult, error) {
	var result PageResult
	syncedAt := w.now().UTC()

	for i, raw := range records {
		doc, err := w.normalize(ctx, res, raw, syncedAt)
		if err != nil {
			result.Failures = append(result.Failures, WriteFailure{
				Index:  i,
				DocID:  rawID(raw),
				Reason: err.Error(),
			})
			w.logger.Warn("skipping record",
				"resource", res.Name, "index", i, "error", err)
			continue
		}

		if err := w.docs.Upsert(ctx, doc); err != nil {
			return result, fmt.Errorf("failed to write %s record: %w", res.Name, err)
		}
		result.Written++
	}
	return result, nil
}

// normalize decodes, denormalizes, and stamps one record.
func (w *Writer) normalize(ctx context.Context, res resource.Resource, raw json.RawMessage, syncedAt time.Time) (*repository.Document, error) {
	ent, err := resource.Decode(res.Kind, raw)
	if err != nil {
		return nil, err
	}
	if ent.DocID() == "" {
		return nil, ErrMissingID
	}

	if err := w.embedRefs(ctx, ent); err != nil {
		return nil, err
	}

	ent.Stamp(syncedAt, SourceGalaxyAPI)

	body, err := json.Marshal(ent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", res.Name, err)
	}
	return &repository.Document{
		Collection: res.Collection,
		ID:         ent.DocID(),
		Body:       body,
		SyncedAt:   syncedAt,
		SyncSource: SourceGalaxyAPI,
	}, nil
}

// embedRefs fills the denormalized user and need snapshots on hours
// and responses from previously synced documents. Records arriving
// with bare foreign keys get their refs resolved here; records with
// nested objects keep them. A dangling reference is tolerated and
// leaves only the id populated.
func (w *Writer) embedRefs(ctx context.Context, ent resource.Entity) error {
	switch rec := ent.(type) {
	case *resource.Hour:
		return w.fillRefs(ctx, &rec.User, rec.UserID, &rec.Need, rec.NeedID)
	case *resource.Response:
		return w.fillRefs(ctx, &rec.User, rec.UserID, &rec.Need, rec.NeedID)
	default:
		return nil
	}
}

func (w *Writer) fillRefs(ctx context.Context, user *resource.UserRef, userID resource.Integer, need *resource.NeedRef, needID resource.Integer) error {
	if user.ID == 0 && userID > 0 {
		user.ID = userID
	}
	if need.ID == 0 && needID > 0 {
		need.ID = needID
	}

	if user.ID > 0 && user.Email == "" && user.FirstName == "" && user.LastName == "" {
		var u resource.User
		found, err := w.lookup(ctx, resource.CollectionUsers, int64(user.ID), &u)
		if err != nil {
			return err
		}
		if found {
			user.Email = u.Email
			user.FirstName = u.FirstName
			user.LastName = u.LastName
		}
	}

	if need.ID > 0 && need.Title == "" {
		var n resource.Need
		found, err := w.lookup(ctx, resource.CollectionNeeds, int64(need.ID), &n)
		if err != nil {
			return err
		}
		if found {
			need.Title = n.Title
			need.AgencyID = n.AgencyID
		}
	}
	return nil
}

func (w *Writer) lookup(ctx context.Context, collection string, id int64, out any) (bool, error) {
	doc, err := w.docs.Get(ctx, collection, strconv.FormatInt(id, 10))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s/%d: %w", collection, id, err)
	}
	if err := json.Unmarshal(doc.Body, out); err != nil {
		return false, nil
	}
	return true, nil
}

// rawID pulls the id out of an undecodable record for error reporting.
func rawID(raw json.RawMessage) string {
	var probe struct {
		ID resource.Integer `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.ID <= 0 {
		return ""
	}
	return strconv.FormatInt(int64(probe.ID), 10)
}
