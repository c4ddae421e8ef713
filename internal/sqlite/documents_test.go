package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volunteerhq/galaxysync/internal/repository"
)

func testDoc(collection, id, body string) *repository.Document {
	return &repository.Document{
		Collection: collection,
		ID:         id,
		Body:       []byte(body),
		SyncedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SyncSource: "galaxy_api",
	}
}

func TestDocumentRepository_UpsertGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	err := repo.Upsert(ctx, testDoc("users", "7", `{"id":7,"user_email":"a@example.org"}`))
	require.NoError(t, err)

	doc, err := repo.Get(ctx, "users", "7")
	require.NoError(t, err)
	require.Equal(t, "users", doc.Collection)
	require.Equal(t, "7", doc.ID)
	require.JSONEq(t, `{"id":7,"user_email":"a@example.org"}`, string(doc.Body))
	require.Equal(t, "galaxy_api", doc.SyncSource)
}

func TestDocumentRepository_UpsertIsIdempotent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	doc := testDoc("hours", "42", `{"id":42,"hour_status":"approved"}`)
	require.NoError(t, repo.Upsert(ctx, doc))
	require.NoError(t, repo.Upsert(ctx, doc))

	count, err := repo.Count(ctx, "hours")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	stored, err := repo.Get(ctx, "hours", "42")
	require.NoError(t, err)
	require.JSONEq(t, string(doc.Body), string(stored.Body))
}

func TestDocumentRepository_UpsertReplacesPriorVersion(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("users", "7", `{"id":7,"user_status":"active"}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("users", "7", `{"id":7,"user_status":"inactive"}`)))

	doc, err := repo.Get(ctx, "users", "7")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7,"user_status":"inactive"}`, string(doc.Body))
}

func TestDocumentRepository_GetNotFound(t *testing.T) {
	db := NewTestDB(t)
	repo := NewDocumentRepository(db)

	_, err := repo.Get(context.Background(), "users", "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentRepository_UpsertRejectsMissingID(t *testing.T) {
	db := NewTestDB(t)
	repo := NewDocumentRepository(db)

	err := repo.Upsert(context.Background(), testDoc("users", "", `{}`))
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestDocumentRepository_ListIsScopedToCollection(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("users", "1", `{"id":1}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("users", "2", `{"id":2}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("agencies", "1", `{"id":1}`)))

	docs, err := repo.List(ctx, "users")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "1", docs[0].ID)
	require.Equal(t, "2", docs[1].ID)
}

func TestDocumentRepository_QueryFilter(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("hours", "1", `{"id":1,"hour_status":"approved","user":{"id":7}}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("hours", "2", `{"id":2,"hour_status":"pending","user":{"id":7}}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("hours", "3", `{"id":3,"hour_status":"approved","user":{"id":9}}`)))

	docs, err := repo.Query(ctx, "hours", repository.QueryOptions{
		Filter: map[string]any{"hour_status": "approved"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Nested field via dotted path, combined with a numeric match.
	docs, err = repo.Query(ctx, "hours", repository.QueryOptions{
		Filter: map[string]any{"hour_status": "approved", "user.id": 7},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "1", docs[0].ID)
}

func TestDocumentRepository_QueryLimitSkip(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Upsert(ctx, testDoc("needs", id, `{"id":"`+id+`"}`)))
	}

	docs, err := repo.Query(ctx, "needs", repository.QueryOptions{Limit: 2, Skip: 1})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "b", docs[0].ID)
	require.Equal(t, "c", docs[1].ID)

	docs, err = repo.Query(ctx, "needs", repository.QueryOptions{Skip: 3})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "d", docs[0].ID)
}

func TestDocumentRepository_QueryProjection(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("users", "7",
		`{"id":7,"user_email":"a@example.org","user_fname":"Ada","user_lname":"Lovelace"}`)))

	docs, err := repo.Query(ctx, "users", repository.QueryOptions{
		Projection: []string{"id", "user_email"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.JSONEq(t, `{"id":7,"user_email":"a@example.org"}`, string(docs[0].Body))
}

func TestDocumentRepository_ReplaceAll(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("monthly_activity", "2025-04", `{"month":"2025-04"}`)))
	require.NoError(t, repo.Upsert(ctx, testDoc("monthly_activity", "2025-05", `{"month":"2025-05"}`)))

	err := repo.ReplaceAll(ctx, "monthly_activity", []repository.Document{
		*testDoc("monthly_activity", "2025-06", `{"month":"2025-06"}`),
	})
	require.NoError(t, err)

	docs, err := repo.List(ctx, "monthly_activity")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "2025-06", docs[0].ID)
}

func TestDocumentRepository_ReplaceAllWithEmptySetClears(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(db)

	require.NoError(t, repo.Upsert(ctx, testDoc("shift_status", "1", `{"id":1}`)))
	require.NoError(t, repo.ReplaceAll(ctx, "shift_status", nil))

	count, err := repo.Count(ctx, "shift_status")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
