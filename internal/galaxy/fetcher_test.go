package galaxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/galaxytest"
)

func pagedResource(perPage int) resource.Resource {
	res, _ := resource.Lookup("users")
	res.PerPage = perPage
	return res
}

func TestFetcherTerminatesOnShortPage(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()
	srv.SeedSequential("users", 140)

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)

	ctx := context.Background()
	total := 0
	for iter.Next(ctx) {
		total += len(iter.Page())
	}
	require.NoError(t, iter.Err())
	require.Equal(t, 140, total)
	require.Equal(t, 2, iter.Pages())
	// 140 records at per_page 100 fill page two partially, so no
	// third request is needed to detect the end.
	require.Equal(t, 2, srv.Requests("users"), "short page must end iteration without an extra request")
}

func TestFetcherExactMultipleNeedsOneExtraRequest(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()
	srv.SeedSequential("users", 200)

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)

	ctx := context.Background()
	total := 0
	for iter.Next(ctx) {
		total += len(iter.Page())
	}
	require.NoError(t, iter.Err())
	require.Equal(t, 200, total)
	require.Equal(t, 2, iter.Pages())
}

func TestFetcherEmptyResource(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)

	require.False(t, iter.Next(context.Background()))
	require.NoError(t, iter.Err())
	require.Equal(t, 0, iter.Pages())
}

func TestFetcherRetriesWithinPage(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()
	srv.SeedSequential("users", 10)
	srv.FailNext("users", 2, 503)

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)

	require.True(t, iter.Next(context.Background()))
	require.Len(t, iter.Page(), 10)
	require.NoError(t, iter.Err())
}

func TestFetcherReportsPagesDeliveredBeforeFailure(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()
	srv.SeedSequential("users", 250)

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)
	ctx := context.Background()

	require.True(t, iter.Next(ctx))
	require.True(t, iter.Next(ctx))

	// Exhaust the retry budget on page three.
	srv.FailNext("users", 10, 503)
	require.False(t, iter.Next(ctx))

	var fetchErr *PageFetchError
	require.ErrorAs(t, iter.Err(), &fetchErr)
	require.Equal(t, 2, fetchErr.Pages)
}

func TestFetcherStopsOnTerminalError(t *testing.T) {
	srv := galaxytest.New()
	defer srv.Close()
	srv.SeedSequential("users", 10)
	srv.FailNext("users", 1, 403)

	fetcher := NewFetcher(testClient(t, srv), testLogger())
	iter := fetcher.Pages(pagedResource(100), nil)

	require.False(t, iter.Next(context.Background()))
	require.True(t, IsTerminal(iter.Err()))
}
