package galaxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/domain/syncer"
)

// PageFetchError wraps a failure partway through a paged fetch,
// recording how many pages were delivered before the failure.
type PageFetchError struct {
	Pages int
	Err   error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d pages: %v", e.Pages, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// Fetcher produces page iterators backed by the API client. Each
// page request runs under the client's retry policy.
type Fetcher struct {
	client *Client
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client *Client, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// Pages starts a paged fetch of res. since is nil for a full fetch.
func (f *Fetcher) Pages(res resource.Resource, since *time.Time) syncer.PageIterator {
	perPage := res.PerPage
	if perPage <= 0 {
		perPage = resource.DefaultPerPage
	}
	return &pageIter{
		client:  f.client,
		logger:  f.logger,
		res:     res,
		since:   since,
		perPage: perPage,
		next:    1,
	}
}

type pageIter struct {
	client  *Client
	logger  *slog.Logger
	res     resource.Resource
	since   *time.Time
	perPage int

	next    int
	page    []json.RawMessage
	fetched int
	done    bool
	err     error
}

// Next fetches the next page. A page shorter than per_page is the
// last one; it is still delivered before iteration stops.
func (it *pageIter) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}

	var records []json.RawMessage
	err := it.client.retry.Do(ctx, func(ctx context.Context) error {
		var opErr error
		records, opErr = it.client.ListPage(ctx, it.res, it.next, it.perPage, it.since)
		return opErr
	})
	if err != nil {
		it.err = &PageFetchError{Pages: it.fetched, Err: err}
		return false
	}

	it.logger.Debug("fetched page",
		"resource", it.res.Name, "page", it.next, "records", len(records))

	it.page = records
	it.fetched++
	it.next++
	if len(records) < it.perPage {
		it.done = true
	}
	if len(records) == 0 {
		// An empty page carries nothing worth delivering.
		it.fetched--
		return false
	}
	return true
}

func (it *pageIter) Page() []json.RawMessage { return it.page }

func (it *pageIter) Err() error { return it.err }

// Pages returns the number of non-empty pages delivered so far.
func (it *pageIter) Pages() int { return it.fetched }
