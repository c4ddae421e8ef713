package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
)

// PageIterator walks the pages of one resource fetch. Next reports
// whether another page is available; after Next returns false, Err
// holds the fetch error, if any. The final page may be short or empty.
type PageIterator interface {
	Next(ctx context.Context) bool
	Page() []json.RawMessage
	Err() error
	Pages() int
}

// PageSource produces page iterators for registered resources.
// since is nil for a full fetch.
type PageSource interface {
	Pages(res resource.Resource, since *time.Time) PageIterator
}

// PageWriter persists one page of raw records for a resource.
type PageWriter interface {
	WritePage(ctx context.Context, res resource.Resource, records []json.RawMessage) (PageResult, error)
}
