package syncer

import "errors"

var (
	// ErrMissingID marks a record with no usable document id.
	ErrMissingID = errors.New("record has no id")
	// ErrUnknownResource marks a sync request for an unregistered resource.
	ErrUnknownResource = errors.New("unknown resource")
)
