package resource

import "fmt"

// DefaultPerPage matches the upstream API's maximum page size.
const DefaultPerPage = 150

// Resource describes one syncable remote endpoint and where its
// records land locally.
type Resource struct {
	// Name identifies the resource in checkpoints, logs, and the CLI.
	Name string
	// Endpoint is the API path, without leading slash.
	Endpoint string
	// Collection is the local collection records are written to.
	Collection string
	// Kind selects the Decode target and equals Collection for all
	// current resources.
	Kind string
	// SinceParam is the query parameter for incremental fetches.
	// Empty means the resource does not support filtering and every
	// sync is a full fetch.
	SinceParam string
	// PerPage is the page size requested from the API.
	PerPage int
}

// Registry returns the syncable resources in sync order.
func Registry() []Resource {
	return []Resource{
		{Name: "agencies", Endpoint: "agencies", Collection: CollectionAgencies, Kind: CollectionAgencies, SinceParam: "since_updated", PerPage: DefaultPerPage},
		{Name: "users", Endpoint: "users", Collection: CollectionUsers, Kind: CollectionUsers, SinceParam: "since_updated", PerPage: DefaultPerPage},
		{Name: "needs", Endpoint: "needs", Collection: CollectionNeeds, Kind: CollectionNeeds, SinceParam: "since_updated", PerPage: DefaultPerPage},
		{Name: "events", Endpoint: "events", Collection: CollectionEvents, Kind: CollectionEvents, SinceParam: "", PerPage: DefaultPerPage},
		{Name: "hours", Endpoint: "hours", Collection: CollectionHours, Kind: CollectionHours, SinceParam: "since_updated", PerPage: DefaultPerPage},
		{Name: "responses", Endpoint: "responses", Collection: CollectionResponses, Kind: CollectionResponses, SinceParam: "since_updated", PerPage: DefaultPerPage},
	}
}

// Lookup finds a registered resource by name.
func Lookup(name string) (Resource, error) {
	for _, res := range Registry() {
		if res.Name == name {
			return res, nil
		}
	}
	return Resource{}, fmt.Errorf("unknown resource %q", name)
}
