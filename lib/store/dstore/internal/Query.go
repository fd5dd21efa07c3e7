package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet    QueryType = iota // Apply a processor to a copy of one entry.
	QueryTKeys                    // List the keys of a group.
	QueryTGroups                  // List the groups that hold entries.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTKeys:
		return "Keys"
	case QueryTGroups:
		return "Groups"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type      QueryType // The type of Query to perform.
	Group     string    // The group for the Query (emtpy for QueryTGroups).
	Key       string    // The key for the Query (only QueryTGet).
	Processor []byte    // The marshalled processor (only QueryTGet).
}

// QueryResult is the result of a QueryTGet operation.
// QueryTKeys and QueryTGroups return a []string.
type QueryResult struct {
	Result []byte
}
