package remote

import "context"

// Transport performs remote I/O for compiled queries. Every call carries
// the query's scope; implementations must not keep per-company state
// between calls.
type Transport interface {
	// Fetch returns one page of rows. A zero limit means no limit.
	Fetch(ctx context.Context, q *Query, offset, limit int) ([]Row, error)

	// Count returns the number of rows matching the query's filters.
	Count(ctx context.Context, q *Query) (int64, error)

	// Insert creates one object and returns its id.
	Insert(ctx context.Context, q *Query, payload Payload) (int64, error)

	// Update writes payload to every object matching the query's filters
	// and returns the affected ids.
	Update(ctx context.Context, q *Query, payload Payload) ([]int64, error)

	// Delete removes every object matching the query's filters and returns
	// the affected ids.
	Delete(ctx context.Context, q *Query) ([]int64, error)
}
