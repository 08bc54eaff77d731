package testutil

import (
	"context"
	"sync"

	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/scope"
)

// Call is one recorded transport call.
type Call struct {
	Op        string
	Table     string
	Columns   []string
	Filter    string
	Orderings []string
	Scope     scope.Scope
	Via       *remote.Via
	Offset    int
	Limit     int
	Payload   remote.Payload
}

// RecordingTransport is an in-memory remote.Transport. It records every
// call and answers from the configured fields.
type RecordingTransport struct {
	mu    sync.Mutex
	calls []Call

	// Rows is returned by Fetch, paged by offset and limit.
	Rows []remote.Row

	// CountResult is returned by Count.
	CountResult int64

	// IDs allocates the ids returned by Insert.
	IDs *IDSequence

	// UpdateIDs and DeleteIDs are returned by Update and Delete.
	UpdateIDs []int64
	DeleteIDs []int64

	// Err, when set, is returned by every call after recording it.
	Err error
}

var _ remote.Transport = (*RecordingTransport)(nil)

// NewRecordingTransport returns a transport whose first inserted id is 1.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{IDs: NewIDSequence(1)}
}

func (rt *RecordingTransport) record(op string, q *remote.Query, offset, limit int, payload remote.Payload) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var copied remote.Payload
	if payload != nil {
		copied = make(remote.Payload, len(payload))
		for k, v := range payload {
			copied[k] = v
		}
	}
	rt.calls = append(rt.calls, Call{
		Op:        op,
		Table:     q.Table,
		Columns:   append([]string(nil), q.Columns...),
		Filter:    q.FilterString(),
		Orderings: q.OrderStrings(),
		Scope:     q.Scope,
		Via:       q.Via,
		Offset:    offset,
		Limit:     limit,
		Payload:   copied,
	})
}

// Calls returns a copy of the recorded calls.
func (rt *RecordingTransport) Calls() []Call {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]Call(nil), rt.calls...)
}

// Ops returns the recorded operation names in order.
func (rt *RecordingTransport) Ops() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ops := make([]string, len(rt.calls))
	for i, c := range rt.calls {
		ops[i] = c.Op
	}
	return ops
}

// Fetch implements remote.Transport.
func (rt *RecordingTransport) Fetch(_ context.Context, q *remote.Query, offset, limit int) ([]remote.Row, error) {
	rt.record("fetch", q, offset, limit, nil)
	if rt.Err != nil {
		return nil, rt.Err
	}
	rows := rt.Rows
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// Count implements remote.Transport.
func (rt *RecordingTransport) Count(_ context.Context, q *remote.Query) (int64, error) {
	rt.record("count", q, 0, 0, nil)
	return rt.CountResult, rt.Err
}

// Insert implements remote.Transport.
func (rt *RecordingTransport) Insert(_ context.Context, q *remote.Query, payload remote.Payload) (int64, error) {
	rt.record("insert", q, 0, 0, payload)
	if rt.Err != nil {
		return 0, rt.Err
	}
	return rt.IDs.Next(), nil
}

// Update implements remote.Transport.
func (rt *RecordingTransport) Update(_ context.Context, q *remote.Query, payload remote.Payload) ([]int64, error) {
	rt.record("update", q, 0, 0, payload)
	if rt.Err != nil {
		return nil, rt.Err
	}
	return rt.UpdateIDs, nil
}

// Delete implements remote.Transport.
func (rt *RecordingTransport) Delete(_ context.Context, q *remote.Query) ([]int64, error) {
	rt.record("delete", q, 0, 0, nil)
	if rt.Err != nil {
		return nil, rt.Err
	}
	return rt.DeleteIDs, nil
}

// AttachmentTransport is a RecordingTransport that also lists
// attachments. Listings are not recorded as calls.
type AttachmentTransport struct {
	*RecordingTransport

	// Files maps object ids to their attachments. Missing ids have none.
	Files map[int64][]remote.Attachment

	// ListErr, when set, is returned by Attachments.
	ListErr error

	listed []int64
}

var _ remote.AttachmentLister = (*AttachmentTransport)(nil)

// NewAttachmentTransport returns an empty AttachmentTransport.
func NewAttachmentTransport() *AttachmentTransport {
	return &AttachmentTransport{RecordingTransport: NewRecordingTransport(), Files: map[int64][]remote.Attachment{}}
}

// Attachments implements remote.AttachmentLister.
func (at *AttachmentTransport) Attachments(_ context.Context, _ *remote.Query, id int64) ([]remote.Attachment, error) {
	at.mu.Lock()
	at.listed = append(at.listed, id)
	at.mu.Unlock()
	if at.ListErr != nil {
		return nil, at.ListErr
	}
	files, ok := at.Files[id]
	if !ok {
		return []remote.Attachment{}, nil
	}
	return files, nil
}

// Listed returns the object ids whose attachments were listed, in order.
func (at *AttachmentTransport) Listed() []int64 {
	at.mu.Lock()
	defer at.mu.Unlock()
	return append([]int64(nil), at.listed...)
}
