package remote

import "context"

// Attachment is one file attached to a remote object.
type Attachment struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
}

// AttachmentLister is implemented by transports that can list the files
// attached to an object. Fetched remote-file fields stay nil when the
// transport does not implement it.
type AttachmentLister interface {
	// Attachments lists the files attached to object id of q's table in
	// q's scope. An object without attachments yields an empty list.
	Attachments(ctx context.Context, q *Query, id int64) ([]Attachment, error)
}
