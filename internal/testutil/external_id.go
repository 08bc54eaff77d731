package testutil

// FixedExternalID returns the same external id every time, so requests
// that carry generated external ids can be compared against golden files.
//
// Thread-safety: FixedExternalID is stateless and safe for concurrent use.
type FixedExternalID struct {
	id string
}

// NewFixedExternalID creates a generator for id. An empty id becomes
// "ext:test:default".
func NewFixedExternalID(id string) *FixedExternalID {
	if id == "" {
		id = "ext:test:default"
	}
	return &FixedExternalID{id: id}
}

// Generate returns the fixed id.
func (g *FixedExternalID) Generate() string {
	return g.id
}
