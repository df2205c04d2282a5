package domain

import "time"

// DocumentRecord holds the extracted text of the grounding document.
// Records are replaced whole on refresh; no field is mutated after creation,
// so readers never observe a partially updated record.
type DocumentRecord struct {
	DocumentID string
	Text       string // non-empty once a fetch has succeeded
	Revision   string // source revision marker (checksum or modified time), may be empty
	FetchedAt  time.Time
}
