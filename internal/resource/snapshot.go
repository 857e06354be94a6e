package resource

import (
	"time"

	"github.com/roach88/nexus/internal/doc"
)

// Event names the mutation that produced a revision.
type Event string

const (
	EventCreated    Event = "created"
	EventUpdated    Event = "updated"
	EventDeprecated Event = "deprecated"
	EventPublished  Event = "published"
	EventAttached   Event = "attached"
	EventDetached   Event = "detached"
)

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	switch e {
	case EventCreated, EventUpdated, EventDeprecated, EventPublished, EventAttached, EventDetached:
		return true
	}
	return false
}

// Attachment is the metadata of a binary attached to an instance revision.
// Digest is the lowercase hex SHA-256 of the content and keys the blob.
type Attachment struct {
	Filename  string `json:"originalFileName"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"contentSize"`
	Digest    string `json:"digest"`
}

// Snapshot is one immutable revision of a resource.
//
// Revisions of a ref are dense from 1. Deprecated and Published only ever
// move from false to true. Attachment is nil when the revision carries no
// binary.
type Snapshot struct {
	Ref         Ref
	Rev         int64
	Event       Event
	Deprecated  bool
	Published   bool
	Payload     doc.Object
	PayloadHash string
	Attachment  *Attachment
	CreatedAt   time.Time

	// Seq is the ledger-wide commit order, assigned on append.
	Seq int64
}

// Next derives the successor revision. The payload and flags carry forward;
// the caller changes what the event alters.
func (s Snapshot) Next(event Event, at time.Time) Snapshot {
	return Snapshot{
		Ref:         s.Ref,
		Rev:         s.Rev + 1,
		Event:       event,
		Deprecated:  s.Deprecated,
		Published:   s.Published,
		Payload:     s.Payload,
		PayloadHash: s.PayloadHash,
		Attachment:  s.Attachment,
		CreatedAt:   at,
	}
}
