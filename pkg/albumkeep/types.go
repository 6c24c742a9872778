package albumkeep

import "time"

// Mutation kinds emitted by the object store.
const (
	MutationCreated = "Created"
	MutationRemoved = "Removed"
)

// Routing attribute names carried on message envelopes.
const (
	AttrEventName    = "event_name"
	AttrMetadataType = "metadata_type"
)

// Routing attribute values derived from object-store notifications.
const (
	EventNameCreated = "ObjectCreated:Put"
	EventNameRemoved = "ObjectRemoved:Delete"
)

// Metadata attribute names writable through attribute-update events.
const (
	MetadataCaption      = "Caption"
	MetadataDate         = "Date"
	MetadataPhotographer = "Photographer"
)

// Record attribute names written by the ingest worker itself.
const (
	RecordAttrBucket      = "bucket"
	RecordAttrSize        = "size"
	RecordAttrContentType = "contentType"
)

// AllowedMetadataTypes is the allow-list of attribute names an
// attribute-update event may target. The router filters on it, so the
// update worker never sees any other value.
func AllowedMetadataTypes() []string {
	return []string{MetadataCaption, MetadataDate, MetadataPhotographer}
}

// MutationEvent describes a single object-store mutation. The object key is
// carried exactly as the store reported it (URL-encoded, '+' for space);
// workers decode it with DecodeObjectKey before touching the metadata store.
type MutationEvent struct {
	Kind      string `json:"kind"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}

// AttributeUpdateEvent carries a single named attribute change for an
// existing metadata record. The attribute name travels as the
// "metadata_type" routing attribute on the envelope, not in the body.
type AttributeUpdateEvent struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// MetadataRecord is the per-object metadata row. FileName is the primary
// key and equals the decoded object key. Absence of a record is a valid
// state: the object has not been ingested yet, or it has been deleted.
type MetadataRecord struct {
	FileName   string            `json:"fileName"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Clone returns a deep copy of the record.
func (r *MetadataRecord) Clone() *MetadataRecord {
	c := &MetadataRecord{
		FileName:  r.FileName,
		CreatedAt: r.CreatedAt,
	}
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// ChangeEntry is one entry of a metadata store's change feed. The feed
// emits exactly one Insert entry per successful record creation; updates
// and deletes do not appear on it.
type ChangeEntry struct {
	Kind   string          `json:"kind"`
	Record *MetadataRecord `json:"record"`
}

// ChangeEntry kinds.
const (
	ChangeInsert = "INSERT"
)

// ObjectInfo is what an object-store probe reports about a stored object.
type ObjectInfo struct {
	Size        int64
	ContentType string
}
