package domain

// =============================================================================
// Index persistence model
// =============================================================================

// Sentinel values for GroupData.IndexTimestamp. Any value >= 2 is a real
// epoch-ms horizon meaning "all mail newer than this is indexed".
const (
	// NothingIndexed marks a group that has never been indexed.
	NothingIndexed int64 = 0
	// FullIndexed marks a group indexed back to its origin.
	FullIndexed int64 = 1
)

// GroupData is the per-mail-group progress cursor.
type GroupData struct {
	GroupID        string `json:"group_id"`
	IndexTimestamp int64  `json:"index_timestamp"`
}

// ElementData records that a mail instance has been indexed and which list it
// currently lives in. The store key is the encrypted instance ID; the list
// pointer is encrypted before persistence.
type ElementData struct {
	EncInstanceID string `json:"enc_instance_id"`
	EncListID     []byte `json:"enc_list_id"`
	OwnerGroup    string `json:"owner_group"`
}

// AttributeID tags the logical mail attribute a posting was extracted from.
// Postings carry the tag so per-attribute weighting survives encryption.
type AttributeID int

const (
	AttrSubject AttributeID = iota
	AttrToRecipients
	AttrCcRecipients
	AttrBccRecipients
	AttrSender
	AttrBody
	AttrAttachments
)

func (a AttributeID) String() string {
	switch a {
	case AttrSubject:
		return "subject"
	case AttrToRecipients:
		return "toRecipients"
	case AttrCcRecipients:
		return "ccRecipients"
	case AttrBccRecipients:
		return "bccRecipients"
	case AttrSender:
		return "sender"
	case AttrBody:
		return "body"
	case AttrAttachments:
		return "attachments"
	default:
		return "unknown"
	}
}

// SearchIndexEntry is one plaintext posting: which mail a token occurred in,
// in which attribute, at which token positions.
type SearchIndexEntry struct {
	ID        IDTuple     `json:"id"`
	Attribute AttributeID `json:"attribute"`
	Positions []int       `json:"positions"`
}

// EncSearchIndexEntry is a posting after database-key encryption: the token is
// reduced to its deterministic index key, the posting payload to ciphertext.
type EncSearchIndexEntry struct {
	KeyB64        string `json:"key_b64"`
	EncInstanceID string `json:"enc_instance_id"`
	Entry         []byte `json:"entry"`
}

// MoveRef records a folder move of an already-indexed instance: postings stay,
// only the list pointer updates.
type MoveRef struct {
	EncInstanceID string `json:"enc_instance_id"`
	NewListID     ListID `json:"new_list_id"`
}

// IndexUpdate is the in-memory staging buffer for one commit: encrypted
// posting inserts, new element-data rows, moves, and deletions, scoped to one
// (group, processing-unit) pair. It is mutated by a single writer and becomes
// durable atomically via the index core's WriteIndexUpdate.
type IndexUpdate struct {
	GroupID string

	Create  []EncSearchIndexEntry
	Element []ElementData
	Move    []MoveRef
	Delete  []string // encrypted instance IDs
}

// NewIndexUpdate creates an empty update for one group.
func NewIndexUpdate(groupID string) *IndexUpdate {
	return &IndexUpdate{GroupID: groupID}
}

// IsEmpty reports whether committing the update would be a no-op.
func (u *IndexUpdate) IsEmpty() bool {
	return len(u.Create) == 0 && len(u.Element) == 0 && len(u.Move) == 0 && len(u.Delete) == 0
}
