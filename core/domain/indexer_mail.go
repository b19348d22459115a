package domain

// ListID identifies an ordered mail list (a folder's contents).
type ListID = string

// ElementID is a time-ordered generated ID inside a list. Numeric comparison
// of two element IDs compares their creation instants.
type ElementID = int64

// IDTuple is the full identity of a list element: (listId, elementId).
type IDTuple struct {
	ListID    ListID    `json:"list_id"`
	ElementID ElementID `json:"element_id"`
}

// MailState represents the lifecycle state of a mail record.
type MailState string

const (
	MailStateDraft    MailState = "draft"
	MailStateReceived MailState = "received"
	MailStateSent     MailState = "sent"
	MailStateSending  MailState = "sending"
)

// MailAddress is a display-name/address pair as it appears on a mail.
type MailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// String renders the address the way it is indexed: "name <address>".
func (a MailAddress) String() string {
	if a.Address == "" && a.Name == "" {
		return ""
	}
	return a.Name + " <" + a.Address + ">"
}

// Mail is the mail record as served by the entity store. Only the fields the
// indexer consumes are modeled.
type Mail struct {
	ListID        ListID        `json:"list_id"`
	ID            ElementID     `json:"id"`
	Subject       string        `json:"subject"`
	Sender        MailAddress   `json:"sender"`
	ToRecipients  []MailAddress `json:"to_recipients"`
	CcRecipients  []MailAddress `json:"cc_recipients"`
	BccRecipients []MailAddress `json:"bcc_recipients"`
	State         MailState     `json:"state"`
	OwnerGroup    string        `json:"owner_group"`

	// References resolved through the entity fetcher.
	BodyID      string    `json:"body_id"`
	Attachments []IDTuple `json:"attachments"`

	ReceivedDate int64 `json:"received_date"` // epoch-ms
}

// IDTuple returns the mail's full identity.
func (m *Mail) IDTuple() IDTuple {
	return IDTuple{ListID: m.ListID, ElementID: m.ID}
}

// MailBody is the opaque HTML/text blob of a mail.
type MailBody struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// File is an attachment record. Only the name is consumed by indexing.
type File struct {
	ListID ListID    `json:"list_id"`
	ID     ElementID `json:"id"`
	Name   string    `json:"name"`
}

// FolderType classifies a system mail folder.
type FolderType string

const (
	FolderTypeCustom  FolderType = "custom"
	FolderTypeInbox   FolderType = "inbox"
	FolderTypeSent    FolderType = "sent"
	FolderTypeTrash   FolderType = "trash"
	FolderTypeArchive FolderType = "archive"
	FolderTypeSpam    FolderType = "spam"
	FolderTypeDraft   FolderType = "draft"
)

// MailFolder groups a mail list under a mailbox.
type MailFolder struct {
	ID         string     `json:"id"`
	FolderType FolderType `json:"folder_type"`
	Name       string     `json:"name"`

	// Mails is the list ID containing this folder's mail.
	Mails ListID `json:"mails"`

	// SubFolders is the list ID holding this folder's child folders.
	SubFolders ListID `json:"sub_folders"`
}

// Mailbox is the aggregation root of one mail group's folders.
type Mailbox struct {
	ID string `json:"id"`

	// SystemFolders is the list ID holding the mailbox's top-level folders.
	SystemFolders ListID `json:"system_folders"`
}

// MailboxGroupRoot resolves a mail group to its mailbox.
type MailboxGroupRoot struct {
	GroupID   string `json:"group_id"`
	MailboxID string `json:"mailbox_id"`
}

// GroupMembership links a user to one mail group.
type GroupMembership struct {
	GroupID string `json:"group_id"`
}

// User carries the group memberships the indexer walks. Session and auth
// concerns live outside this service.
type User struct {
	ID          string            `json:"id"`
	Memberships []GroupMembership `json:"memberships"`
}

// MailGroupIDs returns the user's mail group IDs in membership order.
func (u *User) MailGroupIDs() []string {
	ids := make([]string, 0, len(u.Memberships))
	for _, m := range u.Memberships {
		ids = append(ids, m.GroupID)
	}
	return ids
}
