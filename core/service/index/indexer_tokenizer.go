package index

import (
	"strings"

	"indexer_server/core/domain"
	"indexer_server/core/port/out"
)

// =============================================================================
// MailTokenizer - mail record -> attribute values for the index core
// =============================================================================

// MailTokenizer turns a (mail, body, attachments) triple into the token ->
// posting mapping. It only supplies the attribute tags and lazy value
// producers; splitting and position assignment belong to the index core.
type MailTokenizer struct {
	core out.IndexCore
}

func NewMailTokenizer(core out.IndexCore) *MailTokenizer {
	return &MailTokenizer{core: core}
}

// CreateMailEntries produces the postings for one mail. body and files may be
// nil/empty; their attributes then contribute nothing.
func (t *MailTokenizer) CreateMailEntries(mail *domain.Mail, body *domain.MailBody, files []*domain.File) map[string][]domain.SearchIndexEntry {
	attrs := []out.AttributeValue{
		{Attribute: domain.AttrSubject, Value: func() string { return mail.Subject }},
		{Attribute: domain.AttrToRecipients, Value: func() string { return joinAddresses(mail.ToRecipients) }},
		{Attribute: domain.AttrCcRecipients, Value: func() string { return joinAddresses(mail.CcRecipients) }},
		{Attribute: domain.AttrBccRecipients, Value: func() string { return joinAddresses(mail.BccRecipients) }},
		{Attribute: domain.AttrSender, Value: func() string { return mail.Sender.String() }},
		{Attribute: domain.AttrBody, Value: func() string {
			if body == nil {
				return ""
			}
			return htmlToText(body.Text)
		}},
		{Attribute: domain.AttrAttachments, Value: func() string { return joinFileNames(files) }},
	}

	return t.core.CreateIndexEntries(mail, attrs)
}

// joinAddresses renders a recipient list the way it is indexed:
// "name <address>" entries, comma-separated.
func joinAddresses(addrs []domain.MailAddress) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if s := a.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

func joinFileNames(files []*domain.File) string {
	if len(files) == 0 {
		return ""
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if f != nil && f.Name != "" {
			names = append(names, f.Name)
		}
	}
	return strings.Join(names, " ")
}
