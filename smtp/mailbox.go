package smtp

// Mailbox is an RFC 5321 mailbox: a local part and a domain (or address
// literal). It is immutable once constructed. The null reverse-path
// ("MAIL FROM:<>") is represented by a nil *Mailbox, never by a Mailbox
// with empty fields.
type Mailbox struct {
	Local  string
	Domain string
}

// AsAddress renders the mailbox as local@domain.
func (m *Mailbox) AsAddress() string {
	if m == nil {
		return ""
	}
	return m.Local + "@" + m.Domain
}

func (m *Mailbox) String() string {
	return m.AsAddress()
}
