// Package recipient is the directory of locally-deliverable mailboxes
// consulted by the default MailboxFilter's CanDeliverTo. It is adapted
// from the teacher's user.User/user.UserDB (name, email, password,
// JSON file persistence): the same load/save/add/exists shape, minus
// credentials, since this spec's Non-goals exclude AUTH execution.
package recipient

import "github.com/mwirth/smtpserver/smtp"

// Recipient is one locally-known mailbox this server will accept mail
// for.
type Recipient struct {
	Name    string
	Address smtp.Mailbox
}
