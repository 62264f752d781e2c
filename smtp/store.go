package smtp

import (
	"bytes"
	"fmt"

	maildir "github.com/sloonz/go-maildir"
)

// MessageStore is the host-supplied sink DataCommand streams a
// message body into. One is created per DATA command and disposed
// when DATA completes or fails.
type MessageStore interface {
	BeginWrite() Response
	Write(line string) error
	EndWrite() Response
	Close() error
}

// MessageStoreFactory creates a MessageStore scoped to one DATA
// command, given the envelope it will receive.
type MessageStoreFactory interface {
	Create(ctx *SessionContext, tx *Transaction) (MessageStore, error)
}

// MaildirStore is the default MessageStore: it delivers the message
// into a maildir tree, the way the teacher persists its UserDB to a
// flat file in user/user_db.go generalized from a single JSON blob to
// a per-delivery maildir entry. go-maildir's only write primitive is
// CreateMail(io.Reader), which writes the whole message in one call,
// so the body is buffered across Write and handed over whole in
// EndWrite.
type MaildirStore struct {
	dir *maildir.Maildir
	buf bytes.Buffer
}

// NewMaildirStore opens (creating if necessary) the maildir rooted at
// path.
func NewMaildirStore(path string) (*MaildirStore, error) {
	dir, err := maildir.New(path, true)
	if err != nil {
		return nil, fmt.Errorf("smtp: could not initialize maildir %s: %w", path, err)
	}
	return &MaildirStore{dir: dir}, nil
}

// BeginWrite resets the in-memory buffer for a new message.
func (s *MaildirStore) BeginWrite() Response {
	s.buf.Reset()
	return ResponseOk
}

// Write appends one already-dot-unstuffed body line to the buffer.
func (s *MaildirStore) Write(line string) error {
	_, err := fmt.Fprintf(&s.buf, "%s\r\n", line)
	return err
}

// EndWrite hands the buffered message to CreateMail in one call;
// nothing is written to disk before this succeeds.
func (s *MaildirStore) EndWrite() Response {
	if _, err := s.dir.CreateMail(&s.buf); err != nil {
		return Response{Code: 554, Text: "could not commit message: " + err.Error()}
	}
	return ResponseOk
}

// Close releases no resources; CreateMail either already ran and
// committed the message, or never ran and nothing was written.
func (s *MaildirStore) Close() error { return nil }

// MaildirStoreFactory builds a MaildirStore rooted at Root for every
// DATA command.
type MaildirStoreFactory struct {
	Root string
}

// Create implements MessageStoreFactory.
func (f MaildirStoreFactory) Create(ctx *SessionContext, tx *Transaction) (MessageStore, error) {
	return NewMaildirStore(f.Root)
}
