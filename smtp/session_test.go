package smtp

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeTransport feeds a scripted sequence of input lines and records
// every reply written, so a full session can be driven and asserted on
// without a real socket.
type fakeTransport struct {
	in      []string
	out     []string
	closed  bool
	readErr error
}

func newFakeTransport(lines ...string) *fakeTransport {
	return &fakeTransport{in: lines}
}

func (f *fakeTransport) ReadLine() (string, error) {
	if len(f.in) == 0 {
		if f.readErr != nil {
			return "", f.readErr
		}
		return "", errors.New("fakeTransport: no more input")
	}
	line := f.in[0]
	f.in = f.in[1:]
	return line, nil
}

func (f *fakeTransport) WriteLine(line string) error {
	f.out = append(f.out, line)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// recordingStore is a MessageStore that just remembers what it was
// asked to write, for asserting on the body the DATA phase delivers.
type recordingStore struct {
	lines  []string
	begin  Response
	end    Response
	closed bool
}

func (s *recordingStore) BeginWrite() Response {
	if s.begin.Code == 0 {
		return ResponseOk
	}
	return s.begin
}

func (s *recordingStore) Write(line string) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *recordingStore) EndWrite() Response {
	if s.end.Code == 0 {
		return ResponseOk
	}
	return s.end
}

func (s *recordingStore) Close() error {
	s.closed = true
	return nil
}

type recordingStoreFactory struct {
	store *recordingStore
}

func (f *recordingStoreFactory) Create(ctx *SessionContext, tx *Transaction) (MessageStore, error) {
	return f.store, nil
}

func newTestSession(store *recordingStore, transport Transport) (*Session, *SessionContext) {
	options := &ServerOptions{
		ServerName:          "test.example.com",
		MessageStoreFactory: &recordingStoreFactory{store: store},
	}
	ctx := &SessionContext{
		ID:          "test",
		Transport:   transport,
		Transaction: &Transaction{},
		Options:     options,
		Logger:      options.logger().WithField("session", "test"),
	}
	return NewSession(ctx), ctx
}

func TestSmokeDelivery(t *testing.T) {
	Convey("A full HELO/MAIL/RCPT/DATA/QUIT conversation succeeds", t, func() {
		transport := newFakeTransport(
			"HELO client",
			"MAIL FROM:<a@x>",
			"RCPT TO:<b@y>",
			"DATA",
			"Hello",
			".",
			"QUIT",
		)
		store := &recordingStore{}
		session, ctx := newTestSession(store, transport)

		session.Run(make(chan struct{}))

		So(transport.out[0], ShouldEqual, "220 test.example.com ESMTP Service ready")
		So(transport.out[1], ShouldStartWith, "250 ")
		So(transport.out[2], ShouldEqual, "250 Ok")
		So(transport.out[3], ShouldEqual, "250 Ok")
		So(transport.out[4], ShouldEqual, "354 Start mail input; end with <CRLF>.<CRLF>")
		So(transport.out[5], ShouldEqual, "250 Ok")
		So(transport.out[6], ShouldEqual, "221 Service closing transmission channel")

		So(store.lines, ShouldResemble, []string{"Hello"})
		_ = ctx
	})
}

func TestNullReversePath(t *testing.T) {
	Convey("MAIL FROM:<> leaves the transaction's From nil", t, func() {
		transport := newFakeTransport(
			"EHLO c",
			"MAIL FROM:<>",
			"RCPT TO:<b@y>",
			"DATA",
			".",
			"QUIT",
		)
		store := &recordingStore{}
		session, ctx := newTestSession(store, transport)

		// Transaction.From must be observed before DATA resets it, so
		// intercept by running the loop manually up to that point
		// instead of calling Run end to end.
		ctx.Transaction.Reset()
		session.state = WaitingForHelo

		line, err := transport.ReadLine()
		So(err, ShouldEqual, nil)
		resp, _ := session.dispatch(NewCommandFactory().Build(line))
		So(resp.Code, ShouldEqual, 250)

		line, _ = transport.ReadLine()
		resp, _ = session.dispatch(NewCommandFactory().Build(line))
		So(resp.Code, ShouldEqual, 250)
		So(ctx.Transaction.From, ShouldBeNil)
	})
}

func TestDotStuffing(t *testing.T) {
	Convey("A leading double-dot line is delivered with one dot stripped", t, func() {
		transport := newFakeTransport(
			"HELO c",
			"MAIL FROM:<a@x>",
			"RCPT TO:<b@y>",
			"DATA",
			"..hello",
			".",
			"QUIT",
		)
		store := &recordingStore{}
		session, _ := newTestSession(store, transport)

		session.Run(make(chan struct{}))

		So(store.lines, ShouldResemble, []string{".hello"})
	})
}

func TestBlankLinePreservation(t *testing.T) {
	Convey("Intermediate blank lines are preserved, the trailing one is dropped", t, func() {
		transport := newFakeTransport(
			"HELO c",
			"MAIL FROM:<a@x>",
			"RCPT TO:<b@y>",
			"DATA",
			"first",
			"",
			"second",
			"",
			".",
			"QUIT",
		)
		store := &recordingStore{}
		session, _ := newTestSession(store, transport)

		session.Run(make(chan struct{}))

		So(store.lines, ShouldResemble, []string{"first", "", "second"})
	})
}

func TestBadSequence(t *testing.T) {
	Convey("DATA before HELO is a 503", t, func() {
		transport := newFakeTransport("DATA", "QUIT")
		store := &recordingStore{}
		session, _ := newTestSession(store, transport)

		session.Run(make(chan struct{}))

		So(transport.out[1], ShouldEqual, "503 Bad sequence of commands")
	})
}

func TestSizeLimitExceeded(t *testing.T) {
	Convey("A SIZE parameter over the configured max is rejected", t, func() {
		transport := newFakeTransport(
			"HELO c",
			"MAIL FROM:<a@x> SIZE=2000",
			"QUIT",
		)
		store := &recordingStore{}
		session, ctx := newTestSession(store, transport)
		ctx.Options.MaxMessageSize = 1000

		session.Run(make(chan struct{}))

		So(transport.out[2], ShouldEqual, "452 Requested action not taken: size limit exceeded")
		So(session.state, ShouldEqual, WaitingForMail)
	})
}

func TestNoValidRecipients(t *testing.T) {
	Convey("DATA with no RCPT is defended against even though the state machine already guards it", t, func() {
		s := &Session{
			ctx: &SessionContext{
				Transaction: &Transaction{},
				Options:     &ServerOptions{MessageStoreFactory: &recordingStoreFactory{store: &recordingStore{}}},
				Logger:      (&ServerOptions{}).logger().WithField("session", "t"),
			},
		}
		resp, fatal := s.executeData()
		So(fatal, ShouldEqual, false)
		So(resp.Code, ShouldEqual, 554)
	})
}
