package smtp

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var sessionCounter int64

// SessionContext carries everything that lives for the duration of one
// TCP connection: the envelope being assembled, the transport, the
// remote address, the server's options, and the per-session
// MailboxFilter. Per spec.md §3.
type SessionContext struct {
	ID          string
	Transport   Transport
	RemoteAddr  string
	Options     *ServerOptions
	Transaction *Transaction
	Filter      MailboxFilter
	Logger      *logrus.Entry
}

func newSessionContext(conn net.Conn, options *ServerOptions) *SessionContext {
	id := fmt.Sprintf("sess-%d", atomic.AddInt64(&sessionCounter, 1))
	remote := conn.RemoteAddr().String()

	return &SessionContext{
		ID:          id,
		Transport:   NewTransport(conn),
		RemoteAddr:  remote,
		Options:     options,
		Transaction: &Transaction{},
		Logger:      options.logger().WithFields(logrus.Fields{"session": id, "remote": remote}),
	}
}

// Session is the per-connection driver: read, parse, dispatch via the
// state machine, write reply, loop until QUIT, close, or transport
// failure. Per spec.md §4.5.
type Session struct {
	ctx     *SessionContext
	state   State
	machine StateMachine
	factory CommandFactory
}

// NewSession builds a Session for ctx, starting in WaitingForHelo.
func NewSession(ctx *SessionContext) *Session {
	return &Session{
		ctx:     ctx,
		state:   WaitingForHelo,
		machine: NewStateMachine(),
		factory: NewCommandFactory(),
	}
}

// Run drives the session to completion: greeting, command loop, QUIT
// or failure. It never surfaces protocol errors to the caller — every
// parse or execution error becomes an SMTP reply. The one panic path is
// the InvariantViolation raised by executeMail/executeRcpt when the
// MailboxFilter returns an unrecognized FilterResult.
func (s *Session) Run(cancel <-chan struct{}) {
	ctx := s.ctx
	ctx.Transaction.Reset()

	if ctx.Options.MailboxFilterFactory != nil {
		filter, err := ctx.Options.MailboxFilterFactory.Create(ctx)
		if err != nil {
			ctx.Logger.WithError(err).Error("could not create mailbox filter")
			return
		}
		ctx.Filter = filter
		defer filter.Close()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-cancel:
			ctx.Transport.Close()
		case <-stop:
		}
	}()

	greeting := Response{Code: 220, Text: fmt.Sprintf("%s ESMTP Service ready", ctx.Options.ServerName)}
	if err := ctx.Transport.WriteLine(greeting.String()); err != nil {
		return
	}

	for {
		line, err := ctx.Transport.ReadLine()
		if err != nil {
			ctx.Logger.WithError(err).Debug("session ended: transport read failed")
			return
		}

		cmd := s.factory.Build(line)
		resp, terminate := s.dispatch(cmd)

		if err := resp.WriteTo(ctx.Transport); err != nil {
			ctx.Logger.WithError(err).Debug("session ended: transport write failed")
			return
		}

		if terminate {
			return
		}
	}
}

// dispatch asks the state machine whether cmd is allowed in the
// current state; if not, it replies 503 without invoking the command.
// Otherwise it executes the command and advances state. InvalidCommand
// bypasses the state machine entirely — a syntax error or unknown verb
// is always reportable, whatever the session is doing.
func (s *Session) dispatch(cmd Command) (Response, bool) {
	if inv, ok := cmd.(InvalidCommand); ok {
		s.ctx.Logger.Debug("rejected command: ", inv.Response)
		return inv.Response, false
	}

	next, allowed := s.machine.Next(s.state, cmd.Verb())
	if !allowed {
		s.ctx.Logger.WithField("state", s.state).Warn("command not allowed in current state: ", cmd.Verb())
		return ResponseBadSequence, false
	}

	switch c := cmd.(type) {
	case HeloCommand:
		s.state = next
		return s.executeHelo(c), false

	case EhloCommand:
		s.state = next
		return s.executeEhlo(c), false

	case MailCommand:
		resp := s.executeMail(c)
		if resp.IsOk() {
			s.state = next
		}
		return resp, false

	case RcptCommand:
		resp := s.executeRcpt(c)
		if resp.IsOk() {
			s.state = next
		}
		return resp, false

	case DataCommand:
		resp, fatal := s.executeData()
		s.state = next
		return resp, fatal

	case RsetCommand:
		s.ctx.Transaction.Reset()
		s.state = next
		return ResponseOk, false

	case NoopCommand:
		s.state = next
		return ResponseOk, false

	case QuitCommand:
		s.state = next
		return ResponseClosing, true

	default:
		return ResponseBadSequence, false
	}
}

func (s *Session) executeHelo(c HeloCommand) Response {
	return Response{Code: 250, Text: fmt.Sprintf("%s greets %s", s.ctx.Options.ServerName, c.Domain)}
}

func (s *Session) executeEhlo(c EhloCommand) Response {
	lines := append([]string{fmt.Sprintf("%s greets %s", s.ctx.Options.ServerName, c.Domain)}, s.ctx.Options.extensions()...)
	return MultiLine(250, lines...)
}
