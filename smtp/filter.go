package smtp

import (
	"net"

	"github.com/gopistolet/gospf"
)

// FilterResult is the outcome a MailboxFilter returns for a sender or
// recipient check.
type FilterResult int

const (
	Yes FilterResult = iota
	NoTemporarily
	NoPermanently
	FilterSizeLimitExceeded
)

func (r FilterResult) String() string {
	switch r {
	case Yes:
		return "Yes"
	case NoTemporarily:
		return "NoTemporarily"
	case NoPermanently:
		return "NoPermanently"
	case FilterSizeLimitExceeded:
		return "SizeLimitExceeded"
	default:
		return "?"
	}
}

// MailboxFilter decides whether a sender may start a transaction and
// whether a recipient may receive it. One instance is created per
// session and released when the session ends.
type MailboxFilter interface {
	CanAcceptFrom(ctx *SessionContext, from *Mailbox, size int) (FilterResult, error)
	CanDeliverTo(ctx *SessionContext, to *Mailbox, from *Mailbox) (FilterResult, error)
	Close() error
}

// MailboxFilterFactory creates a MailboxFilter scoped to one session.
type MailboxFilterFactory interface {
	Create(ctx *SessionContext) (MailboxFilter, error)
}

// RecipientLookup is the subset of recipient.DB the default filter
// needs, kept as an interface so the smtp package does not import the
// recipient package directly (it would be a cycle: recipient imports
// smtp for the Mailbox type).
type RecipientLookup interface {
	Exists(address string) bool
}

// SPFFilter is the default MailboxFilter: senders are checked against
// SPF, recipients against a local directory. Grounded in the teacher's
// own hand-rolled IP/domain reasoning in MailAddress.ValidateDomainAddress
// and MailAddress.HasReverseDns (smtp/mailaddress.go); gospf — a direct
// dependency of the teacher's go.mod that the retrieved source never
// actually called — replaces that hand-rolled check with the real
// algorithm.
type SPFFilter struct {
	Recipients RecipientLookup
}

// NewSPFFilter builds an SPFFilter backed by recipients.
func NewSPFFilter(recipients RecipientLookup) *SPFFilter {
	return &SPFFilter{Recipients: recipients}
}

// CanAcceptFrom runs an SPF check for from.Domain against the
// connecting IP address.
func (f *SPFFilter) CanAcceptFrom(ctx *SessionContext, from *Mailbox, size int) (FilterResult, error) {
	if ctx.Options.MaxMessageSize > 0 && size > ctx.Options.MaxMessageSize {
		return FilterSizeLimitExceeded, nil
	}

	if from == nil {
		// Null reverse-path: bounce notifications are always accepted,
		// SPF has nothing to check against.
		return Yes, nil
	}

	ip, _, err := net.SplitHostPort(ctx.RemoteAddr)
	if err != nil {
		ip = ctx.RemoteAddr
	}
	remoteIP := net.ParseIP(ip)

	result, _, err := gospf.CheckHost(remoteIP, from.Domain, from.AsAddress())
	if err != nil {
		ctx.Logger.WithError(err).Warn("spf check failed")
		return NoTemporarily, nil
	}

	switch result {
	case gospf.Pass, gospf.Neutral, gospf.None:
		return Yes, nil
	case gospf.SoftFail, gospf.TempError:
		return NoTemporarily, nil
	case gospf.Fail, gospf.PermError:
		return NoPermanently, nil
	default:
		return NoTemporarily, nil
	}
}

// CanDeliverTo accepts a recipient only if it is a known local mailbox.
func (f *SPFFilter) CanDeliverTo(ctx *SessionContext, to *Mailbox, from *Mailbox) (FilterResult, error) {
	if f.Recipients == nil || f.Recipients.Exists(to.AsAddress()) {
		return Yes, nil
	}
	return NoPermanently, nil
}

// Close releases no resources; it exists to satisfy MailboxFilter.
func (f *SPFFilter) Close() error { return nil }

// SPFFilterFactory builds an SPFFilter per session, sharing one
// recipient directory across all sessions.
type SPFFilterFactory struct {
	Recipients RecipientLookup
}

// Create implements MailboxFilterFactory.
func (f SPFFilterFactory) Create(ctx *SessionContext) (MailboxFilter, error) {
	return NewSPFFilter(f.Recipients), nil
}
