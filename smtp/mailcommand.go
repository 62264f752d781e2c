package smtp

import "strconv"

// executeMail implements spec.md §4.6: reset the envelope, enforce the
// SIZE parameter against the configured maximum, then consult the
// session's MailboxFilter.
func (s *Session) executeMail(c MailCommand) Response {
	ctx := s.ctx
	ctx.Transaction.Reset()

	size := 0
	if raw, ok := c.Params["SIZE"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			size = n
		}
	}

	if ctx.Options.MaxMessageSize > 0 && size > ctx.Options.MaxMessageSize {
		return ResponseSizeLimitExceeded
	}

	if ctx.Filter == nil {
		ctx.Transaction.From = c.From
		return ResponseOk
	}

	result, err := ctx.Filter.CanAcceptFrom(ctx, c.From, size)
	if err != nil {
		ctx.Logger.WithError(err).Warn("mailbox filter failed on CanAcceptFrom")
		return ResponseMailboxUnavail
	}

	switch result {
	case Yes:
		ctx.Transaction.From = c.From
		return ResponseOk
	case NoTemporarily:
		return ResponseMailboxUnavail
	case NoPermanently:
		return ResponseMailboxNotAllowed
	case FilterSizeLimitExceeded:
		return ResponseSizeLimitExceeded
	default:
		panic("smtp: InvariantViolation: mailbox filter returned an unrecognized FilterResult")
	}
}

// executeRcpt implements spec.md §4.7, symmetric to executeMail.
func (s *Session) executeRcpt(c RcptCommand) Response {
	ctx := s.ctx

	if ctx.Filter == nil {
		ctx.Transaction.To = append(ctx.Transaction.To, *c.To)
		return ResponseOk
	}

	result, err := ctx.Filter.CanDeliverTo(ctx, c.To, ctx.Transaction.From)
	if err != nil {
		ctx.Logger.WithError(err).Warn("mailbox filter failed on CanDeliverTo")
		return ResponseMailboxUnavail
	}

	switch result {
	case Yes:
		ctx.Transaction.To = append(ctx.Transaction.To, *c.To)
		return ResponseOk
	case NoTemporarily:
		return ResponseMailboxUnavail
	case NoPermanently:
		return ResponseMailboxNotAllowed
	case FilterSizeLimitExceeded:
		return ResponseSizeLimitExceeded
	default:
		panic("smtp: InvariantViolation: mailbox filter returned an unrecognized FilterResult")
	}
}
