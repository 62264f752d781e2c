package smtp

// executeData implements spec.md §4.8, the DATA-phase streaming
// protocol: dot-stuffing transparency, the <CRLF>.<CRLF> terminator,
// and blank-line handling (an empty body line is held back and only
// flushed immediately before the next non-empty line, so a run of
// consecutive empty lines is written as a single empty line; blank
// lines immediately preceding the terminator are never flushed,
// matching the observed behavior spec.md §9 calls out).
//
// The returned bool is true only when a transport fault makes the
// session unrecoverable; the caller still writes the returned
// Response (554) if it can, then ends the session.
func (s *Session) executeData() (Response, bool) {
	ctx := s.ctx
	tx := ctx.Transaction

	if len(tx.To) == 0 {
		return ResponseNoValidRecipients, false
	}

	if ctx.Options.MessageStoreFactory == nil {
		tx.Reset()
		return ResponseTransactionFailed, false
	}

	if err := ctx.Transport.WriteLine(ResponseStartMailInput.String()); err != nil {
		return ResponseTransactionFailed, true
	}

	store, err := ctx.Options.MessageStoreFactory.Create(ctx, tx)
	if err != nil {
		ctx.Logger.WithError(err).Error("could not create message store")
		tx.Reset()
		return ResponseTransactionFailed, false
	}
	defer store.Close()

	begin := store.BeginWrite()
	if !begin.IsOk() {
		tx.Reset()
		return begin, false
	}

	final, fatal := s.streamBody(store)
	tx.Reset()
	return final, fatal
}

// streamBody runs the body-read loop against an already-opened sink.
func (s *Session) streamBody(store MessageStore) (Response, bool) {
	ctx := s.ctx
	pendingBlank := false

	for {
		line, err := ctx.Transport.ReadLine()
		if err != nil {
			ctx.Logger.WithError(err).Warn("transport failed during DATA")
			return ResponseTransactionFailed, true
		}

		if line == "." {
			break
		}

		if len(line) > 1 && line[0] == '.' {
			line = line[1:]
		}

		if line == "" {
			pendingBlank = true
			continue
		}

		if pendingBlank {
			if err := store.Write(""); err != nil {
				ctx.Logger.WithError(err).Error("message store failed during DATA")
				return ResponseTransactionFailed, false
			}
			pendingBlank = false
		}

		if err := store.Write(line); err != nil {
			ctx.Logger.WithError(err).Error("message store failed during DATA")
			return ResponseTransactionFailed, false
		}
	}

	return store.EndWrite(), false
}
