package smtp

import (
	"strconv"
	"strings"
)

// atextSymbols is the set of single-character Punctuation/Symbol tokens
// that are legal inside an Atom, in addition to any Text or Number
// token. Mirrors RFC 5322's atext, which RFC 5321 borrows for Mailbox
// local parts.
const atextSymbols = "!#%&'*-/?_{}$+=^`|~"

// esmtpValueExcluded is the one character RFC 5321 excludes from an
// esmtp-value that would otherwise fall in the printable 33-126 range:
// '=' is reserved as the keyword/value separator. The source this
// system was ported from appears to exclude a wider, off-by-one range;
// this implementation follows the RFC range deliberately (see
// DESIGN.md).
const esmtpValueExcluded = "="

// Parser implements the RFC 5321 ABNF productions this server needs,
// as a set of backtracking recognizers over a TokenEnumerator. Every
// TryMake method either consumes tokens and returns true, or leaves the
// enumerator exactly where it found it and returns false.
type Parser struct {
	e *TokenEnumerator
}

// NewParser builds a Parser over an already-tokenized line.
func NewParser(e *TokenEnumerator) *Parser {
	return &Parser{e: e}
}

// skipSpaces consumes zero or more Space tokens.
func (p *Parser) skipSpaces() {
	p.e.TakeWhile(func(t Token) bool { return t.Kind == KindSpace })
}

// takeSpaces requires at least one Space token and consumes the run.
func (p *Parser) takeSpaces() bool {
	if p.e.Peek().Kind != KindSpace {
		return false
	}
	p.e.Take()
	return true
}

func isSymbolText(t Token, ch byte) bool {
	return (t.Kind == KindSymbol || t.Kind == KindPunctuation) && t.Text == string(ch)
}

// TryMakeReversePath recognizes a Path, or the null reverse-path "<>"
// (with optional interior whitespace, which real clients sometimes
// send). The null form yields a nil *Mailbox.
func (p *Parser) TryMakeReversePath() (*Mailbox, bool) {
	cp := p.e.Mark()

	if isSymbolText(p.e.Peek(), '<') {
		inner := p.e.Mark()
		p.e.Take()
		p.skipSpaces()
		if isSymbolText(p.e.Peek(), '>') {
			p.e.Take()
			return nil, true
		}
		inner.Rollback()
	}

	if mbox, ok := p.TryMakePath(); ok {
		return mbox, true
	}

	cp.Rollback()
	return nil, false
}

// TryMakePath recognizes Path ::= "<"? (AtDomainList ":")? Mailbox ">"?
// A leading "<" obliges a matching closing ">"; the optional
// at-domain-list (source-route) is parsed and discarded per RFC 5321
// Appendix C.
func (p *Parser) TryMakePath() (*Mailbox, bool) {
	cp := p.e.Mark()

	requireClose := false
	if isSymbolText(p.e.Peek(), '<') {
		p.e.Take()
		requireClose = true
	}

	p.tryMakeAtDomainList()

	mbox, ok := p.TryMakeMailbox()
	if !ok {
		cp.Rollback()
		return nil, false
	}

	if requireClose {
		if !isSymbolText(p.e.Peek(), '>') {
			cp.Rollback()
			return nil, false
		}
		p.e.Take()
	} else if isSymbolText(p.e.Peek(), '>') {
		// Tolerate a stray closing bracket with no opener.
		p.e.Take()
	}

	return mbox, true
}

// tryMakeAtDomainList consumes an optional "@Domain(,@Domain)* :"
// source route. It always succeeds (the route is optional), discarding
// whatever it consumes.
func (p *Parser) tryMakeAtDomainList() {
	cp := p.e.Mark()

	if !isSymbolText(p.e.Peek(), '@') {
		return
	}

	for {
		inner := p.e.Mark()
		if !isSymbolText(p.e.Peek(), '@') {
			inner.Rollback()
			break
		}
		p.e.Take()
		if _, ok := p.tryMakeDomain(); !ok {
			inner.Rollback()
			cp.Rollback()
			return
		}

		if p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == "," {
			p.e.Take()
			continue
		}
		break
	}

	if p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == ":" {
		p.e.Take()
		return
	}

	cp.Rollback()
}

// TryMakeMailbox recognizes Mailbox ::= LocalPart "@" (Domain | AddressLiteral).
func (p *Parser) TryMakeMailbox() (*Mailbox, bool) {
	cp := p.e.Mark()

	local, ok := p.tryMakeLocalPart()
	if !ok {
		cp.Rollback()
		return nil, false
	}

	if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == "@") {
		cp.Rollback()
		return nil, false
	}
	p.e.Take()

	if domain, ok := p.tryMakeAddressLiteral(); ok {
		return &Mailbox{Local: local, Domain: domain}, true
	}

	domain, ok := p.tryMakeDomain()
	if !ok {
		cp.Rollback()
		return nil, false
	}

	return &Mailbox{Local: local, Domain: domain}, true
}

// tryMakeLocalPart recognizes LocalPart ::= DotString. Quoted-string
// local parts are intentionally not implemented (see DESIGN.md).
func (p *Parser) tryMakeLocalPart() (string, bool) {
	return p.tryMakeDotString()
}

// tryMakeDotString recognizes DotString ::= Atom ("." Atom)*.
func (p *Parser) tryMakeDotString() (string, bool) {
	cp := p.e.Mark()

	first, ok := p.tryMakeAtom()
	if !ok {
		cp.Rollback()
		return "", false
	}

	var b strings.Builder
	b.WriteString(first)

	for {
		inner := p.e.Mark()
		if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == ".") {
			break
		}
		p.e.Take()
		atom, ok := p.tryMakeAtom()
		if !ok {
			inner.Rollback()
			break
		}
		b.WriteByte('.')
		b.WriteString(atom)
	}

	return b.String(), true
}

func isAtext(t Token) bool {
	switch t.Kind {
	case KindText, KindNumber:
		return true
	case KindPunctuation, KindSymbol:
		return len(t.Text) == 1 && strings.IndexByte(atextSymbols, t.Text[0]) >= 0
	default:
		return false
	}
}

// tryMakeAtom recognizes Atom ::= Atext+.
func (p *Parser) tryMakeAtom() (string, bool) {
	toks := p.e.TakeWhile(isAtext)
	if len(toks) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Text)
	}
	return b.String(), true
}

// tryMakeDomain recognizes Domain ::= Subdomain ("." Subdomain)*.
func (p *Parser) tryMakeDomain() (string, bool) {
	cp := p.e.Mark()

	first, ok := p.tryMakeSubdomain()
	if !ok {
		cp.Rollback()
		return "", false
	}

	var b strings.Builder
	b.WriteString(first)

	for {
		inner := p.e.Mark()
		if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == ".") {
			break
		}
		p.e.Take()
		sub, ok := p.tryMakeSubdomain()
		if !ok {
			inner.Rollback()
			break
		}
		b.WriteByte('.')
		b.WriteString(sub)
	}

	return b.String(), true
}

// tryMakeSubdomain recognizes Subdomain ::= TextOrNumber (LdhString)?.
func (p *Parser) tryMakeSubdomain() (string, bool) {
	cp := p.e.Mark()

	first := p.e.Peek()
	if first.Kind != KindText && first.Kind != KindNumber {
		cp.Rollback()
		return "", false
	}
	p.e.Take()

	ldh, _ := p.tryMakeLdhString()
	return first.Text + ldh, true
}

// tryMakeLdhString recognizes LdhString ::= (ALPHA|DIGIT|"-")+, but must
// not end with "-". It may legitimately match nothing.
func (p *Parser) tryMakeLdhString() (string, bool) {
	cp := p.e.Mark()

	var b strings.Builder
	for {
		t := p.e.Peek()
		isHyphen := t.Kind == KindPunctuation && t.Text == "-"
		if t.Kind != KindText && t.Kind != KindNumber && !isHyphen {
			break
		}
		p.e.Take()
		b.WriteString(t.Text)
	}

	s := b.String()
	if s == "" {
		return "", false
	}
	if strings.HasSuffix(s, "-") {
		cp.Rollback()
		return "", false
	}
	return s, true
}

// tryMakeAddressLiteral recognizes AddressLiteral ::= "[" Space* IPv4 Space* "]".
func (p *Parser) tryMakeAddressLiteral() (string, bool) {
	cp := p.e.Mark()

	if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == "[") {
		cp.Rollback()
		return "", false
	}
	p.e.Take()
	p.skipSpaces()

	ip, ok := p.tryMakeIPv4()
	if !ok {
		cp.Rollback()
		return "", false
	}
	p.skipSpaces()

	if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == "]") {
		cp.Rollback()
		return "", false
	}
	p.e.Take()

	return ip, true
}

// tryMakeIPv4 recognizes four dot-separated Snum groups.
func (p *Parser) tryMakeIPv4() (string, bool) {
	cp := p.e.Mark()

	var parts [4]string
	for i := 0; i < 4; i++ {
		if i > 0 {
			if !(p.e.Peek().Kind == KindPunctuation && p.e.Peek().Text == ".") {
				cp.Rollback()
				return "", false
			}
			p.e.Take()
		}
		snum, ok := p.tryMakeSnum()
		if !ok {
			cp.Rollback()
			return "", false
		}
		parts[i] = snum
	}

	return strings.Join(parts[:], "."), true
}

// tryMakeSnum recognizes a decimal Number token in [0, 255].
func (p *Parser) tryMakeSnum() (string, bool) {
	t := p.e.Peek()
	if t.Kind != KindNumber {
		return "", false
	}
	n, err := strconv.Atoi(t.Text)
	if err != nil || n < 0 || n > 255 {
		return "", false
	}
	p.e.Take()
	return t.Text, true
}

// TryMakeMailParameters recognizes
// MailParameters ::= EsmtpParameter (Space+ EsmtpParameter)*, folding
// the result into a case-insensitive map keyed by upper-cased keyword.
func (p *Parser) TryMakeMailParameters() (map[string]string, bool) {
	cp := p.e.Mark()

	params := map[string]string{}

	key, val, ok := p.tryMakeEsmtpParameter()
	if !ok {
		cp.Rollback()
		return nil, false
	}
	params[strings.ToUpper(key)] = val

	for {
		inner := p.e.Mark()
		if !p.takeSpaces() {
			break
		}
		key, val, ok := p.tryMakeEsmtpParameter()
		if !ok {
			inner.Rollback()
			break
		}
		params[strings.ToUpper(key)] = val
	}

	return params, true
}

// tryMakeEsmtpParameter recognizes Keyword "=" Value.
func (p *Parser) tryMakeEsmtpParameter() (string, string, bool) {
	cp := p.e.Mark()

	key, ok := p.tryMakeEsmtpKeyword()
	if !ok {
		cp.Rollback()
		return "", "", false
	}

	if !isSymbolText(p.e.Peek(), '=') {
		cp.Rollback()
		return "", "", false
	}
	p.e.Take()

	val, ok := p.tryMakeEsmtpValue()
	if !ok {
		cp.Rollback()
		return "", "", false
	}

	return key, val, true
}

// tryMakeEsmtpKeyword recognizes (ALPHA|DIGIT) (ALPHA|DIGIT|"-")*.
func (p *Parser) tryMakeEsmtpKeyword() (string, bool) {
	cp := p.e.Mark()

	first := p.e.Peek()
	if first.Kind != KindText && first.Kind != KindNumber {
		cp.Rollback()
		return "", false
	}
	p.e.Take()

	var b strings.Builder
	b.WriteString(first.Text)

	for {
		t := p.e.Peek()
		isHyphen := t.Kind == KindPunctuation && t.Text == "-"
		if t.Kind != KindText && t.Kind != KindNumber && !isHyphen {
			break
		}
		p.e.Take()
		b.WriteString(t.Text)
	}

	return b.String(), true
}

// tryMakeEsmtpValue recognizes one or more printable tokens in the RFC
// 5321 range 33-126, excluding "=". Follows the RFC range rather than
// the apparent off-by-one in the system this was ported from.
func (p *Parser) tryMakeEsmtpValue() (string, bool) {
	var b strings.Builder
	for {
		t := p.e.Peek()
		if t.Kind == KindNone || t.Kind == KindSpace {
			break
		}
		if strings.ContainsAny(t.Text, esmtpValueExcluded) {
			break
		}
		if !isPrintableValueToken(t) {
			break
		}
		p.e.Take()
		b.WriteString(t.Text)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func isPrintableValueToken(t Token) bool {
	for i := 0; i < len(t.Text); i++ {
		c := t.Text[i]
		if c < 33 || c > 126 {
			return false
		}
	}
	return true
}

// TryMakeBase64 recognizes one or more Text/Number/"+"/"/" tokens whose
// combined length is a multiple of 4, as used by AUTH LOGIN challenge
// responses.
func (p *Parser) TryMakeBase64() (string, bool) {
	cp := p.e.Mark()

	toks := p.e.TakeWhile(func(t Token) bool {
		if t.Kind == KindText || t.Kind == KindNumber {
			return true
		}
		return isSymbolText(t, '+') || (t.Kind == KindPunctuation && t.Text == "/")
	})
	if len(toks) == 0 {
		cp.Rollback()
		return "", false
	}

	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Text)
	}

	// Trailing "=" padding is tokenized as Symbol and not part of the
	// character classes above, so absorb it here without widening the
	// base64 alphabet check.
	for isSymbolText(p.e.Peek(), '=') {
		b.WriteByte('=')
		p.e.Take()
	}

	s := b.String()
	if len(s)%4 != 0 {
		cp.Rollback()
		return "", false
	}

	return s, true
}
