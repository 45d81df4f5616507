// Package address turns raw address header fields into canonical address
// strings. A canonical address is the mapping key of the identity table, so
// every spelling of the same mailbox must collapse to one value here.
package address

import (
	"errors"
	"log/slog"
	"mime"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/unicode/norm"

	"mailanon/internal/platform/logger"
	strs "mailanon/pkg/platform/strings"
)

const (
	// UndisclosedRecipients is the canonical form of every locale spelling of
	// an empty recipient group.
	UndisclosedRecipients = "undisclosed-recipients"

	// InvalidAddress replaces known-malformed literal addresses.
	InvalidAddress = "invalid-address"
)

// DefaultSpecialSpellings are raw field values that collapse to
// UndisclosedRecipients. Keys are compared after lower-casing and trimming.
var DefaultSpecialSpellings = []string{
	"undisclosed-recipients:;",
	"undisclosed recipients:;",
	"verborgene_empfaenger: ;",
}

// DefaultDenylist holds literal addresses seen broken in real address books.
var DefaultDenylist = []string{
	`"xxx\""@xxx.de`,
}

// Normalizer splits and canonicalizes address fields. It holds no per-run
// state and may be shared.
type Normalizer struct {
	special  map[string]string
	denylist map[string]struct{}
	parser   *mail.AddressParser
	decoder  *mime.WordDecoder
	logger   *slog.Logger
}

type Option func(*Normalizer)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithSpecialAddresses maps additional raw spellings to canonical.
func WithSpecialAddresses(canonical string, spellings ...string) Option {
	return func(n *Normalizer) {
		for _, s := range spellings {
			n.special[fold(s)] = canonical
		}
	}
}

// WithDenylist adds literal addresses that normalize to InvalidAddress. A
// literal matches both as written and in the unquoted form the header
// grammar yields for it inside angle brackets.
func WithDenylist(literals ...string) Option {
	return func(n *Normalizer) {
		for _, l := range literals {
			n.denylist[fold(l)] = struct{}{}
			if a, err := n.parser.Parse(l); err == nil {
				n.denylist[fold(a.Address)] = struct{}{}
			}
		}
	}
}

// New returns a Normalizer with the default special spellings and denylist.
func New(opts ...Option) *Normalizer {
	decoder := &mime.WordDecoder{CharsetReader: charset.Reader}
	n := &Normalizer{
		special:  make(map[string]string),
		denylist: make(map[string]struct{}),
		parser:   &mail.AddressParser{WordDecoder: decoder},
		decoder:  decoder,
		logger:   logger.Discard(),
	}
	WithSpecialAddresses(UndisclosedRecipients, DefaultSpecialSpellings...)(n)
	WithDenylist(DefaultDenylist...)(n)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ErrInvalidUTF8 rejects entries whose bytes are not UTF-8. Lower-casing
// would replace every invalid byte with U+FFFD and merge distinct addresses.
var ErrInvalidUTF8 = errors.New("address is not valid UTF-8, check the input encoding")

// EntryError reports an address entry that was dropped from its field.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string {
	return "decode address entry " + e.Entry + ": " + e.Err.Error()
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Split returns the canonical addresses of a raw field in first-seen order
// without duplicates. Entries that fail to decode are logged and dropped.
func (n *Normalizer) Split(field string) []string {
	addrs, errs := n.SplitEntries(field)
	for _, e := range errs {
		n.logger.Warn("dropping undecodable address entry", "entry", e.Entry, "error", e.Err)
	}
	return addrs
}

// SplitEntries is Split that returns dropped entries instead of logging them.
func (n *Normalizer) SplitEntries(field string) ([]string, []*EntryError) {
	if canonical, ok := n.special[fold(field)]; ok {
		return []string{canonical}, nil
	}

	entries := splitEntries(field)
	set := strs.NewOrderedSet(len(entries))
	var errs []*EntryError
	for _, entry := range entries {
		addr, err := n.canonical(entry)
		if err != nil {
			errs = append(errs, &EntryError{Entry: strings.TrimSpace(entry), Err: err})
			continue
		}
		set.Add(addr)
	}
	return set.Values(), errs
}

// canonical normalizes a single entry of an address list. An empty result
// means the entry carried no address.
func (n *Normalizer) canonical(entry string) (string, error) {
	if !utf8.ValidString(entry) {
		return "", ErrInvalidUTF8
	}
	raw := fold(entry)
	if raw == "" {
		return "", nil
	}
	if canonical, ok := n.special[raw]; ok {
		return canonical, nil
	}
	if _, ok := n.denylist[raw]; ok {
		return InvalidAddress, nil
	}

	addr := n.addrSpec(entry)
	if strings.Contains(addr, "=?") {
		decoded, err := n.decoder.DecodeHeader(addr)
		if err != nil {
			return "", err
		}
		addr = decoded
		if !utf8.ValidString(addr) {
			return "", ErrInvalidUTF8
		}
	}
	return n.repair(norm.NFC.String(fold(addr))), nil
}

// addrSpec extracts the address part of an entry, falling back to lenient
// extraction when the header grammar rejects it.
func (n *Normalizer) addrSpec(entry string) string {
	if a, err := n.parser.Parse(entry); err == nil {
		return a.Address
	}
	s := strings.TrimSpace(entry)
	if i := strings.LastIndexByte(s, '<'); i >= 0 {
		rest := s[i+1:]
		if j := strings.IndexByte(rest, '>'); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	// "group: member@host;" carries one member after the colon.
	if i := strings.IndexByte(s, ':'); i > 0 && strings.Contains(s[i+1:], "@") {
		member := strings.TrimSuffix(strings.TrimSpace(s[i+1:]), ";")
		if a, err := n.parser.Parse(member); err == nil {
			return a.Address
		}
		return member
	}
	return s
}

// repair strips one layer of surrounding quotes and maps denylisted
// literals to InvalidAddress.
func (n *Normalizer) repair(addr string) string {
	if l := len(addr); l >= 2 {
		first, last := addr[0], addr[l-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return strings.TrimSpace(addr[1 : l-1])
		}
	}
	if _, ok := n.denylist[addr]; ok {
		return InvalidAddress
	}
	return addr
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
