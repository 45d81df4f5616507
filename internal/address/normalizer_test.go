package address

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Normalizer Test Suite
// =============================================================================
// The normalizer decides mapping keys: two raw spellings that should be the
// same mailbox but normalize differently would silently split one person into
// two identifiers, so every repair rule is pinned here.

type NormalizerSuite struct {
	suite.Suite
	n *Normalizer
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) SetupTest() {
	s.n = New()
}

// =============================================================================
// Splitting
// =============================================================================

func (s *NormalizerSuite) TestSplit() {
	tests := []struct {
		name  string
		field string
		want  []string
	}{
		{"bare address", "source@test.de", []string{"source@test.de"}},
		{"display name", "Target <target@test.de>", []string{"target@test.de"}},
		{"quoted display name with comma", `"Target, Bot" <target@test.de>`, []string{"target@test.de"}},
		{"multiple entries keep order", "Multiple Target 1 <test@test.de>, Target 2 <test2@test.de>", []string{"test@test.de", "test2@test.de"}},
		{"upper case and padding", "  Alice <ALICE@Example.COM>  ", []string{"alice@example.com"}},
		{"duplicates collapse", "a@x.com, A <a@x.com>, b@x.com", []string{"a@x.com", "b@x.com"}},
		{"encoded display name", "=?UTF-8?Q?Marcel_H=C3=BCkker?= <user@web.de>", []string{"user@web.de"}},
		{"encoded address portion", "=?utf-8?q?bob?=@x.com", []string{"bob@x.com"}},
		{"comment is ignored", "bob@x.com (Bob Builder, Esq.)", []string{"bob@x.com"}},
		{"empty field", "", []string{}},
		{"blank entries dropped", " , a@x.com, ,", []string{"a@x.com"}},
		{"unterminated angle bracket", "Bob <bob@gmail.come, Charlie <charlie@charles.com>", []string{"bob@gmail.come", "charlie@charles.com"}},
		{"directory identifier passes through", "/O=ORG/OU=Exchange/CN=Recipients/CN=Bob", []string{"/o=org/ou=exchange/cn=recipients/cn=bob"}},
		{"group with one member", "Team: lead@x.com;", []string{"lead@x.com"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.n.Split(tt.field))
		})
	}
}

// =============================================================================
// Special addresses
// =============================================================================

func (s *NormalizerSuite) TestSpecialAddressesCollapse() {
	for _, raw := range []string{
		"undisclosed-recipients:;",
		"undisclosed recipients:;",
		"verborgene_empfaenger: ;",
		"  UNDISCLOSED-RECIPIENTS:;  ",
	} {
		s.Run(raw, func() {
			s.Equal([]string{UndisclosedRecipients}, s.n.Split(raw))
		})
	}

	s.Run("ordinary values are not special", func() {
		s.Equal([]string{"normal@address.de"}, s.n.Split("normal@address.de"))
	})

	s.Run("special entry inside a list", func() {
		s.Equal([]string{"a@x.com", UndisclosedRecipients}, s.n.Split("a@x.com, undisclosed-recipients:;"))
	})

	s.Run("configured spellings", func() {
		n := New(WithSpecialAddresses(UndisclosedRecipients, "Destinataires inconnus:;"))
		s.Equal([]string{UndisclosedRecipients}, n.Split("destinataires inconnus:;"))
	})
}

// =============================================================================
// Repair rules
// =============================================================================

func (s *NormalizerSuite) TestRepair() {
	s.Run("single quotes are stripped", func() {
		s.Equal([]string{"quoted@example.com"}, s.n.Split("'quoted@example.com'"))
	})

	s.Run("double quotes are stripped", func() {
		s.Equal([]string{"quoted@example.com"}, s.n.Split(`"quoted@example.com"`))
	})

	s.Run("denylisted literal becomes invalid-address", func() {
		s.Equal([]string{InvalidAddress}, s.n.Split(`"xxx\""@xxx.de`))
	})

	s.Run("denylisted literal behind a display name", func() {
		s.Equal([]string{InvalidAddress, "a@x.com"}, s.n.Split(`Bad <"xxx\""@xxx.de>, a@x.com`))
	})

	s.Run("configured denylist", func() {
		n := New(WithDenylist("Nobody@Localhost"))
		s.Equal([]string{InvalidAddress, "a@x.com"}, n.Split("nobody@localhost, a@x.com"))
	})

	s.Run("lone quote is kept", func() {
		s.Equal("'", s.n.repair("'"))
	})
}

// =============================================================================
// Decode failures
// =============================================================================

func (s *NormalizerSuite) TestUndecodableEntryIsDroppedNotFatal() {
	var buf bytes.Buffer
	n := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	field := "a@x.com, =?x-no-such-charset?q?bob?=@x.com, c@x.com"

	addrs, errs := n.SplitEntries(field)
	s.Equal([]string{"a@x.com", "c@x.com"}, addrs)
	s.Require().Len(errs, 1)
	s.Contains(errs[0].Entry, "x-no-such-charset")

	s.Equal([]string{"a@x.com", "c@x.com"}, n.Split(field))
	s.Contains(buf.String(), "dropping undecodable address entry")
}

func (s *NormalizerSuite) TestInvalidUTF8EntriesAreDroppedNotMerged() {
	addrs, errs := s.n.SplitEntries("m\xfcller@x.de, m\xf6ller@x.de, ok@x.de")
	s.Equal([]string{"ok@x.de"}, addrs)
	s.Require().Len(errs, 2)
	for _, e := range errs {
		s.ErrorIs(e, ErrInvalidUTF8)
	}

	s.Run("valid non-ASCII is kept", func() {
		s.Equal([]string{"müller@x.de"}, s.n.Split("Müller@x.de"))
	})
}

// =============================================================================
// Idempotence
// =============================================================================

func (s *NormalizerSuite) TestSplitIsIdempotentOnCanonicalForms() {
	fields := []string{
		"Alice <ALICE@x.com>, bob@x.com, 'carol@x.com'",
		"undisclosed recipients:;",
		`"xxx\""@xxx.de, dave@x.com`,
		"/o=org/cn=recipients/cn=erin",
	}
	for _, field := range fields {
		s.Run(field, func() {
			first := s.n.Split(field)
			again := s.n.Split(strings.Join(first, ", "))
			s.Equal(first, again)
		})
	}
}
