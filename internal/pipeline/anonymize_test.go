package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"mailanon/internal/identity"
	"mailanon/internal/platform/config"
	"mailanon/internal/platform/metrics"
	"mailanon/internal/records"
	dErrors "mailanon/pkg/domain-errors"
)

// mailboxExport is a real-world shaped export: display names with commas,
// doubled quotes, encoded words, a trailing delimiter and leading blanks.
const mailboxExport = ` "Comunio.de Aktivitaetserinnerung","mailbot@comunio.de","user@web.de",31.12.2014 04:57, 
"Test Good news, Here YouCan Get ExclusiveTablet  :-)","Darrell <du@prosegarden.net>","user@web.de",04.01.2015 23:07, 
"Re: Ihre Angebotsanfrage","""Finn Schmitz"" <fsiwd@calgaryartistssociety.com>","angela.aust@web.de",06.01.2015 00:40, 
"Ihr Traumpartner wartet auf Sie - PARSHIP 20 günstiger! +++ WEB.DE Gutscheinportal mit Geschenk!","""WEB.DE Vorteilswelt"" <neu@web.de>","user@web.de",06.01.2015 06:53, 
"Test OrderMeds ;-)","Mitchell <eftaldd@amega.com>","""user@web.de"" <user@web.de>",06.01.2015 19:28, 
"Attention Test To a dilemma which appeared inane","Support Service <dtamiezu@flipag.net>","""user@web.de"" <user@web.de>",07.01.2015 09:06, 
"LinkedInReminder has sent you a personal message","LinkedInReminder <gluecken1978@dhascpa.com>","""user@web.de"" <user@web.de>",07.01.2015 10:09, 
"Ihre Buchung wurde storniert! KFI28384773-2014","""Luisa Ludwig"" <rlksdu@haukelihytter.no>","k.g.hahn@web.de",07.01.2015 16:28, 
"Buchung vom 17.10.14 best�tigt","""Mara Walter"" <jwxixj@mbacrystalball.com>","robert.rau@web.de",08.01.2015 13:16, 
"Kostenlos im Internet und unterwegs fernsehen mit Zattoo HiQ","""WEB.DE informiert"" <neu@web.de>","user@web.de",08.01.2015 17:51, 
"blablabla","""Mann, User"" <user@web.de>","User1 <user1@web.de>, User2 <user2@web.de>, ""Bot, User"" <user3@web.de>",01.01.2005 12:22, 
"blablabla","""Mann, User"" <user@web.de>","=?UTF-8?Q?Marcel_H=C3=BCkker?= <user@web.de>",01.01.2005 12:22, 
`

const mailboxAnonymized = `1,1,2,31.12.2014 04:57
2,3,2,04.01.2015 23:07
3,4,5,06.01.2015 00:40
4,6,2,06.01.2015 06:53
5,7,2,06.01.2015 19:28
6,8,2,07.01.2015 09:06
7,9,2,07.01.2015 10:09
8,10,11,07.01.2015 16:28
9,12,13,08.01.2015 13:16
10,6,2,08.01.2015 17:51
11,2,14,01.01.2005 12:22
11,2,15,01.01.2005 12:22
11,2,16,01.01.2005 12:22
12,2,2,01.01.2005 12:22
`

const mailboxMapping = `mailbot@comunio.de,1
user@web.de,2
du@prosegarden.net,3
fsiwd@calgaryartistssociety.com,4
angela.aust@web.de,5
neu@web.de,6
eftaldd@amega.com,7
dtamiezu@flipag.net,8
gluecken1978@dhascpa.com,9
rlksdu@haukelihytter.no,10
k.g.hahn@web.de,11
jwxixj@mbacrystalball.com,12
robert.rau@web.de,13
user1@web.de,14
user2@web.de,15
user3@web.de,16
`

type AnonymizeSuite struct {
	suite.Suite
	dir    string
	outDir string
	cfg    config.Anonymize
}

func TestAnonymizeSuite(t *testing.T) {
	suite.Run(t, new(AnonymizeSuite))
}

func (s *AnonymizeSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.outDir = filepath.Join(s.dir, "anon")
	s.cfg = config.Defaults().Anonymize
	s.cfg.OutputDir = s.outDir
}

func (s *AnonymizeSuite) input(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (s *AnonymizeSuite) read(name string) string {
	data, err := os.ReadFile(filepath.Join(s.outDir, name))
	s.Require().NoError(err)
	return string(data)
}

func (s *AnonymizeSuite) pipeline(opts ...Option) *Pipeline {
	p, err := New(s.cfg, opts...)
	s.Require().NoError(err)
	return p
}

func (s *AnonymizeSuite) TestTwoRecordScenario() {
	path := s.input("mails.csv", "S1,a@x.com,\"b@x.com, c@x.com\",T1\nS2,a@x.com,,T2\n")

	sum, err := s.pipeline().Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)

	s.Equal("a@x.com,1\nb@x.com,2\nc@x.com,3\n", s.read("mapping.csv"))
	s.Equal("1,1,2,T1\n1,1,3,T1\n2,1,,T2\n", s.read("mails.anon.csv"))
	s.Equal(3, sum.Addresses)
	s.Equal(3, sum.OutputRows)
	s.Equal(2, sum.RowsRead)
	s.Zero(sum.Skipped())
}

func (s *AnonymizeSuite) TestMailboxExport() {
	path := s.input("transform_test.csv", mailboxExport)
	m := metrics.New()

	sum, err := s.pipeline(WithMetrics(m)).Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)

	s.Equal(mailboxMapping, s.read("mapping.csv"))
	s.Equal(mailboxAnonymized, s.read("transform_test.anon.csv"))
	s.Equal(16, sum.Addresses)
	s.Equal(14, sum.OutputRows)
	s.Equal(16.0, testutil.ToFloat64(m.Addresses))
	s.Equal(14.0, testutil.ToFloat64(m.OutputRows))
}

func (s *AnonymizeSuite) TestFilesAreMappedInPathOrder() {
	b := s.input("b.csv", "S,late@x.com,shared@x.com,T\n")
	a := s.input("a.csv", "S,early@x.com,shared@x.com,T\n")

	_, err := s.pipeline().Anonymize(context.Background(), []string{b, a})
	s.Require().NoError(err)

	s.Equal("early@x.com,1\nshared@x.com,2\nlate@x.com,3\n", s.read("mapping.csv"))
	s.Equal("1,1,2,T\n", s.read("a.anon.csv"))
	s.Equal("1,3,2,T\n", s.read("b.anon.csv"), "sequence ids restart per file")
}

func (s *AnonymizeSuite) TestSameInputSameOutput() {
	path := s.input("mails.csv", mailboxExport)

	_, err := s.pipeline().Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)
	first := s.read("mapping.csv")

	_, err = s.pipeline().Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)
	s.Equal(first, s.read("mapping.csv"))
}

func (s *AnonymizeSuite) TestMalformedRowsAreSkippedAndCounted() {
	path := s.input("mails.csv", "S1,a@x.com,b@x.com,T1\n"+
		"broken,row\n"+
		"S3,,b@x.com,T3\n"+
		"S4,c@x.com,,T4\n")
	m := metrics.New()

	sum, err := s.pipeline(WithMetrics(m)).Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)

	s.Equal(4, sum.RowsRead)
	s.Equal(1, sum.RowsSkipped[records.ReasonColumnCount])
	s.Equal(1, sum.RowsSkipped[records.ReasonNoSender])
	s.Equal("1,1,2,T1\n2,3,,T4\n", s.read("mails.anon.csv"))
	s.Equal(1.0, testutil.ToFloat64(m.RowsSkipped.WithLabelValues(StageAnonymize, "column_count")))
}

func (s *AnonymizeSuite) TestAddressTooLongIsFatal() {
	s.cfg.MaxAddressLength = 20
	path := s.input("mails.csv", "S,a@x.com,"+strings.Repeat("b", 21)+"@x.com,T\n")
	s.Require().NoError(os.MkdirAll(s.outDir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(s.outDir, "mapping.csv"), []byte("previous\n"), 0o644))

	_, err := s.pipeline().Anonymize(context.Background(), []string{path})
	s.Require().Error(err)
	s.ErrorIs(err, identity.ErrAddressTooLong)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("previous\n", s.read("mapping.csv"), "previous output is untouched")
}

func (s *AnonymizeSuite) TestUndecodableEntriesAreCounted() {
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	path := s.input("mails.csv", "S,a@x.com,\"=?x-unknown?q?b?=@x.com, c@x.com\",T\n")

	sum, err := s.pipeline(WithLogger(log)).Anonymize(context.Background(), []string{path})
	s.Require().NoError(err)
	s.Equal(1, sum.EntryErrors)
	s.Equal("a@x.com,1\nc@x.com,2\n", s.read("mapping.csv"))
	s.Equal(1, strings.Count(logs.String(), "dropping undecodable address entry"), "logged once, not again on emit")
}

func (s *AnonymizeSuite) TestNonUTF8AddressesNeverShareAnID() {
	latin1 := "S,m\xfcller@x.de,\"m\xf6ller@x.de, ok@x.de\",T\n"

	s.Run("without input encoding the entries are dropped", func() {
		path := s.input("latin1.csv", latin1)
		sum, err := s.pipeline().Anonymize(context.Background(), []string{path})
		s.Require().NoError(err)
		s.Equal(2, sum.EntryErrors)
		s.Equal(1, sum.RowsSkipped[records.ReasonNoSender])
		s.Equal("ok@x.de,1\n", s.read("mapping.csv"))
	})

	s.Run("with input encoding each address keeps its own id", func() {
		s.cfg.InputEncoding = "ISO-8859-1"
		defer func() { s.cfg.InputEncoding = "" }()
		path := s.input("latin1.csv", latin1)
		sum, err := s.pipeline().Anonymize(context.Background(), []string{path})
		s.Require().NoError(err)
		s.Zero(sum.EntryErrors)
		s.Equal("müller@x.de,1\nmöller@x.de,2\nok@x.de,3\n", s.read("mapping.csv"))
		s.Equal("1,1,2,T\n1,1,3,T\n", s.read("latin1.anon.csv"))
	})
}

func (s *AnonymizeSuite) TestFailedMappingWriteLeavesPreviousOutputs() {
	s.Require().NoError(os.MkdirAll(s.outDir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(s.outDir, "mails.anon.csv"), []byte("previous\n"), 0o644))
	s.cfg.MappingFile = filepath.Join("no-such-dir", "mapping.csv")
	path := s.input("mails.csv", "S1,a@x.com,b@x.com,T1\n")

	_, err := s.pipeline().Anonymize(context.Background(), []string{path})
	s.Require().Error(err)
	s.Equal("previous\n", s.read("mails.anon.csv"))

	entries, err := os.ReadDir(s.outDir)
	s.Require().NoError(err)
	s.Len(entries, 1, "staged files are removed")
}

func (s *AnonymizeSuite) TestOutputNameCollision() {
	sub := filepath.Join(s.dir, "sub")
	s.Require().NoError(os.MkdirAll(sub, 0o755))
	a := s.input("mails.csv", "S,a@x.com,,T\n")
	b := filepath.Join(sub, "mails.csv")
	s.Require().NoError(os.WriteFile(b, []byte("S,b@x.com,,T\n"), 0o644))

	_, err := s.pipeline().Anonymize(context.Background(), []string{a, b})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *AnonymizeSuite) TestMissingInputFails() {
	_, err := s.pipeline().Anonymize(context.Background(), []string{filepath.Join(s.dir, "absent.csv")})
	s.Error(err)
}
