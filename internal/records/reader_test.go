package records

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ReaderSuite struct {
	suite.Suite
}

func TestReaderSuite(t *testing.T) {
	suite.Run(t, new(ReaderSuite))
}

func (s *ReaderSuite) TestReadsRecords() {
	input := "Test Subject,source@test.de,\"Target <target@test.de>, b@x.com\",2017-01-26 12:00:00\n" +
		"S2, a@x.com,,T2\n"

	rows, err := ReadAll(strings.NewReader(input), "")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	s.Nil(rows[0].Skip)
	s.Equal(Record{
		Subject:   "Test Subject",
		Source:    "source@test.de",
		Target:    "Target <target@test.de>, b@x.com",
		Timestamp: "2017-01-26 12:00:00",
	}, rows[0].Record)
	s.Equal(1, rows[0].Line)

	s.Equal(Record{Subject: "S2", Source: "a@x.com", Target: "", Timestamp: "T2"}, rows[1].Record)
	s.Equal(2, rows[1].Line)
}

func (s *ReaderSuite) TestColumnCount() {
	input := "too,few\n" +
		"a,b,c,d,e\n" +
		"ok,a@x.com,b@x.com,T,\n" +
		"ok,a@x.com,b@x.com,T\n"

	rows, err := ReadAll(strings.NewReader(input), "")
	s.Require().NoError(err)
	s.Require().Len(rows, 4)

	s.Require().NotNil(rows[0].Skip)
	s.Equal(ReasonColumnCount, rows[0].Skip.Reason)
	s.Equal(1, rows[0].Skip.Line)

	s.Require().NotNil(rows[1].Skip, "non-blank extra column")
	s.Equal(ReasonColumnCount, rows[1].Skip.Reason)

	s.Nil(rows[2].Skip, "trailing delimiter is tolerated")
	s.Nil(rows[3].Skip)
}

func (s *ReaderSuite) TestLazyQuotes() {
	rows, err := ReadAll(strings.NewReader(`S,bob "the builder" <b@x.com>,c@x.com,T`+"\n"), "")
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Nil(rows[0].Skip)
	s.Equal(`bob "the builder" <b@x.com>`, rows[0].Record.Source)
}

func (s *ReaderSuite) TestInputEncoding() {
	latin1 := "Gr\xfc\xdfe,m\xfcller@x.de,,T\n"

	rows, err := ReadAll(strings.NewReader(latin1), "ISO-8859-1")
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("Grüße", rows[0].Record.Subject)
	s.Equal("müller@x.de", rows[0].Record.Source)
}

func (s *ReaderSuite) TestUnknownEncoding() {
	_, err := NewReader(strings.NewReader(""), "x-klingon")
	s.Error(err)
}

func TestValidColumns(t *testing.T) {
	assert.True(t, validColumns([]string{"a", "b", "c", "d"}))
	assert.True(t, validColumns([]string{"a", "b", "c", "d", " ", ""}))
	assert.False(t, validColumns([]string{"a", "b", "c"}))
	assert.False(t, validColumns([]string{"a", "b", "c", "d", "e"}))
}

func TestReadRaw(t *testing.T) {
	input := `{"subject":"S1","source":"/o=org/cn=bob","targets":[{"address":"/o=org/cn=carol","type":"EX"},{"address":"d@x.com","type":"SMTP"}],"timestamp":"T1"}

{"subject":"S2","source":"a@x.com","source_type":"SMTP","timestamp":"T2"}
not json
{"subject":"S3","source":"/o=org/cn=x","source_type":"smtp","targets":[{"address":"untagged"}],"timestamp":"T3"}
`
	rows, err := ReadRaw(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	r := rows[0].Record
	assert.Equal(t, "S1", r.Subject)
	assert.Equal(t, "/o=org/cn=bob", r.Source.Identifier)
	assert.True(t, r.Source.IsDirectory(), "untagged sender without @ is a directory identifier")
	require.Len(t, r.Targets, 2)
	assert.True(t, r.Targets[0].IsDirectory())
	assert.False(t, r.Targets[1].IsDirectory())

	assert.False(t, rows[1].Record.Source.IsDirectory())
	assert.Empty(t, rows[1].Record.Targets)
	assert.Equal(t, 3, rows[1].Line)

	require.NotNil(t, rows[2].Skip)
	assert.Equal(t, ReasonParse, rows[2].Skip.Reason)
	assert.Equal(t, 4, rows[2].Line)

	assert.False(t, rows[3].Record.Source.IsDirectory(), "explicit tag wins over inference")
	assert.True(t, rows[3].Record.Targets[0].IsDirectory())
}
