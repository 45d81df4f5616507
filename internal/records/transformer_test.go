package records

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"mailanon/internal/address"
	"mailanon/internal/identity"
	dErrors "mailanon/pkg/domain-errors"
)

type TransformerSuite struct {
	suite.Suite
	normalizer  *address.Normalizer
	mapping     *identity.Mapping
	mapper      *identity.Mapper
	transformer *Transformer
}

func TestTransformerSuite(t *testing.T) {
	suite.Run(t, new(TransformerSuite))
}

func (s *TransformerSuite) SetupTest() {
	s.normalizer = address.New()
	s.mapping = identity.NewMapping()
	m, err := identity.NewMapper(s.mapping, s.normalizer)
	s.Require().NoError(err)
	s.mapper = m
	tr, err := NewTransformer(s.normalizer, s.mapping)
	s.Require().NoError(err)
	s.transformer = tr
}

func (s *TransformerSuite) assign(recs ...Record) {
	for _, r := range recs {
		_, err := s.mapper.Assign(r.Source, r.Target)
		s.Require().NoError(err)
	}
}

func (s *TransformerSuite) TestOneSourceThreeTargets() {
	rec := Record{Source: "a@x.com", Target: "d@x.com, B <b@x.com>, c@x.com", Timestamp: "T"}
	s.assign(Record{Source: "b@x.com"}, rec)

	rows, err := s.transformer.Emit(7, rec)
	s.Require().NoError(err)

	a, _ := s.mapping.Lookup("a@x.com")
	b, _ := s.mapping.Lookup("b@x.com")
	c, _ := s.mapping.Lookup("c@x.com")
	d, _ := s.mapping.Lookup("d@x.com")
	s.Equal([]OutputRow{
		{Sequence: 7, Source: a, Target: d, Timestamp: "T"},
		{Sequence: 7, Source: a, Target: b, Timestamp: "T"},
		{Sequence: 7, Source: a, Target: c, Timestamp: "T"},
	}, rows)
}

func (s *TransformerSuite) TestEmptyTargetYieldsOneRow() {
	rec := Record{Source: "a@x.com", Target: "", Timestamp: "T2"}
	s.assign(rec)

	rows, err := s.transformer.Emit(2, rec)
	s.Require().NoError(err)
	s.Equal([]OutputRow{{Sequence: 2, Source: 1, Target: 0, Timestamp: "T2"}}, rows)
}

func (s *TransformerSuite) TestSeveralSourcesCrossMultiply() {
	rec := Record{Source: "a@x.com, b@x.com", Target: "c@x.com, d@x.com", Timestamp: "T"}
	s.assign(rec)

	rows, err := s.transformer.Emit(1, rec)
	s.Require().NoError(err)
	s.Equal([]OutputRow{
		{Sequence: 1, Source: 1, Target: 3, Timestamp: "T"},
		{Sequence: 1, Source: 1, Target: 4, Timestamp: "T"},
		{Sequence: 1, Source: 2, Target: 3, Timestamp: "T"},
		{Sequence: 1, Source: 2, Target: 4, Timestamp: "T"},
	}, rows)
}

func (s *TransformerSuite) TestSpecialSpellingsShareOneID() {
	recs := []Record{
		{Source: "a@x.com", Target: "undisclosed-recipients:;"},
		{Source: "a@x.com", Target: "undisclosed recipients:;"},
		{Source: "a@x.com", Target: "verborgene_empfaenger: ;"},
	}
	s.assign(recs...)
	s.Equal(2, s.mapping.Len())

	for i, rec := range recs {
		rows, err := s.transformer.Emit(i+1, rec)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(2, rows[0].Target)
	}
}

func (s *TransformerSuite) TestNoSenderYieldsNoRows() {
	rows, err := s.transformer.Emit(1, Record{Source: " ", Target: "a@x.com"})
	s.NoError(err)
	s.Empty(rows)
}

func (s *TransformerSuite) TestMappingMissIsInvariantViolation() {
	_, err := s.transformer.Emit(1, Record{Source: "stranger@x.com"})
	s.Require().Error(err)
	s.True(errors.Is(err, ErrUnmappedAddress))
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *TransformerSuite) TestNewRequiresCollaborators() {
	_, err := NewTransformer(nil, s.mapping)
	s.Error(err)
	_, err = NewTransformer(s.normalizer, nil)
	s.Error(err)
}
