package services

import (
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

type ResidenceServiceSuite struct {
	registrySuite
	residences *ResidenceService
	now        time.Time
}

func TestResidenceServiceSuite(t *testing.T) {
	suite.Run(t, new(ResidenceServiceSuite))
}

func (s *ResidenceServiceSuite) SetupTest() {
	s.registrySuite.SetupTest()
	s.now = time.Date(2024, time.May, 10, 0, 0, 0, 0, time.UTC)
	s.residences = NewResidenceService(repository.NewGormResidenceRepository(s.db), s.persons, s.metrics, nil)
	s.residences.now = func() time.Time { return s.now }
}

func (s *ResidenceServiceSuite) permit(kind string, from, to Date) ResidenceInput {
	return ResidenceInput{
		FullName: "Vo Thi Hanh",
		Kind:     kind,
		Address:  "88 Tran Hung Dao",
		FromDate: from,
		ToDate:   to,
	}
}

func (s *ResidenceServiceSuite) TestCreate() {
	r, err := s.residences.Create(s.ctx, s.permit(models.PermitResidence, date(2024, time.January, 1), date(2024, time.December, 31)))
	s.Require().NoError(err)
	s.Equal(models.PermitActive, r.Status)

	ended, err := s.residences.Create(s.ctx, s.permit(models.PermitAbsence, date(2023, time.January, 1), date(2023, time.June, 1)))
	s.Require().NoError(err)
	s.Equal(models.PermitExpired, ended.Status)

	s.Run("linked person supplies name and identity", func() {
		h := s.register("HK0001", member("Nguyen Thi Lan", "owner", "001085000111"))
		in := s.permit(models.PermitAbsence, date(2024, time.April, 1), date(2024, time.August, 1))
		in.PersonID = &h.Persons[0].ID
		in.FullName = ""
		linked, err := s.residences.Create(s.ctx, in)
		s.Require().NoError(err)
		s.Equal("Nguyen Thi Lan", linked.FullName)
		s.Require().NotNil(linked.IdentityNumber)
		s.Equal("001085000111", *linked.IdentityNumber)
	})

	s.Run("validation", func() {
		bad := s.permit("VISA", date(2024, time.January, 1), date(2024, time.February, 1))
		_, err := s.residences.Create(s.ctx, bad)
		s.True(IsKind(err, KindValidation))

		backwards := s.permit(models.PermitResidence, date(2024, time.February, 1), date(2024, time.January, 1))
		_, err = s.residences.Create(s.ctx, backwards)
		s.True(IsKind(err, KindValidation))

		anonymous := s.permit(models.PermitResidence, date(2024, time.January, 1), date(2024, time.February, 1))
		anonymous.FullName = " "
		_, err = s.residences.Create(s.ctx, anonymous)
		s.True(IsKind(err, KindValidation))

		missing := uint(999)
		unknown := s.permit(models.PermitResidence, date(2024, time.January, 1), date(2024, time.February, 1))
		unknown.PersonID = &missing
		_, err = s.residences.Create(s.ctx, unknown)
		s.True(IsKind(err, KindNotFound))
	})
}

func (s *ResidenceServiceSuite) TestRevokeAndUpdate() {
	r, err := s.residences.Create(s.ctx, s.permit(models.PermitResidence, date(2024, time.January, 1), date(2024, time.December, 31)))
	s.Require().NoError(err)

	revoked, err := s.residences.Revoke(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.PermitRevoked, revoked.Status)

	_, err = s.residences.Revoke(s.ctx, r.ID)
	s.True(IsKind(err, KindValidation))

	_, err = s.residences.Update(s.ctx, r.ID, s.permit(models.PermitResidence, date(2024, time.January, 1), date(2025, time.January, 1)))
	s.True(IsKind(err, KindValidation))

	s.Require().NoError(s.residences.Delete(s.ctx, r.ID))
	_, err = s.residences.Get(s.ctx, r.ID)
	s.True(IsKind(err, KindNotFound))
}

func (s *ResidenceServiceSuite) TestExpireEnded() {
	short, err := s.residences.Create(s.ctx, s.permit(models.PermitResidence, date(2024, time.January, 1), date(2024, time.June, 1)))
	s.Require().NoError(err)
	long, err := s.residences.Create(s.ctx, s.permit(models.PermitResidence, date(2024, time.January, 1), date(2025, time.January, 1)))
	s.Require().NoError(err)

	s.now = time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	n, err := s.residences.ExpireEnded(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.PermitsExpired))

	got, err := s.residences.Get(s.ctx, short.ID)
	s.Require().NoError(err)
	s.Equal(models.PermitExpired, got.Status)
	got, err = s.residences.Get(s.ctx, long.ID)
	s.Require().NoError(err)
	s.Equal(models.PermitActive, got.Status)

	active, total, err := s.residences.List(s.ctx, repository.ResidenceFilter{Status: models.PermitActive})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Len(active, 1)
}
