package services

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/testutil"
)

// recordingPublisher keeps every published ledger event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (p *recordingPublisher) Publish(ev models.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []models.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LedgerEvent(nil), p.events...)
}

// registrySuite wires the lifecycle services over a fresh sqlite database per test.
type registrySuite struct {
	suite.Suite

	ctx        context.Context
	db         *gorm.DB
	households repository.HouseholdRepository
	persons    repository.PersonRepository
	history    repository.HistoryRepository
	events     *recordingPublisher
	metrics    *metrics.Metrics

	householdSvc *HouseholdService
	personSvc    *PersonService
	historySvc   *HistoryService
}

func (s *registrySuite) SetupTest() {
	s.ctx = WithActor(context.Background(), "clerk")
	s.db = testutil.NewDB(s.T())
	s.households = repository.NewGormHouseholdRepository(s.db)
	s.persons = repository.NewGormPersonRepository(s.db)
	s.history = repository.NewGormHistoryRepository(s.db)
	s.events = &recordingPublisher{}
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())

	deps := Deps{
		DB:         s.db,
		Households: s.households,
		Persons:    s.persons,
		History:    s.history,
		Events:     s.events,
		Metrics:    s.metrics,
	}
	s.householdSvc = NewHouseholdService(deps)
	s.personSvc = NewPersonService(deps)
	s.historySvc = NewHistoryService(s.households, s.history, s.metrics, nil)
}

func strPtr(v string) *string { return &v }

func date(y int, m time.Month, d int) Date {
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func member(name, relationship, identity string) MemberInput {
	m := MemberInput{
		FullName:     name,
		DateOfBirth:  date(1985, time.March, 14),
		Gender:       models.GenderFemale,
		Relationship: relationship,
	}
	if identity != "" {
		m.IdentityNumber = strPtr(identity)
	}
	return m
}

func registerInput(code string, members ...MemberInput) RegisterHouseholdInput {
	return RegisterHouseholdInput{
		HouseholdCode: code,
		OwnerName:     "Nguyen Thi Lan",
		Street:        "12 Hang Bac",
		Ward:          "Hang Dao",
		District:      "Hoan Kiem",
		DistrictID:    "HK",
		HouseholdType: "permanent",
		IssueDate:     date(2020, time.January, 2),
		Members:       members,
	}
}

// register creates a household or fails the test.
func (s *registrySuite) register(code string, members ...MemberInput) *models.Household {
	h, err := s.householdSvc.Register(s.ctx, registerInput(code, members...))
	s.Require().NoError(err)
	return h
}

func (s *registrySuite) count(model interface{}, query string, args ...interface{}) int64 {
	var n int64
	q := s.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	s.Require().NoError(q.Count(&n).Error)
	return n
}

func (s *registrySuite) personEntries(personID uint) []models.PersonChangeHistory {
	entries, err := s.history.ListByPerson(s.ctx, personID, 0)
	s.Require().NoError(err)
	return entries
}

func historyFilterFor(householdID uint, changeType string) repository.HistoryFilter {
	return repository.HistoryFilter{HouseholdID: &householdID, ChangeType: changeType}
}

func (s *registrySuite) decode(raw []byte) models.Snapshot {
	snapshot, err := models.DecodeSnapshot(raw)
	s.Require().NoError(err)
	return snapshot
}
