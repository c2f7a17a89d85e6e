package services

import (
	"context"
	"strings"
	"time"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// ResidenceInput creates or replaces a temporary residence or absence permit.
type ResidenceInput struct {
	PersonID       *uint   `json:"person_id,omitempty"`
	FullName       string  `json:"full_name"`
	IdentityNumber *string `json:"identity_number,omitempty"`
	Kind           string  `json:"kind"`
	Address        string  `json:"address"`
	FromDate       Date    `json:"from_date"`
	ToDate         Date    `json:"to_date"`
	Reason         *string `json:"reason,omitempty"`
}

type ResidenceService struct {
	permits repository.ResidenceRepository
	persons repository.PersonRepository
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewResidenceService(permits repository.ResidenceRepository, persons repository.PersonRepository, m *metrics.Metrics, log *logger.Logger) *ResidenceService {
	if log == nil {
		log = logger.Nop()
	}
	return &ResidenceService{
		permits: permits,
		persons: persons,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ResidenceService) validate(ctx context.Context, in ResidenceInput) error {
	switch {
	case !models.IsValidPermitKind(in.Kind):
		return validationf("kind must be %s or %s", models.PermitResidence, models.PermitAbsence)
	case blank(in.Address):
		return validationf("address is required")
	case in.FromDate.IsZero() || in.ToDate.IsZero():
		return validationf("from_date and to_date are required")
	case !in.ToDate.After(in.FromDate.Time):
		return validationf("to_date must be after from_date")
	}
	if id := trimPtr(in.IdentityNumber); id != nil && !validateIdentityNumber(*id) {
		return validationf("identity number must be 9 to 12 digits")
	}
	if in.PersonID != nil {
		if _, err := s.persons.GetByID(ctx, *in.PersonID); err != nil {
			return translate(err, "person")
		}
	} else if blank(in.FullName) {
		return validationf("full name is required when no person is linked")
	}
	return nil
}

func (s *ResidenceService) apply(ctx context.Context, r *models.TemporaryResidence, in ResidenceInput) error {
	r.PersonID = in.PersonID
	r.FullName = strings.TrimSpace(in.FullName)
	r.IdentityNumber = trimPtr(in.IdentityNumber)
	if in.PersonID != nil {
		// linked permits take the holder's registered name and identity number
		p, err := s.persons.GetByID(ctx, *in.PersonID)
		if err != nil {
			return translate(err, "person")
		}
		r.FullName = p.FullName
		if p.IdentityNumber != nil {
			r.IdentityNumber = p.IdentityNumber
		}
	}
	r.Kind = in.Kind
	r.Address = strings.TrimSpace(in.Address)
	r.FromDate = in.FromDate.Time
	r.ToDate = in.ToDate.Time
	r.Reason = trimPtr(in.Reason)
	return nil
}

func (s *ResidenceService) Create(ctx context.Context, in ResidenceInput) (*models.TemporaryResidence, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	r := &models.TemporaryResidence{Status: models.PermitActive}
	if err := s.apply(ctx, r, in); err != nil {
		return nil, err
	}
	if !r.ToDate.After(s.now()) {
		r.Status = models.PermitExpired
	}
	if err := s.permits.Create(ctx, r); err != nil {
		return nil, translate(err, "permit")
	}
	return r, nil
}

func (s *ResidenceService) Get(ctx context.Context, id uint) (*models.TemporaryResidence, error) {
	r, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "permit")
	}
	return r, nil
}

func (s *ResidenceService) List(ctx context.Context, filter repository.ResidenceFilter) ([]models.TemporaryResidence, int64, error) {
	if filter.Kind != "" && !models.IsValidPermitKind(filter.Kind) {
		return nil, 0, validationf("unknown permit kind %q", filter.Kind)
	}
	permits, total, err := s.permits.List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "permits")
	}
	return permits, total, nil
}

// Update replaces a permit's details. Revoked permits are read-only.
func (s *ResidenceService) Update(ctx context.Context, id uint, in ResidenceInput) (*models.TemporaryResidence, error) {
	r, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "permit")
	}
	if r.Status == models.PermitRevoked {
		return nil, validationf("permit %d has been revoked", id)
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}
	if err := s.apply(ctx, r, in); err != nil {
		return nil, err
	}
	r.Status = models.PermitActive
	if !r.ToDate.After(s.now()) {
		r.Status = models.PermitExpired
	}
	if err := s.permits.Update(ctx, r); err != nil {
		return nil, translate(err, "permit")
	}
	return r, nil
}

func (s *ResidenceService) Revoke(ctx context.Context, id uint) (*models.TemporaryResidence, error) {
	r, err := s.permits.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "permit")
	}
	if r.Status != models.PermitActive {
		return nil, validationf("permit %d is %s; only ACTIVE permits can be revoked", id, r.Status)
	}
	r.Status = models.PermitRevoked
	if err := s.permits.Update(ctx, r); err != nil {
		return nil, translate(err, "permit")
	}
	return r, nil
}

func (s *ResidenceService) Delete(ctx context.Context, id uint) error {
	return translate(s.permits.Delete(ctx, id), "permit")
}

// ExpireEnded marks every ACTIVE permit that ended before now as EXPIRED.
func (s *ResidenceService) ExpireEnded(ctx context.Context) (int64, error) {
	n, err := s.permits.ExpireEnded(ctx, s.now())
	if err != nil {
		return 0, internal(err, "failed to expire permits")
	}
	s.metrics.AddPermitsExpired(n)
	return n, nil
}
