package services

import (
	"context"
	"strings"
	"time"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// CreatePersonInput adds a person to an existing household.
type CreatePersonInput struct {
	HouseholdID uint `json:"household_id"`
	MemberInput
}

// UpdatePersonInput patches a person. Nil fields are left unchanged; household membership
// only changes through a split.
type UpdatePersonInput struct {
	FullName       *string `json:"full_name,omitempty"`
	Alias          *string `json:"alias,omitempty"`
	DateOfBirth    *Date   `json:"date_of_birth,omitempty"`
	Gender         *string `json:"gender,omitempty"`
	IdentityNumber *string `json:"identity_number,omitempty"`
	Relationship   *string `json:"relationship,omitempty"`
	BirthPlace     *string `json:"birth_place,omitempty"`
	Hometown       *string `json:"hometown,omitempty"`
	Ethnicity      *string `json:"ethnicity,omitempty"`
	Occupation     *string `json:"occupation,omitempty"`
	Workplace      *string `json:"workplace,omitempty"`
	Note           *string `json:"note,omitempty"`
}

type MoveOutInput struct {
	Date  *Date  `json:"move_out_date,omitempty"`
	Place string `json:"move_out_place"`
	Note  string `json:"note"`
}

type DeceasedInput struct {
	Date *Date  `json:"date,omitempty"`
	Note string `json:"note"`
}

// PersonService implements person operations outside household registration.
type PersonService struct {
	lifecycle
}

func NewPersonService(deps Deps) *PersonService {
	return &PersonService{lifecycle: newLifecycle(deps)}
}

func (s *PersonService) Get(ctx context.Context, id uint) (*models.Person, error) {
	p, err := s.Persons.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "person")
	}
	return p, nil
}

func (s *PersonService) List(ctx context.Context, filter repository.PersonFilter) ([]models.Person, int64, error) {
	if filter.Status != "" && !models.IsValidPersonStatus(filter.Status) {
		return nil, 0, validationf("unknown person status %q", filter.Status)
	}
	persons, total, err := s.Persons.List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "persons")
	}
	return persons, total, nil
}

func (s *PersonService) Create(ctx context.Context, in CreatePersonInput) (p *models.Person, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("person_create", start, err) }()

	if in.HouseholdID == 0 {
		return nil, validationf("household id is required")
	}
	if err := validatePerson("", in.MemberInput); err != nil {
		return nil, err
	}

	var created *models.Person
	var household *models.Household
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		h, err := r.households.GetByID(ctx, in.HouseholdID)
		if err != nil {
			return err
		}
		household = h

		person := in.MemberInput.toPerson(h.ID)
		if person.IdentityNumber != nil {
			taken, err := r.persons.IdentityNumberExists(ctx, *person.IdentityNumber, 0)
			if err != nil {
				return err
			}
			if taken {
				return conflictf("identity number %s is already registered", *person.IdentityNumber)
			}
		}
		if err := r.persons.Create(ctx, person); err != nil {
			return err
		}
		created = person

		desc := describe("%s added to household %s", person.FullName, h.HouseholdCode)
		return r.ledger.person(ctx, person, models.ChangeAdd, desc, nil, snap(models.NewPersonSnapshot(person)))
	})
	if err != nil {
		return nil, translate(err, "person")
	}
	s.publish(w, models.ChangeAdd, household, []uint{created.ID})
	return created, nil
}

func applyPersonPatch(p *models.Person, in UpdatePersonInput) {
	if in.FullName != nil {
		p.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.DateOfBirth != nil && !in.DateOfBirth.IsZero() {
		p.DateOfBirth = in.DateOfBirth.Time
	}
	if in.Gender != nil {
		p.Gender = *in.Gender
	}
	if in.Relationship != nil {
		p.Relationship = normalizeRelationship(*in.Relationship)
	}
	optional := []struct {
		dst **string
		src *string
	}{
		{&p.Alias, in.Alias},
		{&p.IdentityNumber, in.IdentityNumber},
		{&p.BirthPlace, in.BirthPlace},
		{&p.Hometown, in.Hometown},
		{&p.Ethnicity, in.Ethnicity},
		{&p.Occupation, in.Occupation},
		{&p.Workplace, in.Workplace},
		{&p.Note, in.Note},
	}
	for _, f := range optional {
		if f.src != nil {
			*f.dst = trimPtr(f.src)
		}
	}
}

func (s *PersonService) Update(ctx context.Context, id uint, in UpdatePersonInput) (p *models.Person, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("person_update", start, err) }()

	if in.FullName != nil && blank(*in.FullName) {
		return nil, validationf("full name cannot be blank")
	}
	if in.Gender != nil && !models.IsValidGender(*in.Gender) {
		return nil, validationf("gender must be one of %s, %s, %s", models.GenderMale, models.GenderFemale, models.GenderOther)
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(time.Now()) {
		return nil, validationf("date of birth is in the future")
	}
	if id := trimPtr(in.IdentityNumber); id != nil && !validateIdentityNumber(*id) {
		return nil, validationf("identity number must be 9 to 12 digits")
	}

	var updated *models.Person
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		current, err := r.persons.GetByID(ctx, id)
		if err != nil {
			return err
		}
		before := models.NewPersonSnapshot(current)
		next := *current
		applyPersonPatch(&next, in)

		if next.IdentityNumber != nil {
			taken, err := r.persons.IdentityNumberExists(ctx, *next.IdentityNumber, next.ID)
			if err != nil {
				return err
			}
			if taken {
				return conflictf("identity number %s is already registered", *next.IdentityNumber)
			}
		}
		if err := r.persons.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next

		desc := describe("%s updated", next.FullName)
		return r.ledger.person(ctx, updated, models.ChangeUpdate, desc, &before, snap(models.NewPersonSnapshot(updated)))
	})
	if err != nil {
		return nil, translate(err, "person")
	}
	s.publish(w, models.ChangeUpdate, nil, []uint{updated.ID})
	return updated, nil
}

// changeStatus moves an ACTIVE person to a terminal status and records it.
func (s *PersonService) changeStatus(ctx context.Context, id uint, op, changeType string, apply func(p *models.Person) string) (p *models.Person, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation(op, start, err) }()

	var updated *models.Person
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		current, err := r.persons.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != models.StatusActive {
			return validationf("%s is %s; only ACTIVE persons can change status", current.FullName, current.Status)
		}
		before := models.NewPersonSnapshot(current)
		next := *current
		desc := apply(&next)
		if err := r.persons.Update(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return r.ledger.person(ctx, updated, changeType, desc, &before, snap(models.NewPersonSnapshot(updated)))
	})
	if err != nil {
		return nil, translate(err, "person")
	}
	s.publish(w, changeType, nil, []uint{updated.ID})
	return updated, nil
}

// MoveOut marks an ACTIVE person as moved out of their household.
func (s *PersonService) MoveOut(ctx context.Context, id uint, in MoveOutInput) (*models.Person, error) {
	if blank(in.Place) {
		return nil, validationf("move-out place is required")
	}
	date := s.now()
	if d := datePtr(in.Date); d != nil {
		date = *d
	}
	return s.changeStatus(ctx, id, "person_move_out", models.ChangeMoveOut, func(p *models.Person) string {
		place := strings.TrimSpace(in.Place)
		p.Status = models.StatusMovedOut
		p.MoveOutDate = &date
		p.MoveOutPlace = &place
		if note := strings.TrimSpace(in.Note); note != "" {
			p.Note = &note
		}
		return describe("%s moved out to %s on %s", p.FullName, place, date.Format("2006-01-02"))
	})
}

// MarkDeceased marks an ACTIVE person as deceased.
func (s *PersonService) MarkDeceased(ctx context.Context, id uint, in DeceasedInput) (*models.Person, error) {
	date := s.now()
	if d := datePtr(in.Date); d != nil {
		date = *d
	}
	return s.changeStatus(ctx, id, "person_deceased", models.ChangeDeceased, func(p *models.Person) string {
		p.Status = models.StatusDeceased
		p.DeceasedDate = &date
		if note := strings.TrimSpace(in.Note); note != "" {
			p.Note = &note
		}
		return describe("%s recorded as deceased on %s", p.FullName, date.Format("2006-01-02"))
	})
}

func (s *PersonService) Delete(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("person_delete", start, err) }()

	var deleted *models.Person
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		current, err := r.persons.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.persons.Delete(ctx, id); err != nil {
			return err
		}
		deleted = current
		desc := describe("%s removed from the registry", current.FullName)
		return r.ledger.person(ctx, current, models.ChangeDelete, desc, snap(models.NewPersonSnapshot(current)), nil)
	})
	if err != nil {
		return translate(err, "person")
	}
	s.publish(w, models.ChangeDelete, nil, []uint{deleted.ID})
	return nil
}
