package services

import (
	"context"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"

	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// MemberInput describes one person submitted with a household registration.
type MemberInput struct {
	FullName       string  `json:"full_name"`
	Alias          *string `json:"alias,omitempty"`
	DateOfBirth    Date    `json:"date_of_birth"`
	Gender         string  `json:"gender"`
	IdentityNumber *string `json:"identity_number,omitempty"`
	Relationship   string  `json:"relationship"`
	BirthPlace     *string `json:"birth_place,omitempty"`
	Hometown       *string `json:"hometown,omitempty"`
	Ethnicity      *string `json:"ethnicity,omitempty"`
	Occupation     *string `json:"occupation,omitempty"`
	Workplace      *string `json:"workplace,omitempty"`
	Note           *string `json:"note,omitempty"`
}

// RegisterHouseholdInput creates a household with its initial members. A blank
// HouseholdCode is derived from the greatest existing code.
type RegisterHouseholdInput struct {
	HouseholdCode string        `json:"household_code"`
	OwnerName     string        `json:"owner_name"`
	Street        string        `json:"street"`
	Ward          string        `json:"ward"`
	District      string        `json:"district"`
	DistrictID    string        `json:"district_id"`
	HouseholdType string        `json:"household_type"`
	IssueDate     Date          `json:"issue_date"`
	Note          *string       `json:"note,omitempty"`
	Members       []MemberInput `json:"members"`
}

// UpdateHouseholdInput patches a household. Nil fields are left unchanged.
type UpdateHouseholdInput struct {
	HouseholdCode   *string `json:"household_code,omitempty"`
	OwnerName       *string `json:"owner_name,omitempty"`
	Street          *string `json:"street,omitempty"`
	Ward            *string `json:"ward,omitempty"`
	District        *string `json:"district,omitempty"`
	DistrictID      *string `json:"district_id,omitempty"`
	HouseholdType   *string `json:"household_type,omitempty"`
	IssueDate       *Date   `json:"issue_date,omitempty"`
	Note            *string `json:"note,omitempty"`
	ExpectedVersion *int    `json:"version,omitempty"`
}

// SplitHouseholdInput moves a subset of a household's members into a new household.
// Blank address fields and household type default to the source's.
type SplitHouseholdInput struct {
	NewHouseholdCode string          `json:"new_household_code"`
	OwnerName        string          `json:"owner_name"`
	Street           string          `json:"street"`
	Ward             string          `json:"ward"`
	District         string          `json:"district"`
	DistrictID       string          `json:"district_id"`
	HouseholdType    string          `json:"household_type"`
	PersonIDs        []uint          `json:"person_ids"`
	Relationships    map[uint]string `json:"relationships,omitempty"`
	Reason           string          `json:"reason"`
	SplitDate        *Date           `json:"split_date,omitempty"`
	ExpectedVersion  *int            `json:"version,omitempty"`
}

// TransferHouseholdInput relocates a household. All address fields are required.
type TransferHouseholdInput struct {
	Street          string `json:"street"`
	Ward            string `json:"ward"`
	District        string `json:"district"`
	DistrictID      string `json:"district_id"`
	Reason          string `json:"reason"`
	TransferDate    *Date  `json:"transfer_date,omitempty"`
	ExpectedVersion *int   `json:"version,omitempty"`
}

// SplitResult reports both sides of a completed split.
type SplitResult struct {
	Source       *models.Household `json:"source"`
	NewHousehold *models.Household `json:"new_household"`
	MovedPersons []models.Person   `json:"moved_persons"`
	OperationID  string            `json:"operation_id"`
}

// TransferResult reports a completed transfer.
type TransferResult struct {
	Household   *models.Household `json:"household"`
	OldAddress  models.Address    `json:"old_address"`
	NewAddress  models.Address    `json:"new_address"`
	OperationID string            `json:"operation_id"`
}

// HouseholdService implements the household lifecycle.
type HouseholdService struct {
	lifecycle
}

func NewHouseholdService(deps Deps) *HouseholdService {
	return &HouseholdService{lifecycle: newLifecycle(deps)}
}

func (s *HouseholdService) Get(ctx context.Context, id uint) (*models.Household, error) {
	h, err := s.Households.GetByIDWithPersons(ctx, id)
	if err != nil {
		return nil, translate(err, "household")
	}
	return h, nil
}

func (s *HouseholdService) List(ctx context.Context, filter repository.HouseholdFilter) ([]models.Household, int64, error) {
	households, total, err := s.Households.List(ctx, filter)
	if err != nil {
		return nil, 0, translate(err, "households")
	}
	return households, total, nil
}

func (s *HouseholdService) ListPersons(ctx context.Context, householdID uint) ([]models.Person, error) {
	if _, err := s.Households.GetByID(ctx, householdID); err != nil {
		return nil, translate(err, "household")
	}
	persons, err := s.Persons.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, translate(err, "persons")
	}
	return persons, nil
}

// SuggestNextCode returns the first unused code after old, or the code following the
// greatest stored code when old is blank.
func (s *HouseholdService) SuggestNextCode(ctx context.Context, old string) (string, error) {
	old = strings.TrimSpace(old)
	if old == "" {
		return DeriveNextCode(ctx, s.Households)
	}
	return SuggestNextCode(ctx, s.Households, old)
}

func validateIdentityNumber(n string) bool {
	return govalidator.IsNumeric(n) && govalidator.StringLength(n, "9", "12")
}

// validateMember checks one member; position is 1-indexed for messages.
func validateMember(position int, m MemberInput) error {
	return validatePerson(describe("member %d: ", position), m)
}

// validatePerson checks the fields every person record needs. prefix is prepended to messages.
func validatePerson(prefix string, m MemberInput) error {
	switch {
	case blank(m.FullName):
		return validationf("%sfull name is required", prefix)
	case m.DateOfBirth.IsZero():
		return validationf("%sdate of birth is required", prefix)
	case m.DateOfBirth.After(time.Now()):
		return validationf("%sdate of birth is in the future", prefix)
	case !models.IsValidGender(m.Gender):
		return validationf("%sgender must be one of %s, %s, %s", prefix, models.GenderMale, models.GenderFemale, models.GenderOther)
	case blank(m.Relationship):
		return validationf("%srelationship is required", prefix)
	}
	if id := trimPtr(m.IdentityNumber); id != nil && !validateIdentityNumber(*id) {
		return validationf("%sidentity number must be 9 to 12 digits", prefix)
	}
	return nil
}

func (in RegisterHouseholdInput) validate() error {
	required := []struct{ name, value string }{
		{"owner name", in.OwnerName},
		{"street", in.Street},
		{"ward", in.Ward},
		{"district", in.District},
		{"district id", in.DistrictID},
		{"household type", in.HouseholdType},
	}
	for _, f := range required {
		if blank(f.value) {
			return validationf("%s is required", f.name)
		}
	}
	if in.IssueDate.IsZero() {
		return validationf("issue date is required")
	}
	return nil
}

func (in RegisterHouseholdInput) validateMembers() error {
	if len(in.Members) == 0 {
		return validationf("at least one member is required")
	}
	seen := make(map[string]int)
	for i, m := range in.Members {
		if err := validateMember(i+1, m); err != nil {
			return err
		}
		if id := trimPtr(m.IdentityNumber); id != nil {
			if first, dup := seen[*id]; dup {
				return validationf("member %d: identity number duplicates member %d", i+1, first)
			}
			seen[*id] = i + 1
		}
	}
	return nil
}

func (m MemberInput) toPerson(householdID uint) *models.Person {
	return &models.Person{
		HouseholdID:    householdID,
		FullName:       strings.TrimSpace(m.FullName),
		Alias:          trimPtr(m.Alias),
		DateOfBirth:    m.DateOfBirth.Time,
		Gender:         m.Gender,
		IdentityNumber: trimPtr(m.IdentityNumber),
		Relationship:   normalizeRelationship(m.Relationship),
		BirthPlace:     trimPtr(m.BirthPlace),
		Hometown:       trimPtr(m.Hometown),
		Ethnicity:      trimPtr(m.Ethnicity),
		Occupation:     trimPtr(m.Occupation),
		Workplace:      trimPtr(m.Workplace),
		Status:         models.StatusActive,
		Note:           trimPtr(m.Note),
	}
}

// Register creates a household and its members. Either everything is written, including
// one ADD entry per member and one CREATE entry for the household, or nothing is.
func (s *HouseholdService) Register(ctx context.Context, in RegisterHouseholdInput) (h *models.Household, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("register", start, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.HouseholdCode)
	if code != "" {
		taken, err := s.Households.CodeExists(ctx, code, 0)
		if err != nil {
			return nil, translate(err, "household")
		}
		if taken {
			return nil, conflictf("household code %s already exists", code)
		}
	}
	if err := in.validateMembers(); err != nil {
		return nil, err
	}

	var created *models.Household
	var members []models.Person
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		if code == "" {
			derived, err := DeriveNextCode(ctx, r.households)
			if err != nil {
				return err
			}
			code = derived
		}

		created = &models.Household{
			HouseholdCode: code,
			OwnerName:     strings.TrimSpace(in.OwnerName),
			Street:        strings.TrimSpace(in.Street),
			Ward:          strings.TrimSpace(in.Ward),
			District:      strings.TrimSpace(in.District),
			DistrictID:    strings.TrimSpace(in.DistrictID),
			HouseholdType: strings.TrimSpace(in.HouseholdType),
			IssueDate:     in.IssueDate.Time,
			Note:          trimPtr(in.Note),
			Version:       1,
		}
		if err := r.households.Create(ctx, created); err != nil {
			return err
		}

		for i, m := range in.Members {
			p := m.toPerson(created.ID)
			if p.IdentityNumber != nil {
				taken, err := r.persons.IdentityNumberExists(ctx, *p.IdentityNumber, 0)
				if err != nil {
					return err
				}
				if taken {
					return conflictf("member %d: identity number %s is already registered", i+1, *p.IdentityNumber)
				}
			}
			if err := r.persons.Create(ctx, p); err != nil {
				return err
			}
			desc := describe("%s added to household %s at registration", p.FullName, created.HouseholdCode)
			if err := r.ledger.person(ctx, p, models.ChangeAdd, desc, nil, snap(models.NewPersonSnapshot(p))); err != nil {
				return err
			}
			members = append(members, *p)
		}

		desc := describe("Household %s registered for %s with %d member(s)", created.HouseholdCode, created.OwnerName, len(members))
		return r.ledger.household(ctx, created, models.ChangeCreate, desc, nil, snap(models.NewHouseholdSnapshot(created)))
	})
	if err != nil {
		return nil, translate(err, "household")
	}

	created.Persons = members
	s.Log.Infof("Household %s registered (operation %s)", created.HouseholdCode, w.operationID)
	s.publish(w, models.ChangeCreate, created, personIDs(members))
	return created, nil
}

// Update patches household fields under optimistic concurrency and writes one UPDATE entry.
func (s *HouseholdService) Update(ctx context.Context, id uint, in UpdateHouseholdInput) (h *models.Household, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("update", start, err) }()

	for name, v := range map[string]*string{
		"household code": in.HouseholdCode, "owner name": in.OwnerName, "street": in.Street,
		"ward": in.Ward, "district": in.District, "district id": in.DistrictID, "household type": in.HouseholdType,
	} {
		if v != nil && blank(*v) {
			return nil, validationf("%s cannot be blank", name)
		}
	}

	var updated *models.Household
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		current, err := r.households.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(current, in.ExpectedVersion); err != nil {
			return err
		}
		if in.HouseholdCode != nil {
			code := strings.TrimSpace(*in.HouseholdCode)
			taken, err := r.households.CodeExists(ctx, code, current.ID)
			if err != nil {
				return err
			}
			if taken {
				return conflictf("household code %s already exists", code)
			}
		}

		before := models.NewHouseholdSnapshot(current)
		next := *current
		applyHouseholdPatch(&next, in)
		if err := r.households.UpdateVersioned(ctx, &next, current.Version); err != nil {
			return err
		}
		updated = &next

		desc := describe("Household %s updated", next.HouseholdCode)
		return r.ledger.household(ctx, updated, models.ChangeUpdate, desc, &before, snap(models.NewHouseholdSnapshot(updated)))
	})
	if err != nil {
		return nil, translate(err, "household")
	}
	s.publish(w, models.ChangeUpdate, updated, nil)
	return updated, nil
}

func applyHouseholdPatch(h *models.Household, in UpdateHouseholdInput) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&h.HouseholdCode, in.HouseholdCode)
	set(&h.OwnerName, in.OwnerName)
	set(&h.Street, in.Street)
	set(&h.Ward, in.Ward)
	set(&h.District, in.District)
	set(&h.DistrictID, in.DistrictID)
	set(&h.HouseholdType, in.HouseholdType)
	if in.IssueDate != nil && !in.IssueDate.IsZero() {
		h.IssueDate = in.IssueDate.Time
	}
	if in.Note != nil {
		h.Note = trimPtr(in.Note)
	}
}

// Delete removes a household with no attached persons and records a DELETE entry carrying
// its final state, so the ledger can still describe it afterwards.
func (s *HouseholdService) Delete(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("delete", start, err) }()

	var deleted *models.Household
	w, err := s.inTx(ctx, time.Time{}, func(r txRepos) error {
		current, err := r.households.GetByID(ctx, id)
		if err != nil {
			return err
		}
		count, err := r.persons.CountByHousehold(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return validationf("household %s still has %d person(s); move or remove them first", current.HouseholdCode, count)
		}
		if err := r.households.Delete(ctx, id); err != nil {
			return err
		}
		deleted = current

		desc := describe("Household %s of %s deleted", current.HouseholdCode, current.OwnerName)
		return r.ledger.household(ctx, current, models.ChangeDelete, desc, snap(models.NewHouseholdSnapshot(current)), nil)
	})
	if err != nil {
		return translate(err, "household")
	}
	s.publish(w, models.ChangeDelete, deleted, nil)
	return nil
}

func (in SplitHouseholdInput) validate() error {
	if blank(in.OwnerName) {
		return validationf("owner name of the new household is required")
	}
	if len(in.PersonIDs) == 0 {
		return validationf("at least one person must be selected to split")
	}
	seen := make(map[uint]struct{}, len(in.PersonIDs))
	for _, id := range in.PersonIDs {
		if _, dup := seen[id]; dup {
			return validationf("person %d is listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	for id := range in.Relationships {
		if _, ok := seen[id]; !ok {
			return validationf("relationship given for person %d who is not being split", id)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if blank(v) {
		return def
	}
	return strings.TrimSpace(v)
}

// Split creates a new household from listed members of the source. The new household,
// the member moves, the source version bump and all ledger entries commit together.
func (s *HouseholdService) Split(ctx context.Context, sourceID uint, in SplitHouseholdInput) (res *SplitResult, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("split", start, err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	splitAt := s.now()
	if d := datePtr(in.SplitDate); d != nil {
		splitAt = *d
	}

	result := &SplitResult{}
	w, err := s.inTx(ctx, splitAt, func(r txRepos) error {
		source, err := r.households.GetByID(ctx, sourceID)
		if err != nil {
			return err
		}
		if err := checkVersion(source, in.ExpectedVersion); err != nil {
			return err
		}

		persons, err := r.persons.GetByIDs(ctx, in.PersonIDs)
		if err != nil {
			return err
		}
		byID := make(map[uint]models.Person, len(persons))
		for _, p := range persons {
			byID[p.ID] = p
		}
		for _, pid := range in.PersonIDs {
			p, ok := byID[pid]
			if !ok {
				return notFoundf("person %d not found", pid)
			}
			if p.HouseholdID != source.ID {
				return validationf("person %d (%s) does not belong to household %s", p.ID, p.FullName, source.HouseholdCode)
			}
		}

		code := strings.TrimSpace(in.NewHouseholdCode)
		if code == "" {
			if code, err = DeriveNextCode(ctx, r.households); err != nil {
				return err
			}
		}
		taken, err := r.households.CodeExists(ctx, code, 0)
		if err != nil {
			return err
		}
		if taken {
			return conflictf("household code %s already exists", code)
		}

		dest := &models.Household{
			HouseholdCode: code,
			OwnerName:     strings.TrimSpace(in.OwnerName),
			Street:        orDefault(in.Street, source.Street),
			Ward:          orDefault(in.Ward, source.Ward),
			District:      orDefault(in.District, source.District),
			DistrictID:    orDefault(in.DistrictID, source.DistrictID),
			HouseholdType: orDefault(in.HouseholdType, source.HouseholdType),
			IssueDate:     splitAt,
			SplitFromID:   &source.ID,
			Version:       1,
		}
		if err := r.households.Create(ctx, dest); err != nil {
			return err
		}

		sourceBefore := models.NewHouseholdSnapshot(source)
		if err := r.households.UpdateVersioned(ctx, source, source.Version); err != nil {
			return err
		}

		reason := strings.TrimSpace(in.Reason)
		for _, pid := range in.PersonIDs {
			p := byID[pid]
			before := models.NewPersonSnapshot(&p)
			p.HouseholdID = dest.ID
			if rel, ok := in.Relationships[pid]; ok {
				p.Relationship = normalizeRelationship(rel)
			}
			if err := r.persons.Update(ctx, &p); err != nil {
				return err
			}
			desc := describe("%s moved from household %s to %s by split", p.FullName, source.HouseholdCode, dest.HouseholdCode)
			if err := r.ledger.person(ctx, &p, models.ChangeSplit, desc, &before, snap(models.NewPersonSnapshot(&p))); err != nil {
				return err
			}
			result.MovedPersons = append(result.MovedPersons, p)
		}

		info := models.SplitSnapshot{
			SourceHouseholdID:        source.ID,
			SourceHouseholdCode:      source.HouseholdCode,
			DestinationHouseholdID:   dest.ID,
			DestinationHouseholdCode: dest.HouseholdCode,
			PersonIDs:                in.PersonIDs,
			Reason:                   reason,
		}
		desc := describe("%d person(s) split from household %s into %s", len(in.PersonIDs), source.HouseholdCode, dest.HouseholdCode)
		if reason != "" {
			desc += ": " + reason
		}
		if err := r.ledger.household(ctx, source, models.ChangeSplit, desc, &sourceBefore, snap(models.NewSplitSnapshot(info, source))); err != nil {
			return err
		}
		if err := r.ledger.household(ctx, dest, models.ChangeSplit, desc, nil, snap(models.NewSplitSnapshot(info, dest))); err != nil {
			return err
		}

		result.Source = source
		result.NewHousehold = dest
		return nil
	})
	if err != nil {
		return nil, translate(err, "household")
	}

	result.OperationID = w.operationID
	result.NewHousehold.Persons = result.MovedPersons
	s.Log.Infof("Household %s split into %s (operation %s)", result.Source.HouseholdCode, result.NewHousehold.HouseholdCode, w.operationID)
	s.publish(w, models.ChangeSplit, result.Source, in.PersonIDs, result.NewHousehold.ID)
	return result, nil
}

func (in TransferHouseholdInput) address() (models.Address, error) {
	a := models.Address{
		Street:     strings.TrimSpace(in.Street),
		Ward:       strings.TrimSpace(in.Ward),
		District:   strings.TrimSpace(in.District),
		DistrictID: strings.TrimSpace(in.DistrictID),
	}
	switch {
	case a.Street == "":
		return a, validationf("street is required")
	case a.Ward == "":
		return a, validationf("ward is required")
	case a.District == "":
		return a, validationf("district is required")
	case a.DistrictID == "":
		return a, validationf("district id is required")
	}
	return a, nil
}

// Transfer moves a household to a new address. Members stay attached; every attached
// member, whatever its status, gets a MOVE_OUT entry carrying the same address change.
func (s *HouseholdService) Transfer(ctx context.Context, id uint, in TransferHouseholdInput) (res *TransferResult, err error) {
	start := time.Now()
	defer func() { s.Metrics.ObserveOperation("transfer", start, err) }()

	newAddr, err := in.address()
	if err != nil {
		return nil, err
	}
	at := s.now()
	if d := datePtr(in.TransferDate); d != nil {
		at = *d
	}

	result := &TransferResult{NewAddress: newAddr}
	var moved []uint
	w, err := s.inTx(ctx, at, func(r txRepos) error {
		h, err := r.households.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := checkVersion(h, in.ExpectedVersion); err != nil {
			return err
		}

		before := *h
		result.OldAddress = h.Address()
		h.ApplyAddress(newAddr)
		if err := r.households.UpdateVersioned(ctx, h, before.Version); err != nil {
			return err
		}

		oldSnap := models.NewAddressSnapshot(result.OldAddress, &before)
		newSnap := models.NewAddressSnapshot(newAddr, h)
		desc := describe("Household %s moved from %s, %s, %s to %s, %s, %s",
			h.HouseholdCode,
			result.OldAddress.Street, result.OldAddress.Ward, result.OldAddress.District,
			newAddr.Street, newAddr.Ward, newAddr.District)
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			desc += ": " + reason
		}
		if err := r.ledger.household(ctx, h, models.ChangeTransfer, desc, &oldSnap, &newSnap); err != nil {
			return err
		}

		persons, err := r.persons.ListByHousehold(ctx, h.ID)
		if err != nil {
			return err
		}
		for i := range persons {
			p := &persons[i]
			pdesc := describe("%s moved with household %s to %s", p.FullName, h.HouseholdCode, newAddr.Street)
			if err := r.ledger.person(ctx, p, models.ChangeMoveOut, pdesc, snap(oldSnap.WithPerson(p)), snap(newSnap.WithPerson(p))); err != nil {
				return err
			}
			moved = append(moved, p.ID)
		}
		result.Household = h
		return nil
	})
	if err != nil {
		return nil, translate(err, "household")
	}

	result.OperationID = w.operationID
	s.publish(w, models.ChangeTransfer, result.Household, moved)
	return result, nil
}
