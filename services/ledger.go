package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/models"
	"github.com/camden-git/civicregistry/repository"
)

// Deps are the collaborators shared by the lifecycle services.
type Deps struct {
	DB         *gorm.DB
	Households repository.HouseholdRepository
	Persons    repository.PersonRepository
	History    repository.HistoryRepository
	Events     LedgerPublisher
	Metrics    *metrics.Metrics
	Log        *logger.Logger
}

// txRepos are the repositories bound to one transaction.
type txRepos struct {
	households repository.HouseholdRepository
	persons    repository.PersonRepository
	ledger     *ledgerWriter
}

// ledgerWriter appends the entries of one logical operation. Every entry shares the
// operation id, actor and timestamp.
type ledgerWriter struct {
	repo        repository.HistoryRepository
	operationID string
	actor       string
	at          time.Time

	householdEntries []models.HouseholdChangeHistory
	personEntries    []models.PersonChangeHistory
}

func encodeSnapshot(s *models.Snapshot) (datatypes.JSON, error) {
	if s == nil {
		return nil, nil
	}
	return s.JSON()
}

func (w *ledgerWriter) household(ctx context.Context, h *models.Household, changeType, description string, oldSnap, newSnap *models.Snapshot) error {
	oldData, err := encodeSnapshot(oldSnap)
	if err != nil {
		return err
	}
	newData, err := encodeSnapshot(newSnap)
	if err != nil {
		return err
	}
	entry := models.HouseholdChangeHistory{
		HouseholdID:   h.ID,
		HouseholdCode: h.HouseholdCode,
		ChangeType:    changeType,
		ChangedAt:     w.at,
		Description:   description,
		OldData:       oldData,
		NewData:       newData,
		OperationID:   w.operationID,
		ChangedBy:     w.actor,
	}
	if err := w.repo.AppendHousehold(ctx, &entry); err != nil {
		return err
	}
	w.householdEntries = append(w.householdEntries, entry)
	return nil
}

func (w *ledgerWriter) person(ctx context.Context, p *models.Person, changeType, description string, oldSnap, newSnap *models.Snapshot) error {
	oldData, err := encodeSnapshot(oldSnap)
	if err != nil {
		return err
	}
	newData, err := encodeSnapshot(newSnap)
	if err != nil {
		return err
	}
	entry := models.PersonChangeHistory{
		PersonID:    p.ID,
		PersonName:  p.FullName,
		ChangeType:  changeType,
		ChangedAt:   w.at,
		Description: description,
		OldData:     oldData,
		NewData:     newData,
		OperationID: w.operationID,
		ChangedBy:   w.actor,
	}
	if err := w.repo.AppendPerson(ctx, &entry); err != nil {
		return err
	}
	w.personEntries = append(w.personEntries, entry)
	return nil
}

func snap(s models.Snapshot) *models.Snapshot { return &s }

// lifecycle runs mutating operations: one transaction per operation, metrics and ledger
// events once it commits.
type lifecycle struct {
	Deps
	now func() time.Time
}

func newLifecycle(deps Deps) lifecycle {
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return lifecycle{Deps: deps, now: func() time.Time { return time.Now().UTC() }}
}

// inTx runs fn in one transaction. at is the timestamp stamped on every ledger entry; the zero
// value means now.
func (l *lifecycle) inTx(ctx context.Context, at time.Time, fn func(r txRepos) error) (*ledgerWriter, error) {
	if at.IsZero() {
		at = l.now()
	}
	w := &ledgerWriter{operationID: newOperationID(), actor: actorFrom(ctx), at: at}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w.repo = l.History.WithTx(tx)
		return fn(txRepos{
			households: l.Households.WithTx(tx),
			persons:    l.Persons.WithTx(tx),
			ledger:     w,
		})
	})
	if err != nil {
		return nil, err
	}
	for _, e := range w.householdEntries {
		l.Metrics.IncrementLedgerEntry("household", e.ChangeType)
	}
	for _, e := range w.personEntries {
		l.Metrics.IncrementLedgerEntry("person", e.ChangeType)
	}
	return w, nil
}

func (l *lifecycle) publish(w *ledgerWriter, changeType string, h *models.Household, persons []uint, related ...uint) {
	ev := models.LedgerEvent{
		OperationID: w.operationID,
		ChangeType:  changeType,
		PersonIDs:   persons,
		RelatedIDs:  related,
		ChangedBy:   w.actor,
		ChangedAt:   w.at,
	}
	if h != nil {
		ev.HouseholdID = h.ID
		ev.HouseholdCode = h.HouseholdCode
	}
	l.Events.Publish(ev)
}

// checkVersion compares a caller-supplied version with the stored one.
func checkVersion(h *models.Household, expected *int) error {
	if expected != nil && *expected != h.Version {
		return newError(KindStale, repository.ErrStaleVersion,
			"household %s is at version %d, not %d; reload and retry", h.HouseholdCode, h.Version, *expected)
	}
	return nil
}

func describe(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
