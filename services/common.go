package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/civicregistry/models"
)

type actorKey struct{}

// WithActor records the username performing the request; it ends up in changed_by.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

func actorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}

// LedgerPublisher receives events after their operation commits. Implementations must not block.
type LedgerPublisher interface {
	Publish(event models.LedgerEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.LedgerEvent) {}

func newOperationID() string {
	return uuid.NewString()
}

// Date accepts "2006-01-02" or RFC 3339 in JSON and normalises to UTC.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format("2006-01-02"))
}

// ParseDate parses a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// datePtr returns nil for a nil or zero Date.
func datePtr(d *Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ownerRelationship reports whether a relationship value designates the household owner.
func ownerRelationship(rel string) bool {
	switch strings.ToLower(strings.TrimSpace(rel)) {
	case "", "owner", "chủ hộ":
		return true
	}
	return false
}

// normalizeRelationship stores owner designations as nil.
func normalizeRelationship(rel string) *string {
	if ownerRelationship(rel) {
		return nil
	}
	v := strings.TrimSpace(rel)
	return &v
}

func personIDs(persons []models.Person) []uint {
	ids := make([]uint, 0, len(persons))
	for _, p := range persons {
		ids = append(ids, p.ID)
	}
	return ids
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
