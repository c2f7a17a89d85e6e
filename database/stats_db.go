package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/civicregistry/config"
	"github.com/camden-git/civicregistry/models"
)

// AgeGroup is a half-open age range [MinAge, MaxAge). MaxAge 0 means unbounded.
type AgeGroup struct {
	Label  string
	MinAge int
	MaxAge int
}

var AgeGroups = []AgeGroup{
	{Label: "0-5", MinAge: 0, MaxAge: 6},
	{Label: "6-17", MinAge: 6, MaxAge: 18},
	{Label: "18-59", MinAge: 18, MaxAge: 60},
	{Label: "60+", MinAge: 60},
}

// StatsDB runs the aggregate queries behind the statistics endpoint on the raw connection.
type StatsDB struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewStatsDB(db *sql.DB, driver string) *StatsDB {
	var ph sq.PlaceholderFormat = sq.Question
	if driver == config.DriverPostgres {
		ph = sq.Dollar
	}
	return &StatsDB{db: db, sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (s *StatsDB) count(ctx context.Context, q sq.SelectBuilder, what string) (int64, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for %s: %w", what, err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

func (s *StatsDB) grouped(ctx context.Context, q sq.SelectBuilder, what string) (map[string]int64, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for %s: %w", what, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", what, err)
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (s *StatsDB) CountHouseholds(ctx context.Context) (int64, error) {
	return s.count(ctx, s.sb.Select("COUNT(*)").From(models.Household{}.TableName()), "households")
}

func (s *StatsDB) PersonsByStatus(ctx context.Context) (map[string]int64, error) {
	q := s.sb.Select("status", "COUNT(*)").
		From(models.Person{}.TableName()).
		GroupBy("status")
	return s.grouped(ctx, q, "persons by status")
}

// ActivePersonsByGender counts ACTIVE persons only.
func (s *StatsDB) ActivePersonsByGender(ctx context.Context) (map[string]int64, error) {
	q := s.sb.Select("gender", "COUNT(*)").
		From(models.Person{}.TableName()).
		Where(sq.Eq{"status": models.StatusActive}).
		GroupBy("gender")
	return s.grouped(ctx, q, "persons by gender")
}

// ActivePersonsInAgeGroup counts ACTIVE persons whose age on ref falls in g. Cutoffs are
// computed here so the query stays portable across drivers.
func (s *StatsDB) ActivePersonsInAgeGroup(ctx context.Context, g AgeGroup, ref time.Time) (int64, error) {
	return s.count(ctx, s.ageGroupQuery(g, ref), "age group "+g.Label)
}

func (s *StatsDB) ageGroupQuery(g AgeGroup, ref time.Time) sq.SelectBuilder {
	cond := sq.And{
		sq.Eq{"status": models.StatusActive},
		sq.LtOrEq{"date_of_birth": ref.AddDate(-g.MinAge, 0, 0)},
	}
	if g.MaxAge > 0 {
		cond = append(cond, sq.Gt{"date_of_birth": ref.AddDate(-g.MaxAge, 0, 0)})
	}
	return s.sb.Select("COUNT(*)").From(models.Person{}.TableName()).Where(cond)
}

// ActivePermitsByKind counts ACTIVE permits covering ref.
func (s *StatsDB) ActivePermitsByKind(ctx context.Context, ref time.Time) (map[string]int64, error) {
	q := s.sb.Select("kind", "COUNT(*)").
		From(models.TemporaryResidence{}.TableName()).
		Where(sq.And{
			sq.Eq{"status": models.PermitActive},
			sq.LtOrEq{"from_date": ref},
			sq.GtOrEq{"to_date": ref},
		}).
		GroupBy("kind")
	return s.grouped(ctx, q, "permits by kind")
}
