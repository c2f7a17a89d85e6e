package repository

import (
	"context"
	"errors"
	"time"

	"github.com/camden-git/civicregistry/models"
	"gorm.io/gorm"
)

// ErrStaleVersion is returned by versioned updates when the row changed since it was read.
var ErrStaleVersion = errors.New("record was modified by another request")

// HouseholdFilter narrows household listings. Zero values mean no filter.
type HouseholdFilter struct {
	Search     string // matched against code and owner name
	DistrictID string
	Ward       string
	Sort       string
	Limit      int
	Offset     int
}

// PersonFilter narrows person listings. Zero values mean no filter.
type PersonFilter struct {
	HouseholdID uint
	Status      string
	Search      string // matched against full name and identity number
	Limit       int
	Offset      int
}

// HistoryFilter narrows household ledger queries. From and To are inclusive.
type HistoryFilter struct {
	HouseholdID *uint
	ChangeType  string
	From        *time.Time
	To          *time.Time
	Limit       int
}

// ResidenceFilter narrows permit listings.
type ResidenceFilter struct {
	Kind     string
	Status   string
	PersonID uint
	Limit    int
	Offset   int
}

// HouseholdRepository defines the methods for household data operations
type HouseholdRepository interface {
	WithTx(tx *gorm.DB) HouseholdRepository

	Create(ctx context.Context, h *models.Household) error
	GetByID(ctx context.Context, id uint) (*models.Household, error)
	GetByIDWithPersons(ctx context.Context, id uint) (*models.Household, error)
	GetByCode(ctx context.Context, code string) (*models.Household, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Household, error)
	List(ctx context.Context, filter HouseholdFilter) ([]models.Household, int64, error)

	// CodeExists reports whether code is taken by a household other than excludeID.
	CodeExists(ctx context.Context, code string, excludeID uint) (bool, error)
	// MaxCode returns the lexicographically greatest code, or ok=false for an empty store.
	MaxCode(ctx context.Context) (code string, ok bool, err error)

	// UpdateVersioned writes h when the stored version equals expected and bumps h.Version.
	UpdateVersioned(ctx context.Context, h *models.Household, expected int) error
	Delete(ctx context.Context, id uint) error
}

// PersonRepository defines the methods for person data operations
type PersonRepository interface {
	WithTx(tx *gorm.DB) PersonRepository

	Create(ctx context.Context, p *models.Person) error
	GetByID(ctx context.Context, id uint) (*models.Person, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.Person, error)
	ListByHousehold(ctx context.Context, householdID uint) ([]models.Person, error)
	List(ctx context.Context, filter PersonFilter) ([]models.Person, int64, error)
	CountByHousehold(ctx context.Context, householdID uint) (int64, error)

	// IdentityNumberExists reports whether number is held by a person other than excludeID.
	IdentityNumberExists(ctx context.Context, number string, excludeID uint) (bool, error)

	Update(ctx context.Context, p *models.Person) error
	Delete(ctx context.Context, id uint) error
}

// HistoryRepository is the append-only ledger store. It exposes no update or delete.
type HistoryRepository interface {
	WithTx(tx *gorm.DB) HistoryRepository

	AppendHousehold(ctx context.Context, entry *models.HouseholdChangeHistory) error
	AppendPerson(ctx context.Context, entry *models.PersonChangeHistory) error

	// QueryHousehold returns entries newest first. With preload set the Household relation
	// is loaded in the same query.
	QueryHousehold(ctx context.Context, filter HistoryFilter, preload bool) ([]models.HouseholdChangeHistory, error)
	ListByPerson(ctx context.Context, personID uint, limit int) ([]models.PersonChangeHistory, error)
	ListByOperation(ctx context.Context, operationID string) ([]models.HouseholdChangeHistory, []models.PersonChangeHistory, error)
}

// ResidenceRepository defines the methods for temporary residence permit data operations
type ResidenceRepository interface {
	Create(ctx context.Context, r *models.TemporaryResidence) error
	GetByID(ctx context.Context, id uint) (*models.TemporaryResidence, error)
	List(ctx context.Context, filter ResidenceFilter) ([]models.TemporaryResidence, int64, error)
	Update(ctx context.Context, r *models.TemporaryResidence) error
	Delete(ctx context.Context, id uint) error

	// ExpireEnded marks ACTIVE permits whose to_date is before ref as EXPIRED.
	ExpireEnded(ctx context.Context, ref time.Time) (int64, error)
}

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	ListAll() ([]models.User, error)
	Count() (int64, error)

	// role management for a user
	AddRoleToUser(userID uint, roleID uint) error
	RemoveRoleFromUser(userID uint, roleID uint) error
	GetUserRoles(userID uint) ([]models.Role, error)

	// direct global permission management for a user
	SetUserGlobalPermissions(userID uint, permissions []string) error
}

// RoleRepository defines the methods for role data operations
type RoleRepository interface {
	Create(role *models.Role) error
	GetByID(id uint) (*models.Role, error)
	GetByName(name string) (*models.Role, error)
	ListAll() ([]models.Role, error)
	Update(role *models.Role) error
	Delete(id uint) error

	// global permission management for a role
	SetRoleGlobalPermissions(roleID uint, permissions []string) error

	// user-Role Management
	FindUsersByRoleID(roleID uint) ([]models.User, error)
	AddUserToRole(userID, roleID uint) error
	RemoveUserFromRole(userID, roleID uint) error
}
