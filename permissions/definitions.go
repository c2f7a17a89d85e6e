package permissions

import "sort"

// Permission keys checked by the router.
const (
	UserCreate = "user.create"
	UserEdit   = "user.edit"
	UserDelete = "user.delete"
	UserList   = "user.list"

	RoleCreate = "role.create"
	RoleEdit   = "role.edit"
	RoleDelete = "role.delete"
	RoleList   = "role.list"

	HouseholdView     = "household.view"
	HouseholdCreate   = "household.create"
	HouseholdEdit     = "household.edit"
	HouseholdDelete   = "household.delete"
	HouseholdSplit    = "household.split"
	HouseholdTransfer = "household.transfer"

	PersonView   = "person.view"
	PersonCreate = "person.create"
	PersonEdit   = "person.edit"
	PersonDelete = "person.delete"

	HistoryView    = "history.view"
	StatisticsView = "statistics.view"

	ResidenceView   = "residence.view"
	ResidenceManage = "residence.manage"
)

// PermissionDefinition describes a single, specific permission
type PermissionDefinition struct {
	Key         string `json:"key"`         // unique key, e.g., "household.split"
	Name        string `json:"name"`        // friendly name, e.g., "Split Household"
	Description string `json:"description"` // what the permission allows
}

// PermissionGroupDefinition groups related permissions
type PermissionGroupDefinition struct {
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Permissions []PermissionDefinition `json:"permissions"`
}

func perm(key, name, description string) PermissionDefinition {
	return PermissionDefinition{Key: key, Name: name, Description: description}
}

// DefinedPermissionGroups holds all statically defined permission groups and their permissions
var DefinedPermissionGroups = []PermissionGroupDefinition{
	{
		Key:         "user",
		Name:        "User Management",
		Description: "Managing clerk and administrator accounts.",
		Permissions: []PermissionDefinition{
			perm(UserCreate, "Create User", "Allows creating new user accounts."),
			perm(UserEdit, "Edit User", "Allows editing accounts, their roles and direct permissions."),
			perm(UserDelete, "Delete User", "Allows deleting user accounts."),
			perm(UserList, "List Users", "Allows viewing user accounts."),
		},
	},
	{
		Key:         "role",
		Name:        "Role Management",
		Description: "Managing roles and the permissions they grant.",
		Permissions: []PermissionDefinition{
			perm(RoleCreate, "Create Role", "Allows creating new roles."),
			perm(RoleEdit, "Edit Role", "Allows editing roles and their members."),
			perm(RoleDelete, "Delete Role", "Allows deleting roles."),
			perm(RoleList, "List Roles", "Allows viewing roles."),
		},
	},
	{
		Key:         "household",
		Name:        "Household Registry",
		Description: "Registering and maintaining households.",
		Permissions: []PermissionDefinition{
			perm(HouseholdView, "View Households", "Allows viewing households and their members."),
			perm(HouseholdCreate, "Register Household", "Allows registering a household with its members."),
			perm(HouseholdEdit, "Edit Household", "Allows editing household details."),
			perm(HouseholdDelete, "Delete Household", "Allows deleting households that have no members."),
			perm(HouseholdSplit, "Split Household", "Allows moving members into a new household."),
			perm(HouseholdTransfer, "Transfer Household", "Allows relocating a household to a new address."),
		},
	},
	{
		Key:         "person",
		Name:        "Residents",
		Description: "Maintaining resident records.",
		Permissions: []PermissionDefinition{
			perm(PersonView, "View Residents", "Allows viewing resident records."),
			perm(PersonCreate, "Add Resident", "Allows adding a resident to a household."),
			perm(PersonEdit, "Edit Resident", "Allows editing residents and recording move-outs and deaths."),
			perm(PersonDelete, "Delete Resident", "Allows removing resident records."),
		},
	},
	{
		Key:         "report",
		Name:        "History and Reports",
		Description: "Read access to the change history and statistics.",
		Permissions: []PermissionDefinition{
			perm(HistoryView, "View Change History", "Allows viewing the household and resident change history."),
			perm(StatisticsView, "View Statistics", "Allows viewing registry statistics."),
		},
	},
	{
		Key:         "residence",
		Name:        "Temporary Residence",
		Description: "Temporary residence and absence permits.",
		Permissions: []PermissionDefinition{
			perm(ResidenceView, "View Permits", "Allows viewing temporary residence and absence permits."),
			perm(ResidenceManage, "Manage Permits", "Allows issuing, editing, revoking and deleting permits."),
		},
	},
}

var (
	allPermissionKeysMap map[string]PermissionDefinition
	allPermissionKeys    []string
)

func init() {
	allPermissionKeysMap = make(map[string]PermissionDefinition)
	for _, group := range DefinedPermissionGroups {
		for _, p := range group.Permissions {
			if _, exists := allPermissionKeysMap[p.Key]; exists {
				panic("duplicate permission key " + p.Key)
			}
			allPermissionKeysMap[p.Key] = p
			allPermissionKeys = append(allPermissionKeys, p.Key)
		}
	}
	sort.Strings(allPermissionKeys)
}

// GetAllPermissionKeys returns a sorted copy of every defined permission key
func GetAllPermissionKeys() []string {
	keys := make([]string, len(allPermissionKeys))
	copy(keys, allPermissionKeys)
	return keys
}

// IsValidPermissionKey checks if a given permission key is defined
func IsValidPermissionKey(key string) bool {
	_, ok := allPermissionKeysMap[key]
	return ok
}

// InvalidKeys returns the keys that are not defined, in input order.
func InvalidKeys(keys []string) []string {
	var bad []string
	for _, k := range keys {
		if !IsValidPermissionKey(k) {
			bad = append(bad, k)
		}
	}
	return bad
}
