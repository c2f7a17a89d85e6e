package database

const (
	SortCodeAsc       = "code_asc"
	SortCodeNat       = "code_nat"
	SortIssueDateDesc = "issue_date_desc"
	SortIssueDateAsc  = "issue_date_asc"
	SortOwnerAsc      = "owner_asc"
)

const DefaultSortOrder = SortCodeNat

// IsValidSortOrder checks if a string is a valid household sort order
func IsValidSortOrder(order string) bool {
	switch order {
	case SortCodeAsc, SortCodeNat, SortIssueDateDesc, SortIssueDateAsc, SortOwnerAsc:
		return true
	default:
		return false
	}
}

// OrderClause maps a sort order to its SQL ORDER BY clause. SortCodeNat is ordered by code
// in SQL and re-sorted naturally by the caller.
func OrderClause(order string) string {
	switch order {
	case SortIssueDateDesc:
		return "issue_date DESC, id DESC"
	case SortIssueDateAsc:
		return "issue_date ASC, id ASC"
	case SortOwnerAsc:
		return "owner_name ASC, id ASC"
	default:
		return "household_code ASC"
	}
}
