package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// QueueTrackerSortFields contains allowed sort fields for queue trackers
var QueueTrackerSortFields = map[string]bool{
	"start_date":    true,
	"end_date":      true,
	"created_at":    true,
	"updated_at":    true,
	"total_data":    true,
	"success_count": true,
	"failed_count":  true,
	"status":        true,
}

// orderClause builds a whitelisted ORDER BY clause. id is appended as a tiebreaker
// so pages stay stable when the sort column has duplicates.
func orderClause(field, dir string, allowed map[string]bool, defaultField string) string {
	field = ValidateSortField(field, allowed, defaultField)
	order := ValidateSortOrder(dir)
	if field == "id" {
		return "id " + order
	}
	return field + " " + order + ", id " + order
}
