package service

import "strings"

var allowedOrderBy = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"size":       "size",
	"id":         "id",
}

// orderClause turns a client sort key into a safe ORDER BY; unknown keys keep insertion order.
func orderClause(orderBy string, desc bool) string {
	column := allowedOrderBy[strings.ToLower(strings.TrimSpace(orderBy))]
	if column == "" {
		column = "id"
	}
	if desc {
		return column + " DESC, id DESC"
	}
	return column + " ASC, id ASC"
}
