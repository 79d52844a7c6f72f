package service

import (
	"Cabinet/internal/repo"
	"Cabinet/model"
	"context"
	"strings"
)

const maxSearchResults = 200

type SearchFilesInput struct {
	Query string
	// nil searches everywhere, 0 only the root level.
	ParentID *uint64
	OrderBy  string
	Desc     bool
	Limit    int
}

// "!" escapes LIKE wildcards; a backslash would need quoting differently in MySQL and SQLite.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// SearchFiles finds the caller's files whose name contains Query.
func SearchFiles(ctx context.Context, ownerID uint64, in SearchFilesInput) ([]model.UserFile, error) {
	q := strings.TrimSpace(in.Query)
	if q == "" {
		return nil, ErrInvalidArgument
	}
	limit := in.Limit
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	query := repo.Db.WithContext(ctx).Model(&model.UserFile{}).
		Where("owner_id = ?", ownerID).
		Where("name LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(q)+"%")
	if in.ParentID != nil {
		if *in.ParentID == 0 {
			query = query.Where("parent_id IS NULL")
		} else {
			query = query.Where("parent_id = ?", *in.ParentID)
		}
	}

	files := make([]model.UserFile, 0)
	err := query.Order(orderClause(in.OrderBy, in.Desc)).Limit(limit).Find(&files).Error
	return files, err
}
