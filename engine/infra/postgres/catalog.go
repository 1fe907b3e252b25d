package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/captep/studio/engine/compiler"
	"github.com/georgysavva/scany/v2/pgxscan"
)

// CatalogRepo reads the nested tools providers expose.
type CatalogRepo struct {
	db DB
}

func NewCatalogRepo(db DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) NestedTools(ctx context.Context, customToolID string) ([]compiler.NestedTool, error) {
	query, args, err := psql.Select("id", "name", "custom_tool_id").
		From("custom_nested_tools").
		Where(squirrel.Eq{"custom_tool_id": customToolID}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building nested tool query: %w", err)
	}
	var tools []compiler.NestedTool
	if err := pgxscan.Select(ctx, r.db, &tools, query, args...); err != nil {
		return nil, fmt.Errorf("scanning nested tools: %w", err)
	}
	return tools, nil
}
