package compiler

import (
	"context"
	"fmt"
)

// NestedTool is a provider sub-capability, e.g. one CRM object.
type NestedTool struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	CustomToolID string `db:"custom_tool_id"`
}

// Catalog lists the nested tools a provider exposes.
type Catalog interface {
	NestedTools(ctx context.Context, customToolID string) ([]NestedTool, error)
}

// ToolBindingResolver turns a tool's selected object into the identifier the
// runtime addresses it by.
type ToolBindingResolver struct {
	catalog Catalog
}

func NewToolBindingResolver(catalog Catalog) *ToolBindingResolver {
	return &ToolBindingResolver{catalog: catalog}
}

// Resolve returns the nested tool id when the provider exposes at least two
// nested tools and one is named objectName. Every other case addresses the
// provider itself.
func (r *ToolBindingResolver) Resolve(ctx context.Context, objectName, customToolID string) (string, error) {
	nested, err := r.catalog.NestedTools(ctx, customToolID)
	if err != nil {
		return "", fmt.Errorf("failed to list nested tools of %s: %w", customToolID, err)
	}
	if len(nested) < 2 {
		return customToolID, nil
	}
	for _, n := range nested {
		if n.Name == objectName && n.CustomToolID == customToolID {
			return n.ID, nil
		}
	}
	return customToolID, nil
}
