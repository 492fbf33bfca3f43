package graphql

import (
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/carriersync/internal/settings"
	"github.com/tournevent/carriersync/internal/store"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

func parseSaveSettingsInput(args map[string]any) (settings.Input, error) {
	var input settings.Input
	data, ok := args["input"].(map[string]any)
	if !ok {
		return input, fmt.Errorf("missing or invalid 'input' argument")
	}

	input.Enabled, _ = data["enabled"].(bool)
	input.Endpoint, _ = data["endpoint"].(string)
	input.APIKey, _ = data["apiKey"].(string)
	return input, nil
}

func settingsToMap(cfg store.ShopConfig) map[string]any {
	var updatedAt any
	if !cfg.UpdatedAt.IsZero() {
		updatedAt = cfg.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"shop":             cfg.Shop,
		"enabled":          cfg.Enabled,
		"endpoint":         cfg.Endpoint,
		"apiKey":           cfg.APIKey,
		"carrierServiceId": optional(cfg.CarrierServiceID),
		"syncStatus":       string(cfg.SyncStatus),
		"lastError":        optional(cfg.LastError),
		"updatedAt":        updatedAt,
	}
}

func failurePayload(err error) map[string]any {
	return map[string]any{
		"ok":               false,
		"carrierServiceId": nil,
		"syncStatus":       nil,
		"cause":            settings.Cause(err),
		"error":            err.Error(),
		"settings":         nil,
	}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isInputError reports whether err was caused by the request rather than by a sync.
func isInputError(err error) bool {
	return errors.Is(err, carrier.ErrValidation)
}

// toGraphQLError converts a resolver error, attaching the offending field of
// validation errors as an extension.
func toGraphQLError(err error, path ast.Path) *gqlerror.Error {
	gqlErr := &gqlerror.Error{Message: err.Error(), Path: path}

	var verr *carrier.ValidationError
	if errors.As(err, &verr) {
		gqlErr.Extensions = map[string]any{
			"code":  "VALIDATION",
			"field": verr.Field,
		}
	}
	return gqlErr
}

// project keeps only the selected fields of a resolved value, under their aliases.
func project(sel ast.SelectionSet, value any) any {
	if len(sel) == 0 || value == nil {
		return value
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if obj == nil {
		return nil
	}

	out := make(map[string]any, len(sel))
	for _, f := range collectFields(sel) {
		if f.Name == "__typename" {
			if f.ObjectDefinition != nil {
				out[f.Alias] = f.ObjectDefinition.Name
			}
			continue
		}
		out[f.Alias] = project(f.SelectionSet, obj[f.Name])
	}
	return out
}

// collectFields flattens fragments into the list of selected fields.
func collectFields(sel ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, s := range sel {
		switch s := s.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				fields = append(fields, collectFields(s.Definition.SelectionSet)...)
			}
		}
	}
	return fields
}
