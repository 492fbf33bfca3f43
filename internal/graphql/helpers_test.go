package graphql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/carriersync/internal/settings"
	"github.com/tournevent/carriersync/pkg/carrier"
	"github.com/vektah/gqlparser/v2/ast"
)

func TestParseSaveSettingsInput(t *testing.T) {
	input, err := parseSaveSettingsInput(map[string]any{
		"input": map[string]any{"enabled": true, "endpoint": "https://x.example.com", "apiKey": "k"},
	})
	require.NoError(t, err)
	assert.Equal(t, settings.Input{Enabled: true, Endpoint: "https://x.example.com", APIKey: "k"}, input)

	_, err = parseSaveSettingsInput(map[string]any{})
	assert.Error(t, err)
}

func TestProject(t *testing.T) {
	sel := ast.SelectionSet{
		&ast.Field{Alias: "ok", Name: "ok"},
		&ast.Field{Alias: "id", Name: "carrierServiceId"},
		&ast.InlineFragment{SelectionSet: ast.SelectionSet{
			&ast.Field{Alias: "settings", Name: "settings", SelectionSet: ast.SelectionSet{
				&ast.Field{Alias: "shop", Name: "shop"},
			}},
		}},
	}
	value := map[string]any{
		"ok":               true,
		"carrierServiceId": "555",
		"error":            nil,
		"settings":         map[string]any{"shop": "s", "apiKey": "secret"},
	}

	assert.Equal(t, map[string]any{
		"ok":       true,
		"id":       "555",
		"settings": map[string]any{"shop": "s"},
	}, project(sel, value))
	assert.Nil(t, project(sel, map[string]any(nil)))
	assert.Equal(t, true, project(nil, true))
}

func TestToGraphQLError(t *testing.T) {
	path := ast.Path{ast.PathName("saveSettings")}

	gqlErr := toGraphQLError(carrier.NewValidationError("apiKey", "must not be empty when enabled"), path)
	assert.Equal(t, path, gqlErr.Path)
	assert.Equal(t, "apiKey", gqlErr.Extensions["field"])

	gqlErr = toGraphQLError(errors.New("boom"), path)
	assert.Equal(t, "boom", gqlErr.Message)
	assert.Nil(t, gqlErr.Extensions)
}
