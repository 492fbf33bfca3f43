package graphql

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
)

//go:embed schema.graphql
var schemaSource string

var schema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSource})

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

// ErrMissingShop is returned when a shop-scoped field is requested without a shop.
var ErrMissingShop = errors.New("missing shop domain")

// Execute validates req against the schema and resolves its top-level fields
// for shop. Mutation fields run one after another in document order.
func (r *Resolver) Execute(ctx context.Context, shop string, req Request) *Response {
	doc, errs := gqlparser.LoadQuery(schema, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return &Response{Errors: gqlerror.List{gqlerror.Errorf("operation %q not found", req.OperationName)}}
	}

	vars, err := validator.VariableValues(schema, op, req.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if !errors.As(err, &gqlErr) {
			gqlErr = gqlerror.Errorf("%s", err.Error())
		}
		return &Response{Errors: gqlerror.List{gqlErr}}
	}

	resp := &Response{Data: make(map[string]any)}
	for _, f := range collectFields(op.SelectionSet) {
		if f.Name == "__typename" {
			resp.Data[f.Alias] = f.ObjectDefinition.Name
			continue
		}

		started := time.Now()
		value, err := r.resolveField(ctx, shop, op.Operation, f, vars)
		r.record(f.Name, err, started)
		if err != nil {
			r.Logger.Ctx(ctx).Debug("GraphQL field failed",
				zap.String("field", f.Name),
				zap.String("shop", shop),
				zap.Error(err),
			)
			resp.Data[f.Alias] = nil
			resp.Errors = append(resp.Errors, toGraphQLError(err, ast.Path{ast.PathName(f.Alias)}))
			continue
		}
		resp.Data[f.Alias] = project(f.SelectionSet, value)
	}
	return resp
}

func (r *Resolver) resolveField(ctx context.Context, shop string, op ast.Operation, f *ast.Field, vars map[string]any) (any, error) {
	if f.Name == "health" {
		return r.Health(ctx)
	}
	if shop == "" {
		return nil, ErrMissingShop
	}

	switch {
	case op == ast.Query && f.Name == "settings":
		return r.ShopSettings(ctx, shop)

	case op == ast.Mutation && f.Name == "saveSettings":
		input, err := parseSaveSettingsInput(f.ArgumentMap(vars))
		if err != nil {
			return nil, err
		}
		return r.SaveSettings(ctx, shop, input)

	case op == ast.Mutation && f.Name == "deactivateCarrierService":
		return r.DeactivateCarrierService(ctx, shop)
	}
	return nil, fmt.Errorf("field %q is not supported on %s", f.Name, op)
}
