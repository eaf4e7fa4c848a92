package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/szaher/dealerline/internal/llm"
)

var argValidate *validator.Validate

func init() {
	argValidate = validator.New(validator.WithRequiredStructEnabled())
	argValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Param declares one argument in an action's schema.
type Param struct {
	Name        string
	Type        string // JSON schema type; defaults to "string"
	Description string
	Required    bool
	Enum        []string
}

// Handler is the strongly-typed body of an action.
type Handler[A any] func(ctx context.Context, args A, call Call) (Result, error)

type typedAction[A any] struct {
	name        Name
	description string
	params      []Param
	handler     Handler[A]
}

// Define builds an Action whose arguments decode into A and are checked
// against A's `validate` struct tags before handler runs. Decoding or
// validation failures become success:false results.
func Define[A any](name Name, description string, params []Param, handler Handler[A]) Action {
	return &typedAction[A]{name: name, description: description, params: params, handler: handler}
}

func (a *typedAction[A]) Name() Name { return a.name }

func (a *typedAction[A]) Definition() llm.ToolDefinition {
	props := make(map[string]interface{}, len(a.params))
	required := []string{}
	for _, p := range a.params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]interface{}{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolDefinition{
		Name:        string(a.name),
		Description: a.description,
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func (a *typedAction[A]) Execute(ctx context.Context, args map[string]interface{}, call Call) (Result, error) {
	if msg, ok := args["_error"].(string); ok {
		return Fail("invalid arguments: " + msg), nil
	}

	var typed A
	raw, err := json.Marshal(args)
	if err != nil {
		return Fail("invalid arguments: " + err.Error()), nil
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return Fail("invalid arguments: " + err.Error()), nil
	}
	if err := argValidate.Struct(typed); err != nil {
		return Fail(describeValidation(err)), nil
	}
	return a.handler(ctx, typed, call)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid arguments: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "datetime":
			parts = append(parts, fe.Field()+" must be a date in YYYY-MM-DD format")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}
