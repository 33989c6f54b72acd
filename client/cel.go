package client

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/google/cel-go/cel"

	"github.com/apiharness/sdk/apierr"
	"github.com/apiharness/sdk/types"
)

// Assertion is a compiled CEL predicate over a completed response. Three
// variables are bound at evaluation time:
//
//	status  int               the HTTP status code
//	headers map[string]string the response headers (first value per name)
//	body    dyn               the JSON-decoded body, or null
//
// Example expressions:
//
//	status == 200
//	body.items.size() > 0
//	headers["Content-Type"].startsWith("application/json")
type Assertion struct {
	expr    string
	program cel.Program
}

// CompileAssertion compiles a CEL expression into a reusable assertion.
// The expression must evaluate to a boolean.
func CompileAssertion(expr string) (*Assertion, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.IntType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("body", cel.DynType),
	)
	if err != nil {
		return nil, apierr.NewValidationError("client.CompileAssertion",
			fmt.Errorf("building assertion environment: %w", err))
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, apierr.NewValidationError("client.CompileAssertion",
			fmt.Errorf("compiling %q: %w", expr, issues.Err()))
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, apierr.NewValidationError("client.CompileAssertion",
			fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType()))
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, apierr.NewValidationError("client.CompileAssertion",
			fmt.Errorf("planning %q: %w", expr, err))
	}

	return &Assertion{expr: expr, program: program}, nil
}

// Expr returns the source expression.
func (a *Assertion) Expr() string {
	return a.expr
}

// Assert evaluates the assertion against the response and fails with a
// validation error when the predicate is false.
func (a *Assertion) Assert(resp *types.Response) error {
	if resp == nil {
		return apierr.NewValidationError("client.Assertion.Assert",
			fmt.Errorf("no response to assert on"))
	}

	headers := make(map[string]string, len(resp.Headers))
	for name := range resp.Headers {
		headers[name] = resp.Headers.Get(name)
	}

	var body any
	if len(resp.Body) > 0 {
		if err := sonic.Unmarshal(resp.Body, &body); err != nil {
			// Non-JSON bodies are exposed as raw strings.
			body = string(resp.Body)
		}
	}

	out, _, err := a.program.Eval(map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    body,
	})
	if err != nil {
		return apierr.NewValidationError("client.Assertion.Assert",
			fmt.Errorf("evaluating %q: %w", a.expr, err))
	}

	ok, isBool := out.Value().(bool)
	if !isBool {
		return apierr.NewValidationError("client.Assertion.Assert",
			fmt.Errorf("expression %q produced %T, want bool", a.expr, out.Value()))
	}
	if !ok {
		return apierr.NewValidationError("client.Assertion.Assert",
			fmt.Errorf("assertion %q failed for status %d", a.expr, resp.StatusCode))
	}
	return nil
}
