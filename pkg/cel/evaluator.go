package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"leadflow/pkg/models"
)

// Evaluator compiles boolean acceptance expressions over a lead event.
// Variables: lead_id, schema_version, fields (extracted lead fields) and
// payload (the untouched inbound body).
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("lead_id", cel.StringType),
		cel.Variable("schema_version", cel.StringType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateFilterExpression checks that expression compiles to a bool.
func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

// Filter is a compiled acceptance expression. The zero expression accepts
// everything.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		return &Filter{}, nil
	}
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) Expression() string {
	return f.expression
}

func (f *Filter) Accept(ctx context.Context, event *models.LeadEvent) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	vars := map[string]interface{}{
		"lead_id":        event.LeadID,
		"schema_version": event.SchemaVersion,
		"fields":         nonNil(event.Fields),
		"payload":        nonNil(event.SourcePayload),
	}

	result, _, err := f.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	accepted, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return accepted, nil
}

func nonNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
