package route

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the shared CEL environment for route conditions. All
// conditions see the same request attribute declarations.
var (
	celEnvInstance *cel.Env
	celEnvErr      error
	celEnvOnce     sync.Once
)

func celEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnvInstance, celEnvErr = cel.NewEnv(
			cel.Variable("method", cel.StringType),
			cel.Variable("path", cel.StringType),
			cel.Variable("host", cel.StringType),
			cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
			cel.Variable("query", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
	return celEnvInstance, celEnvErr
}

// Condition is a compiled CEL expression evaluated against a request.
// The expression must produce a boolean.
type Condition struct {
	expr    string
	program cel.Program
}

// CompileCondition compiles a CEL route condition.
func CompileCondition(expr string) (*Condition, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build condition program: %w", err)
	}

	return &Condition{expr: expr, program: program}, nil
}

// Evaluate evaluates the condition against the request. Evaluation errors
// count as a non-match and are returned for logging.
func (c *Condition) Evaluate(r *http.Request) (bool, error) {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[strings.ToLower(name)] = r.Header.Get(name)
	}

	rawQuery := r.URL.Query()
	query := make(map[string]string, len(rawQuery))
	for name := range rawQuery {
		query[name] = rawQuery.Get(name)
	}

	out, _, err := c.program.Eval(map[string]interface{}{
		"method":  r.Method,
		"path":    r.URL.Path,
		"host":    r.Host,
		"headers": headers,
		"query":   query,
	})
	if err != nil {
		return false, fmt.Errorf("condition %q evaluation failed: %w", c.expr, err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q produced %T, expected bool", c.expr, out.Value())
	}

	return allowed, nil
}

// String returns the source expression.
func (c *Condition) String() string {
	return c.expr
}
