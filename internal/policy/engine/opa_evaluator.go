package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"unicode/utf8"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const admissionQuery = "data.printrelay.admission"

// Default Rego policy: a message is admitted when no ceiling is set or its length is within it.
const defaultRegoPolicy = `package printrelay.admission

default allow := false

allow if {
	input.limit <= 0
}

allow if {
	input.length <= input.limit
}

reason := "LIMIT_EXCEEDED" if {
	not allow
}
`

// OPAEvaluator evaluates the admission policy using OPA Rego.
type OPAEvaluator struct {
	limit int
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the admission policy. limit is the length ceiling in characters (0 = none).
// policyFile, when set, replaces the built-in policy; it must define package printrelay.admission.
func NewOPAEvaluator(ctx context.Context, limit int, policyFile string) (*OPAEvaluator, error) {
	policy := defaultRegoPolicy
	if policyFile != "" {
		b, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("policy: read %s: %w", policyFile, err)
		}
		policy = string(b)
	}
	compiler, err := ast.CompileModules(map[string]string{"admission.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	query, err := rego.New(
		rego.Query(admissionQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare: %w", err)
	}
	if limit < 0 {
		limit = 0
	}
	return &OPAEvaluator{limit: limit, query: query}, nil
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not touch the configured policy file. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"admission.rego": defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	rs, err := rego.New(
		rego.Query(admissionQuery+".allow"),
		rego.Compiler(compiler),
		rego.Input(buildInput(ChannelWeb, "", 0)),
	).Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// Limit returns the configured length ceiling.
func (e *OPAEvaluator) Limit() int {
	return e.limit
}

// Admit evaluates the admission policy. On evaluation failure it logs and falls back to a
// plain length comparison, so a broken custom policy never disables the ceiling.
func (e *OPAEvaluator) Admit(ctx context.Context, channel, message string) (Admission, error) {
	length := utf8.RuneCountInString(message)
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(channel, message, e.limit)))
	if err != nil {
		log.Printf("policy: admission evaluation failed: %v, using length check", err)
		return e.defaultResult(length), nil
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		log.Printf("policy: admission query returned no result, using length check")
		return e.defaultResult(length), nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return e.defaultResult(length), nil
	}
	out := Admission{Limit: e.limit}
	if v, ok := doc["allow"].(bool); ok {
		out.Allowed = v
	}
	if !out.Allowed {
		out.Reason = ReasonLimitExceeded
		if r, ok := doc["reason"].(string); ok && r != "" {
			out.Reason = r
		}
	}
	return out, nil
}

func buildInput(channel, message string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"channel": channel,
		"length":  utf8.RuneCountInString(message),
		"limit":   limit,
	}
}

func (e *OPAEvaluator) defaultResult(length int) Admission {
	if e.limit > 0 && length > e.limit {
		return Admission{Allowed: false, Reason: ReasonLimitExceeded, Limit: e.limit}
	}
	return Admission{Allowed: true, Limit: e.limit}
}
