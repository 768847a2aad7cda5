package charge

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Matcher filters rules down to those whose structured conditions
// match a transaction. Structured conditions are a required
// transaction type (exact, case-sensitive) and an inclusive
// [min, max] amount window; a rule may additionally carry a CEL guard
// expression over transaction attributes.
type Matcher struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// NewMatcher creates a matcher with the CEL guard environment.
func NewMatcher() (*Matcher, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("customer_type", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Matcher{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Matches reports whether the rule's conditions match the
// transaction. A rule with no conditions matches every transaction in
// its category; that is intentional for category-wide flat fees.
func (m *Matcher) Matches(rule *domain.ChargeRule, req *domain.TransactionRequest, customer *domain.Customer) bool {
	if want := rule.Conditions.TransactionType; want != "" && want != req.Type {
		return false
	}
	if rule.MinAmount != nil && req.Amount < *rule.MinAmount {
		return false
	}
	if rule.MaxAmount != nil && req.Amount > *rule.MaxAmount {
		return false
	}
	if rule.Conditions.Expression != "" {
		return m.guardPasses(rule, req, customer)
	}
	return true
}

// guardPasses evaluates the rule's CEL guard. A compile or eval
// failure means "no match": the rule is skipped and the failure
// logged, never surfaced to the caller.
func (m *Matcher) guardPasses(rule *domain.ChargeRule, req *domain.TransactionRequest, customer *domain.Customer) bool {
	program, err := m.program(rule)
	if err != nil {
		slog.Warn("rule guard compilation failed",
			"rule_code", rule.Code,
			"error", err,
		)
		return false
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	out, _, err := program.Eval(map[string]any{
		"amount":        req.Amount,
		"currency":      req.Currency,
		"tx_type":       req.Type,
		"channel":       req.Channel,
		"customer_type": string(customer.Type),
		"metadata":      metadata,
	})
	if err != nil {
		slog.Warn("rule guard evaluation failed",
			"rule_code", rule.Code,
			"tx_id", req.ID,
			"error", err,
		)
		return false
	}

	pass, ok := out.(types.Bool)
	return ok && bool(pass)
}

// program returns the compiled guard for a rule, compiling and
// caching it on first use. The cache key includes the expression so
// rule edits recompile.
func (m *Matcher) program(rule *domain.ChargeRule) (cel.Program, error) {
	key := rule.ID + "\x00" + rule.Conditions.Expression

	m.mu.RLock()
	program, ok := m.programs[key]
	m.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := m.env.Compile(rule.Conditions.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile guard for rule %s: %w", rule.Code, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: guard must return bool, got %s", rule.Code, ast.OutputType())
	}

	program, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard program for rule %s: %w", rule.Code, err)
	}

	m.mu.Lock()
	m.programs[key] = program
	m.mu.Unlock()

	return program, nil
}
