// internal/service/fulfillment/infrastructure/cel_rule_engine.go
package infrastructure

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"atlas/internal/service/fulfillment/domain"
)

// CelRuleEngine 用 CEL 表达式对 RuleFact 求值，实现 domain.RuleEngine。
// 表达式来自租户配置，编译结果按表达式文本缓存，同一条规则只编译一次。
type CelRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelRuleEngine 创建规则引擎，声明事实对象暴露给表达式的全部变量。
func NewCelRuleEngine() (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("variantIds", cel.ListType(cel.StringType)),
		cel.Variable("categoryIds", cel.ListType(cel.StringType)),
		cel.Variable("customerId", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	return &CelRuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Evaluate 对一条表达式求值。非布尔结果视为配置错误。
func (e *CelRuleEngine) Evaluate(expression string, fact domain.RuleFact) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	variantIDs := fact.VariantIDs
	if variantIDs == nil {
		variantIDs = []string{}
	}
	categoryIDs := fact.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []string{}
	}

	out, _, err := program.Eval(map[string]interface{}{
		"subtotal":    fact.Subtotal,
		"quantity":    int64(fact.Quantity),
		"variantIds":  variantIDs,
		"categoryIds": categoryIDs,
		"customerId":  fact.CustomerID,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", expression)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule %q evaluated to %T, want bool", expression, out.Value())
	}
	return result, nil
}

func (e *CelRuleEngine) compile(expression string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile rule %q", expression)
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", expression)
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}
