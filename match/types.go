package match

// RuleContext carries the bindings a rule expression is evaluated against.
type RuleContext struct {
	// Post is bound as `post`.
	Post map[string]any
	// Args is bound as `args` and holds the filter values of the query.
	Args map[string]any
	// Key is the canonical key of the query the rule was built from. It only
	// labels errors and log events.
	Key string
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Post == nil {
		ctx.Post = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) keyLabel() string {
	if ctx.Key != "" {
		return ctx.Key
	}
	return "unknown"
}

// Evaluator executes rule expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
