package match

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	query "github.com/goliatone/go-query"
)

// Engine names accepted by WithEngine.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// MatcherOption configures a Matcher.
type MatcherOption func(*matcherConfig)

type matcherConfig struct {
	engine        string
	evaluator     Evaluator
	cache         ProgramCache
	functions     *FunctionRegistry
	canonicalizer *query.Canonicalizer
	logger        EvaluatorLogger
}

// WithEngine selects the expression engine. Defaults to EngineExpr.
func WithEngine(name string) MatcherOption {
	return func(cfg *matcherConfig) {
		cfg.engine = strings.ToLower(strings.TrimSpace(name))
	}
}

// WithEvaluator supplies a custom evaluator, bypassing WithEngine.
func WithEvaluator(e Evaluator) MatcherOption {
	return func(cfg *matcherConfig) {
		cfg.evaluator = e
	}
}

// WithProgramCache shares compiled programs across rules.
func WithProgramCache(cache ProgramCache) MatcherOption {
	return func(cfg *matcherConfig) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry adds functions callable from rules. Builtins with the
// same name are shadowed.
func WithFunctionRegistry(registry *FunctionRegistry) MatcherOption {
	return func(cfg *matcherConfig) {
		cfg.functions = registry.Clone()
	}
}

// WithCanonicalizer sets the canonicalizer whose defaults complete queries and
// whose keys label rules.
func WithCanonicalizer(c *query.Canonicalizer) MatcherOption {
	return func(cfg *matcherConfig) {
		cfg.canonicalizer = c
	}
}

// WithEvaluatorLogger attaches an evaluator logger.
func WithEvaluatorLogger(logger EvaluatorLogger) MatcherOption {
	return func(cfg *matcherConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

// Matcher decides locally whether posts satisfy a posts query.
type Matcher struct {
	evaluator     Evaluator
	engine        string
	canonicalizer *query.Canonicalizer
	logger        EvaluatorLogger
}

// NewMatcher builds a Matcher. It fails when the selected engine is unknown or
// not compiled in.
func NewMatcher(opts ...MatcherOption) (*Matcher, error) {
	cfg := matcherConfig{
		engine: EngineExpr,
		logger: noopEvaluatorLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.canonicalizer == nil {
		cfg.canonicalizer = query.NewCanonicalizer()
	}

	registry := cfg.functions
	if registry == nil {
		registry = NewFunctionRegistry()
	}
	registry.Merge(Builtins())

	evaluator := cfg.evaluator
	if evaluator == nil {
		switch cfg.engine {
		case EngineExpr:
			evaluator = NewExprEvaluator(ExprWithProgramCache(cfg.cache), ExprWithFunctionRegistry(registry))
		case EngineCEL:
			evaluator = NewCELEvaluator(CELWithProgramCache(cfg.cache), CELWithFunctionRegistry(registry))
		case EngineJS:
			evaluator = NewJSEvaluator(JSWithProgramCache(cfg.cache), JSWithFunctionRegistry(registry))
		default:
			return nil, fmt.Errorf("match: unknown engine %q", cfg.engine)
		}
	}
	if evaluator == nil {
		return nil, fmt.Errorf("%w: engine %q", ErrNoEvaluator, cfg.engine)
	}

	return &Matcher{
		evaluator:     evaluator,
		engine:        evaluatorEngineName(evaluator),
		canonicalizer: cfg.canonicalizer,
		logger:        cfg.logger,
	}, nil
}

// Rule is a compiled posts query.
type Rule struct {
	Key        string
	Expression string

	args     map[string]any
	compiled CompiledRule
	engine   string
	logger   EvaluatorLogger
}

// Compile translates q, completed with the canonicalizer defaults, into a
// rule. Parameters that are not filters (page, number, order...) are ignored.
func (m *Matcher) Compile(q query.Query) (*Rule, error) {
	key, err := m.canonicalizer.Serialize(q, 0)
	if err != nil {
		return nil, err
	}
	expression, args, err := buildRule(m.canonicalizer.Defaults().Apply(q))
	if err != nil {
		return nil, wrapEvaluationError(m.engine, "", key, err)
	}
	compiled, err := m.evaluator.Compile(expression)
	if err != nil {
		return nil, wrapEvaluationError(m.engine, expression, key, err)
	}
	return &Rule{
		Key:        key,
		Expression: expression,
		args:       args,
		compiled:   compiled,
		engine:     m.engine,
		logger:     m.logger,
	}, nil
}

// Match reports whether post satisfies the rule.
func (r *Rule) Match(post Post) (bool, error) {
	start := time.Now()
	value, err := r.compiled.Evaluate(RuleContext{
		Post: post.binding(),
		Args: r.args,
		Key:  r.Key,
	})
	matched, ok := value.(bool)
	if err == nil && !ok {
		err = ErrNotBoolean
	}
	err = wrapEvaluationError(r.engine, r.Expression, r.Key, err)
	r.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   r.engine,
		Expr:     r.Expression,
		Key:      r.Key,
		PostID:   post.ID,
		Matched:  matched,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

// Filter returns the posts matching q, in their original order.
func (m *Matcher) Filter(q query.Query, posts []Post) ([]Post, error) {
	rule, err := m.Compile(q)
	if err != nil {
		return nil, err
	}
	out := make([]Post, 0, len(posts))
	for _, post := range posts {
		ok, err := rule.Match(post)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, post)
		}
	}
	return out, nil
}

// buildRule emits clauses in a fixed order so queries filtering on the same
// keys share one expression, and therefore one cached program.
func buildRule(q query.Query) (string, map[string]any, error) {
	var clauses []string
	args := map[string]any{}

	if value, ok := q.Get("type"); ok {
		if text := fmt.Sprint(value); text != "any" && text != "" {
			args["type"] = text
			clauses = append(clauses, `post.type == args.type`)
		}
	}
	if value, ok := q.Get("status"); ok {
		if statuses := splitList(value); len(statuses) > 0 && !contains(statuses, "any") {
			list := make([]any, 0, len(statuses))
			for _, status := range statuses {
				list = append(list, status)
			}
			args["status"] = list
			clauses = append(clauses, `call("in_list", post.status, args.status)`)
		}
	}
	if value, ok := q.Get("search"); ok {
		if text, _ := value.(string); text != "" {
			args["search"] = text
			clauses = append(clauses, `(call("contains_fold", post.title, args.search) || call("contains_fold", post.content, args.search))`)
		}
	}
	if value, ok := q.Get("author"); ok && value != nil {
		author, err := toNumber(value)
		if err != nil {
			return "", nil, fmt.Errorf("author: %w", err)
		}
		args["author"] = author
		clauses = append(clauses, `post.author == args.author`)
	}
	if value, ok := q.Get("sticky"); ok {
		switch value {
		case "require":
			clauses = append(clauses, `post.sticky == true`)
		case "exclude":
			clauses = append(clauses, `post.sticky == false`)
		}
	}
	for _, bound := range []string{"after", "before"} {
		value, ok := q.Get(bound)
		if !ok || value == nil || value == "" {
			continue
		}
		text, isText := value.(string)
		if !isText {
			return "", nil, fmt.Errorf("%s: expected date string, got %T", bound, value)
		}
		if _, valid := parseDate(text); !valid {
			return "", nil, fmt.Errorf("%s: invalid date %q", bound, text)
		}
		args[bound] = text
		clauses = append(clauses, fmt.Sprintf(`call(%q, post.date, args.%s)`, bound, bound))
	}

	if len(clauses) == 0 {
		return "true", args, nil
	}
	return strings.Join(clauses, " && "), args, nil
}

func splitList(value any) []string {
	var parts []string
	switch v := value.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	case []string:
		parts = v
	default:
		parts = []string{fmt.Sprint(v)}
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*match.exprEvaluator":
		return EngineExpr
	case "*match.celEvaluator":
		return EngineCEL
	case "*match.jsEvaluator":
		return EngineJS
	default:
		return "custom"
	}
}
