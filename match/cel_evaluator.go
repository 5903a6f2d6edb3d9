package match

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// CELEvaluatorOption configures the CEL evaluator.
type CELEvaluatorOption func(*celEvaluator)

// CELWithProgramCache wires a ProgramCache into the CEL evaluator.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(e *celEvaluator) {
		e.cache = cache
	}
}

// CELWithFunctionRegistry wires a FunctionRegistry into the CEL evaluator.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(e *celEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// maxCallArgs bounds the `call` overloads declared to CEL, which has no
// variadic functions.
const maxCallArgs = 3

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	e := &celEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(program, ctx, expression)
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celCompiledRule{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *celEvaluator) run(program celgo.Program, ctx RuleContext, expression string) (any, error) {
	ctx = ctx.withDefaultMaps()
	out, _, err := program.Eval(map[string]any{
		"post": ctx.Post,
		"args": ctx.Args,
	})
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.keyLabel(), err)
	}
	return out.Value(), nil
}

// cacheKey includes the registry identity: CEL programs bind `call` at
// compile time, so a program is only valid for the registry that built it.
func (e *celEvaluator) cacheKey(expression string) string {
	return fmt.Sprintf("cel:%p:%s", e.registry, expression)
}

func (e *celEvaluator) loadOrCompile(expression string) (celgo.Program, error) {
	key := e.cacheKey(expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv()
	if err != nil {
		return nil, wrapEvaluatorError("cel", err)
	}
	checked, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, "", issues.Err())
	}
	program, err := env.Program(checked)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, "", err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv() (*celgo.Env, error) {
	overloads := make([]celgo.FunctionOpt, 0, maxCallArgs)
	for arity := 1; arity <= maxCallArgs; arity++ {
		argTypes := []*celgo.Type{celgo.StringType}
		for i := 0; i < arity; i++ {
			argTypes = append(argTypes, celgo.DynType)
		}
		overloads = append(overloads, celgo.Overload(
			fmt.Sprintf("call_string_dyn%d", arity),
			argTypes,
			celgo.DynType,
			celgo.FunctionBinding(e.callBinding()),
		))
	}
	return celgo.NewEnv(
		celgo.Variable("post", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("args", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Function("call", overloads...),
	)
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	program    celgo.Program
	expression string
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(r.program, ctx, r.expression)
}

func (e *celEvaluator) callBinding() func(values ...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if e.registry == nil {
			return types.NewErr("match: function registry not configured")
		}
		if len(values) == 0 {
			return types.NewErr("match: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("match: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, nativeValue(val))
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

// nativeValue unwraps CEL lists into []any so registry functions see plain Go
// values.
func nativeValue(val ref.Val) any {
	if list, ok := val.(traits.Lister); ok {
		size, _ := list.Size().Value().(int64)
		out := make([]any, 0, size)
		for i := int64(0); i < size; i++ {
			out = append(out, nativeValue(list.Get(types.Int(i))))
		}
		return out
	}
	return val.Value()
}
