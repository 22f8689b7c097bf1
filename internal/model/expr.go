package model

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// AddExprHook registers a hook whose body is an expr-lang expression rather
// than Go code, so behavior can ship as data. The expression sees spec,
// values, content and original as maps (empty when the timing has none). A
// map result is merged into the write values at before timings and into the
// content at after timings; any other result leaves the pipeline untouched.
func (e *Engine) AddExprHook(slug string, timing Timing, id, src string) error {
	prog, err := expr.Compile(src, expr.Env(map[string]any{
		"spec":     Content{},
		"values":   Content{},
		"content":  Content{},
		"original": Content{},
	}))
	if err != nil {
		return fmt.Errorf("expr hook %s %s/%s: %w", slug, timing, id, err)
	}
	e.hooks.add(slug, timing, id, exprHook(timing, prog))
	return nil
}

func exprHook(timing Timing, prog *vm.Program) HookFunc {
	return func(ctx context.Context, env *Env) (*Env, error) {
		scope := map[string]any{
			"spec":     orEmpty(env.Spec),
			"values":   orEmpty(env.Values),
			"content":  orEmpty(env.Content),
			"original": orEmpty(env.Original),
		}
		out, err := expr.Run(prog, scope)
		if err != nil {
			return nil, err
		}
		result, ok := out.(map[string]any)
		if !ok {
			return env, nil
		}
		switch timing {
		case BeforeCreate, BeforeUpdate, BeforeSave, BeforeDestroy:
			if env.Values == nil {
				env.Values = Content{}
			}
			for k, v := range result {
				env.Values[k] = v
			}
		default:
			if env.Content == nil {
				env.Content = Content{}
			}
			for k, v := range result {
				env.Content[k] = v
			}
		}
		return env, nil
	}
}

func orEmpty(c Content) Content {
	if c == nil {
		return Content{}
	}
	return c
}
