package logic

import (
	"fmt"
	"strings"

	"github.com/zeusync/npcbrain/internal/core/memory"
)

// RegisterBuiltins registers the stock condition types.
func RegisterBuiltins(r *Registry) {
	r.Register("True", EvaluatorFunc(func(Context) bool { return true }))
	r.Register("False", EvaluatorFunc(func(Context) bool { return false }))
	r.Register("And", andCondition{})
	r.Register("Or", orCondition{})
	r.Register("Not", notCondition{})
	r.Register("VarCmpConst", varCmpConst{})
	r.Register("VarCmpVar", varCmpVar{})
	r.Register("VarSet", varSet{})
	r.Register("Event", eventCondition{})
}

type andCondition struct{}

func (andCondition) Evaluate(ctx Context) bool {
	for _, inner := range ctx.Cond.Inner {
		if !ctx.Registry.Evaluate(inner, ctx.Env) {
			return false
		}
	}
	return true
}

func (andCondition) Sources(ctx Context) []Source { return innerSources(ctx) }

func (andCondition) Text(ctx Context) string { return joinInner(ctx, " and ") }

type orCondition struct{}

func (orCondition) Evaluate(ctx Context) bool {
	for _, inner := range ctx.Cond.Inner {
		if ctx.Registry.Evaluate(inner, ctx.Env) {
			return true
		}
	}
	return false
}

func (orCondition) Sources(ctx Context) []Source { return innerSources(ctx) }

func (orCondition) Text(ctx Context) string { return joinInner(ctx, " or ") }

type notCondition struct{}

func (notCondition) Evaluate(ctx Context) bool {
	if len(ctx.Cond.Inner) == 0 {
		return true
	}
	return !ctx.Registry.Evaluate(ctx.Cond.Inner[0], ctx.Env)
}

func (notCondition) Sources(ctx Context) []Source { return innerSources(ctx) }

func (notCondition) Text(ctx Context) string {
	if len(ctx.Cond.Inner) == 0 {
		return "not()"
	}
	return "not " + ctx.Registry.Text(ctx.Cond.Inner[0])
}

// varCmpConst compares a variable against a literal: {left, op, right}.
type varCmpConst struct{}

func (varCmpConst) Evaluate(ctx Context) bool {
	left, ok := lookupVar(ctx.Env, ctx.Cond.Param("left"))
	if !ok {
		return false
	}
	right, ok := ctx.Cond.Params["right"]
	if !ok {
		return false
	}
	return Compare(left, ctx.Cond.Param("op"), right)
}

func (varCmpConst) Sources(ctx Context) []Source {
	return []Source{{Var: memory.K(ctx.Cond.Param("left"))}}
}

func (varCmpConst) Text(ctx Context) string {
	right, ok := ctx.Cond.Params["right"]
	if !ok {
		return ctx.Cond.Param("left") + ctx.Cond.Param("op") + "<MISSING>"
	}
	return fmt.Sprintf("%s%s%v", ctx.Cond.Param("left"), ctx.Cond.Param("op"), right)
}

// varCmpVar compares two variables: {left, op, right}.
type varCmpVar struct{}

func (varCmpVar) Evaluate(ctx Context) bool {
	left, ok := lookupVar(ctx.Env, ctx.Cond.Param("left"))
	if !ok {
		return false
	}
	right, ok := lookupVar(ctx.Env, ctx.Cond.Param("right"))
	if !ok {
		return false
	}
	return Compare(left, ctx.Cond.Param("op"), right)
}

func (varCmpVar) Sources(ctx Context) []Source {
	return []Source{
		{Var: memory.K(ctx.Cond.Param("left"))},
		{Var: memory.K(ctx.Cond.Param("right"))},
	}
}

func (varCmpVar) Text(ctx Context) string {
	return ctx.Cond.Param("left") + ctx.Cond.Param("op") + ctx.Cond.Param("right")
}

// varSet is true when {key} exists in agent or session memory.
type varSet struct{}

func (varSet) Evaluate(ctx Context) bool {
	_, ok := lookupVar(ctx.Env, ctx.Cond.Param("key"))
	return ok
}

func (varSet) Sources(ctx Context) []Source {
	return []Source{{Var: memory.K(ctx.Cond.Param("key"))}}
}

// eventCondition becomes true once {event} has been published to the agent's
// topic while subscribed. The flag lives in working memory and stays set until
// something clears it.
type eventCondition struct{}

func (eventCondition) Evaluate(ctx Context) bool {
	if ctx.Env.Local == nil {
		return false
	}
	v, ok := ctx.Env.Local.TryGet(EventFlag(ctx.Cond.Param("event")))
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (eventCondition) Sources(ctx Context) []Source {
	return []Source{{Event: ctx.Cond.Param("event")}}
}

func (eventCondition) Text(ctx Context) string {
	return "event " + ctx.Cond.Param("event")
}

func innerSources(ctx Context) []Source {
	var out []Source
	for _, inner := range ctx.Cond.Inner {
		out = append(out, ctx.Registry.Sources(inner)...)
	}
	return out
}

func joinInner(ctx Context, sep string) string {
	parts := make([]string, len(ctx.Cond.Inner))
	for i, inner := range ctx.Cond.Inner {
		parts[i] = ctx.Registry.Text(inner)
	}
	return "(" + strings.Join(parts, sep) + ")"
}
