// Package expr evaluates template interpolation in workflow strings. Step
// commands, runs_on labels, and action arguments may reference the current
// leg's matrix values and environment, e.g. "artifact-${matrix.os}.tar".
package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Scope builds the evaluation context exposed to workflow templates. The
// "matrix" object holds the current leg's axis values; "env" holds the merged
// environment for the leg.
func Scope(matrix, env map[string]string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"matrix": stringMapVal(matrix),
			"env":    stringMapVal(env),
		},
	}
}

// Eval renders a template string against the given scope. Plain strings pass
// through unchanged; an unresolvable reference is an error naming the
// template so diagnostics point at the offending workflow element.
func Eval(template string, evalCtx *hcl.EvalContext) (string, error) {
	e, diags := hclsyntax.ParseTemplate([]byte(template), "<inline>", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("invalid template %q: %w", template, diags)
	}

	val, diags := e.Value(evalCtx)
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating template %q: %w", template, diags)
	}

	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("template %q did not produce a string: %w", template, err)
	}
	if val.IsNull() {
		return "", fmt.Errorf("template %q produced a null value", template)
	}
	return val.AsString(), nil
}

// EvalMap renders every value of a string map against the given scope.
func EvalMap(in map[string]string, evalCtx *hcl.EvalContext) (map[string]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		rendered, err := Eval(v, evalCtx)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func stringMapVal(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}
