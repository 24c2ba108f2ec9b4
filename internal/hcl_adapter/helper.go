package hcl_adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/amberrun/internal/ctxlog"
	"github.com/vk/amberrun/internal/deck"
	"github.com/zclconf/go-cty/cty"
)

// diagsError keeps every error diagnostic; hcl.Diagnostics.Error reports
// only the first one and a count.
func diagsError(diags hcl.Diagnostics) error {
	return errors.Join(diags.Errs()...)
}

// sourceText returns the bytes an expression occupies in src, or "" when
// the range does not fit.
func sourceText(src []byte, r hcl.Range) string {
	if r.Start.Byte < 0 || r.End.Byte > len(src) || r.Start.Byte >= r.End.Byte {
		return ""
	}
	return string(r.SliceBytes(src))
}

// orderedAttributes returns the attributes of body in source order.
func orderedAttributes(body hcl.Body) ([]*hcl.Attribute, hcl.Diagnostics) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make([]*hcl.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Range.Start.Byte < out[j].Range.Start.Byte
	})
	return out, nil
}

// exprValue evaluates expr into a namelist value. Numbers written with a
// decimal point or an exponent become reals, other whole numbers become
// integers.
func exprValue(ctx context.Context, expr hcl.Expression, evalCtx *hcl.EvalContext, src []byte) (deck.Value, error) {
	if tuple, ok := expr.(*hclsyntax.TupleConsExpr); ok {
		items := make([]deck.Value, 0, len(tuple.Exprs))
		for _, e := range tuple.Exprs {
			v, err := exprValue(ctx, e, evalCtx, src)
			if err != nil {
				return deck.Value{}, err
			}
			items = append(items, v)
		}
		return deck.List(items...), nil
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return deck.Value{}, diags
	}
	return ctyValue(ctx, val, sourceText(src, expr.Range()), expr.Range())
}

func ctyValue(ctx context.Context, val cty.Value, text string, rng hcl.Range) (deck.Value, error) {
	if val.IsNull() || !val.IsKnown() {
		return deck.Value{}, fmt.Errorf("%s: value must be known and not null", rng)
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return deck.Str(val.AsString()), nil
	case ty == cty.Bool:
		return deck.Bool(val.True()), nil
	case ty == cty.Number:
		return numberValue(ctx, val.AsBigFloat(), text, rng)
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var items []deck.Value
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			v, err := ctyValue(ctx, ev, "", rng)
			if err != nil {
				return deck.Value{}, err
			}
			items = append(items, v)
		}
		return deck.List(items...), nil
	}
	return deck.Value{}, fmt.Errorf("%s: unsupported namelist value of type %s", rng, ty.FriendlyName())
}

func numberValue(ctx context.Context, f *big.Float, text string, rng hcl.Range) (deck.Value, error) {
	if !strings.ContainsAny(text, ".eE") && f.IsInt() {
		i, acc := f.Int64()
		if acc == big.Exact {
			return deck.Int(i), nil
		}
		ctxlog.FromContext(ctx).Debug("Integer literal overflows int64, keeping it as a real.", "range", rng.String())
	}
	r, _ := f.Float64()
	return deck.Real(r), nil
}
