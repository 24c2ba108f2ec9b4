package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/amberrun/internal/deck"
)

// Block is a `step "<kind>" "<name>"` block handed to a step decoder,
// together with what the decoder needs to read it faithfully.
type Block struct {
	Kind string
	Name string
	Body hcl.Body
	// Src is the content of the file the block came from.
	Src     []byte
	EvalCtx *hcl.EvalContext
	Range   hcl.Range
}

// Decode decodes the block body into a gohcl-tagged struct.
func (b *Block) Decode(target any) error {
	if diags := gohcl.DecodeBody(b.Body, b.EvalCtx, target); diags.HasErrors() {
		return fmt.Errorf("step %q: %w", b.Name, diagsError(diags))
	}
	return nil
}

// Namelist decodes the attributes of body into a namelist called name,
// keeping source order.
func (b *Block) Namelist(ctx context.Context, name string, body hcl.Body) (*deck.Namelist, error) {
	nl := deck.NewNamelist(name)
	if err := b.fillNamelist(ctx, nl, body); err != nil {
		return nil, err
	}
	return nl, nil
}

func (b *Block) fillNamelist(ctx context.Context, nl *deck.Namelist, body hcl.Body) error {
	attrs, diags := orderedAttributes(body)
	if diags.HasErrors() {
		return fmt.Errorf("step %q: namelist %s: %w", b.Name, nl.Name(), diagsError(diags))
	}
	for _, a := range attrs {
		v, err := exprValue(ctx, a.Expr, b.EvalCtx, b.Src)
		if err != nil {
			return fmt.Errorf("step %q: namelist %s: %s: %w", b.Name, nl.Name(), a.Name, err)
		}
		nl.Set(a.Name, v)
	}
	return nil
}
