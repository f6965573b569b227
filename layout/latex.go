package layout

import (
	"bytes"
	"context"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
)

// RenderLaTeX lays out a display-math LaTeX snippet by converting it to
// MathML first.
func (e *Engine) RenderLaTeX(ctx context.Context, latex string) error {
	md := goldmark.New(goldmark.WithExtensions(treeblood.MathML()))
	var buf bytes.Buffer
	if err := md.Convert([]byte("$$"+latex+"$$"), &buf); err != nil {
		return err
	}
	return e.RenderHTML(ctx, buf.String())
}
