package layout

import (
	"context"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const listIndent = 15.0

// RenderMarkdown lays out CommonMark source: headings, paragraphs, nested
// lists, block quotes, code blocks and thematic breaks.
func (e *Engine) RenderMarkdown(ctx context.Context, source string) error {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	return e.walkMarkdown(ctx, doc, src, e.Margins.Left)
}

func (e *Engine) walkMarkdown(ctx context.Context, parent ast.Node, src []byte, x float64) error {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch n := n.(type) {
		case *ast.Heading:
			e.paragraph(inlineText(n, src), x, fontBold, e.headingSize(n.Level))
			e.space()
		case *ast.Paragraph, *ast.TextBlock:
			e.paragraph(inlineText(n, src), x, fontRegular, e.FontSize)
			e.space()
		case *ast.List:
			if err := e.renderList(ctx, n, src, x); err != nil {
				return err
			}
			e.space()
		case *ast.Blockquote:
			if err := e.walkMarkdown(ctx, n, src, x+listIndent); err != nil {
				return err
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				e.line(strings.TrimRight(string(seg.Value(src)), "\r\n"), x, fontMono, e.FontSize*0.9)
			}
			e.space()
		case *ast.ThematicBreak:
			e.line("", x, fontRegular, e.FontSize)
		case *ast.HTMLBlock:
			// Raw HTML is not interpreted inside Markdown.
		default:
			if err := e.walkMarkdown(ctx, n, src, x); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) renderList(ctx context.Context, list *ast.List, src []byte, x float64) error {
	num := list.Start
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "-"
		if list.IsOrdered() {
			marker = strconv.Itoa(num) + "."
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.List:
				if err := e.renderList(ctx, c, src, x+listIndent); err != nil {
					return err
				}
			default:
				if first {
					e.reserve(e.FontSize * e.LineHeight)
					p := len(e.pages) - 1
					e.pages[p] = append(e.pages[p], textBox{value: marker, x: x, y: e.cursorY - e.FontSize, font: fontRegular, size: e.FontSize})
					first = false
				}
				e.paragraph(inlineText(c, src), x+listIndent, fontRegular, e.FontSize)
			}
		}
	}
	return nil
}

// inlineText flattens the inline children of a block, turning line breaks
// into spaces.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				sb.Write(c.Segment.Value(src))
				if c.SoftLineBreak() || c.HardLineBreak() {
					sb.WriteByte(' ')
				}
			case *ast.String:
				sb.Write(c.Value)
			case *ast.AutoLink:
				sb.Write(c.URL(src))
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
