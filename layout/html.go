package layout

import (
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderHTML lays out headings, paragraphs, list items, preformatted
// blocks and MathML. Other elements contribute their text.
func (e *Engine) RenderHTML(ctx context.Context, source string) error {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return err
	}
	return e.walkHTML(ctx, doc, e.Margins.Left)
}

func (e *Engine) walkHTML(ctx context.Context, n *html.Node, x float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch n.Type {
	case html.TextNode:
		if t := collapse(n.Data); t != "" {
			e.paragraph(t, x, fontRegular, e.FontSize)
		}
		return nil
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return nil
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(n.Data[1] - '0')
			e.paragraph(htmlText(n), x, fontBold, e.headingSize(level))
			e.space()
			return nil
		case atom.P:
			e.paragraph(htmlText(n), x, fontRegular, e.FontSize)
			e.space()
			return nil
		case atom.Li:
			e.reserve(e.FontSize * e.LineHeight)
			p := len(e.pages) - 1
			e.pages[p] = append(e.pages[p], textBox{value: "-", x: x, y: e.cursorY - e.FontSize, font: fontRegular, size: e.FontSize})
			e.paragraph(htmlText(n), x+listIndent, fontRegular, e.FontSize)
			return nil
		case atom.Pre:
			for _, l := range strings.Split(strings.Trim(rawText(n), "\n"), "\n") {
				e.line(l, x, fontMono, e.FontSize*0.9)
			}
			e.space()
			return nil
		case atom.Br, atom.Hr:
			e.line("", x, fontRegular, e.FontSize)
			return nil
		case atom.Blockquote, atom.Ul, atom.Ol:
			x += listIndent
		case atom.Math:
			e.paragraph(linearMath(n), x, fontRegular, e.FontSize)
			e.space()
			return nil
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := e.walkHTML(ctx, c, x); err != nil {
			return err
		}
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Ul || n.DataAtom == atom.Ol) {
		e.space()
	}
	return nil
}

// htmlText returns the collapsed text of n, with MathML linearized.
func htmlText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Math:
			sb.WriteString(" " + linearMath(n) + " ")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(sb.String())
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// linearMath writes MathML as a single line of text: x^2, (a)/(b),
// sqrt(x). Annotations are dropped.
func linearMath(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return ""
	}
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p := linearMath(c); p != "" {
			parts = append(parts, p)
		}
	}
	group := func(s string) string {
		if len([]rune(s)) > 1 {
			return "(" + s + ")"
		}
		return s
	}
	switch n.Data {
	case "annotation", "annotation-xml":
		return ""
	case "msup":
		if len(parts) == 2 {
			return parts[0] + "^" + group(parts[1])
		}
	case "msub":
		if len(parts) == 2 {
			return parts[0] + "_" + group(parts[1])
		}
	case "msubsup":
		if len(parts) == 3 {
			return parts[0] + "_" + group(parts[1]) + "^" + group(parts[2])
		}
	case "mfrac":
		if len(parts) == 2 {
			return group(parts[0]) + "/" + group(parts[1])
		}
	case "msqrt":
		return "sqrt(" + strings.Join(parts, "") + ")"
	case "mroot":
		if len(parts) == 2 {
			return "root" + group(parts[1]) + "(" + parts[0] + ")"
		}
	case "mo":
		s := strings.Join(parts, "")
		switch s {
		case "=", "+", "-", "−", "<", ">", "≤", "≥":
			return " " + s + " "
		}
		return s
	}
	return strings.Join(parts, "")
}
