package layout

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func render(t *testing.T, e *Engine) gjson.Result {
	t.Helper()
	out, err := e.JSON()
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(out), "invalid JSON: %s", out)
	return gjson.ParseBytes(out)
}

func values(doc gjson.Result, page int) []string {
	var out []string
	doc.Get("pages." + itoaPage(page) + ".content.text.#.value").ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}

func itoaPage(n int) string { return string(rune('0' + n)) }

func TestEmptyEngineHasOneBlankPage(t *testing.T) {
	doc := render(t, NewEngine())
	assert.Equal(t, "A4P", doc.Get("paper").String())
	assert.Equal(t, "LowerLeft", doc.Get("origin").String())
	assert.True(t, doc.Get("pages.1.content").IsObject(), "create rejects a page without content")
	assert.False(t, doc.Get("pages.2").Exists())
}

func TestRenderMarkdown(t *testing.T) {
	e := NewEngine(WithPaper(Letter))
	src := "# Report\n\nFirst paragraph\ncontinues here.\n\n- apples\n- pears\n\n1. one\n2. two\n\n```\ncode line\n```\n"
	require.NoError(t, e.RenderMarkdown(context.Background(), src))

	doc := render(t, e)
	assert.Equal(t, "LetterP", doc.Get("paper").String())
	got := values(doc, 1)
	assert.Equal(t, []string{"Report", "First paragraph continues here.", "-", "apples", "-", "pears", "1.", "one", "2.", "two", "code line"}, got)

	first := doc.Get("pages.1.content.text.0")
	assert.Equal(t, "Helvetica-Bold", first.Get("font.name").String())
	assert.Equal(t, 24.0, first.Get("font.size").Float())
	assert.Equal(t, 50.0, first.Get("pos.0").Float())
	assert.Less(t, first.Get("pos.1").Float(), 792.0-50)

	code := doc.Get("pages.1.content.text.10")
	assert.Equal(t, "Courier", code.Get("font.name").String())

	// Lines move down the page.
	ys := doc.Get("pages.1.content.text.#.pos.1").Array()
	assert.Greater(t, ys[0].Float(), ys[1].Float())
}

func TestLongTextPaginatesAndWraps(t *testing.T) {
	e := NewEngine(WithPaper(A5), WithMargins(Margins{Top: 40, Bottom: 40, Left: 40, Right: 40}))
	para := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	text := strings.Repeat(para+"\n\n", 8)
	require.NoError(t, e.RenderText(context.Background(), text))

	require.Greater(t, e.Pages(), 1)
	doc := render(t, e)
	for p := 1; p <= e.Pages() && p < 10; p++ {
		doc.Get("pages." + itoaPage(p) + ".content.text").ForEach(func(_, box gjson.Result) bool {
			y := box.Get("pos.1").Float()
			assert.GreaterOrEqual(t, y, 40.0-1, "text below the bottom margin on page %d", p)
			assert.LessOrEqual(t, e.metrics.Width(box.Get("value").String(), 12), A5.Width-80+0.01)
			return true
		})
	}
}

func TestRenderHTML(t *testing.T) {
	e := NewEngine()
	src := `<html><head><title>ignored</title><style>p{}</style></head><body>
		<h2>Title</h2>
		<p>Hello <b>bold</b> world</p>
		<ul><li>one</li><li>two</li></ul>
		<pre>a  b
c</pre>
	</body></html>`
	require.NoError(t, e.RenderHTML(context.Background(), src))

	doc := render(t, e)
	assert.Equal(t, []string{"Title", "Hello bold world", "-", "one", "-", "two", "a  b", "c"}, values(doc, 1))
	assert.Equal(t, 18.0, doc.Get("pages.1.content.text.0.font.size").Float())
	assert.Equal(t, 65.0+15, doc.Get("pages.1.content.text.3.pos.0").Float(), "list text is indented twice")
}

func TestRenderMathML(t *testing.T) {
	e := NewEngine()
	src := `<math><mfrac><mi>x</mi><mrow><mi>y</mi><mo>+</mo><mn>1</mn></mrow></mfrac><mo>=</mo><msqrt><msup><mi>z</mi><mn>2</mn></msup></msqrt></math>`
	require.NoError(t, e.RenderHTML(context.Background(), src))
	assert.Equal(t, []string{"x/(y + 1) = sqrt(z^2)"}, values(render(t, e), 1))
}

func TestRenderLaTeX(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.RenderLaTeX(context.Background(), `E = mc^2`))
	got := strings.Join(values(render(t, e), 1), " ")
	assert.Contains(t, got, "E")
	assert.Contains(t, got, "c^2")
}

func TestRenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEngine()
	assert.ErrorIs(t, e.RenderMarkdown(ctx, "# a\n\nb"), context.Canceled)
	assert.ErrorIs(t, e.RenderHTML(ctx, "<p>a</p>"), context.Canceled)
	assert.ErrorIs(t, e.RenderText(ctx, "a"), context.Canceled)
	assert.Zero(t, e.Pages())
}
