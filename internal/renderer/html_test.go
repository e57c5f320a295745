package renderer_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/solverpad/tutor-web-ui/internal/renderer"
)

type failingMath struct{}

func (failingMath) RenderMath(string, renderer.MathDisplay) (string, error) {
	return "", errors.New("boom")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTMLRenderBold(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{}, renderer.KatexMarkup{}, discardLogger())

	got := h.Render("plain **bold** plain")

	assert.Contains(t, got, "<strong>bold</strong>")
}

func TestHTMLRenderHeading(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{}, renderer.KatexMarkup{}, discardLogger())

	got := h.Render("### Topic: details")

	assert.Contains(t, got, "<h3>Topic</h3>")
	assert.Contains(t, got, "details")
}

func TestHTMLRenderMathMarkup(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{Math: true}, renderer.KatexMarkup{}, discardLogger())

	got := h.Render("$$x^2$$ and $y$")

	assert.Contains(t, got, `<div class="math math-block">$$x^2$$</div>`)
	assert.Contains(t, got, `<span class="math math-inline">\(y\)</span>`)
}

func TestHTMLRenderMathFailureFallsBackToLiteral(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{Math: true}, failingMath{}, discardLogger())

	got := h.Render("before $$x^2$$ after")

	assert.Contains(t, got, "<span>x^2</span>")
	assert.Contains(t, got, "before")
	assert.Contains(t, got, "after")
}

func TestHTMLRenderEscapesMarkup(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{}, renderer.KatexMarkup{}, discardLogger())

	got := h.Render("**<script>**")

	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "&lt;script&gt;")
}

func TestKatexMarkupRejectsUnbalancedBraces(t *testing.T) {
	_, err := renderer.KatexMarkup{}.RenderMath(`\frac{1`, renderer.DisplayInline)
	assert.Error(t, err)

	_, err = renderer.KatexMarkup{}.RenderMath(`\frac{1}{2}`, renderer.DisplayInline)
	assert.NoError(t, err)
}

func TestHTMLRenderEmpty(t *testing.T) {
	h := renderer.NewHTML(renderer.Config{Math: true}, renderer.KatexMarkup{}, discardLogger())

	assert.Empty(t, h.Render(""))
}
