package renderer

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// MathRenderer turns raw math source into renderable markup. Implementations may fail; the HTML
// renderer treats any failure as "render as literal text" and never propagates it.
type MathRenderer interface {
	RenderMath(source string, display MathDisplay) (string, error)
}

// KatexMarkup emits KaTeX-compatible spans that the page's client-side math library typesets. It
// rejects math source with unbalanced braces up front so obviously broken fragments fall back to
// literal text instead of producing a client-side render error.
type KatexMarkup struct{}

// RenderMath wraps source in the delimiters KaTeX's auto-render extension scans for.
func (KatexMarkup) RenderMath(source string, display MathDisplay) (string, error) {
	if err := checkBalancedBraces(source); err != nil {
		return "", err
	}
	escaped := html.EscapeString(source)
	if display == DisplayBlock {
		return fmt.Sprintf(`<div class="math math-block">$$%s$$</div>`, escaped), nil
	}
	return fmt.Sprintf(`<span class="math math-inline">\(%s\)</span>`, escaped), nil
}

func checkBalancedBraces(source string) error {
	depth := 0
	for _, r := range source {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced closing brace in math source")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced opening brace in math source")
	}
	return nil
}

// HTML projects segment sequences into HTML for the web presentation layer. Plain text segments run
// through goldmark so markdown constructs like lists, links, and fenced code blocks keep working;
// math segments go through the MathRenderer collaborator.
type HTML struct {
	seg  Segmenter
	md   goldmark.Markdown
	math MathRenderer

	logger *slog.Logger
}

// NewHTML creates an HTML renderer with the provided segmentation flags and math collaborator. A nil
// math renderer disables math markup entirely and leaves math source as escaped literal text.
func NewHTML(cfg Config, math MathRenderer, logger *slog.Logger) HTML {
	md := goldmark.New(
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
			),
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
		),
	)
	return HTML{
		seg:    NewSegmenter(cfg),
		md:     md,
		math:   math,
		logger: logger.With(slog.String("module", "renderer")),
	}
}

// Segment exposes the underlying segmentation for callers that do their own presentation.
func (h HTML) Segment(text string) []Segment {
	return h.seg.Segment(text)
}

// Render converts raw message text into HTML. Render failures of individual segments degrade to
// escaped literal text; they never abort rendering of the rest of the message.
func (h HTML) Render(text string) string {
	var sb strings.Builder
	for _, seg := range h.seg.Segment(text) {
		switch seg.Kind {
		case KindHeading:
			sb.WriteString(fmt.Sprintf("<h%d>%s</h%d>", seg.Level, html.EscapeString(seg.Text), seg.Level))
		case KindBold:
			sb.WriteString("<strong>" + html.EscapeString(seg.Text) + "</strong>")
		case KindMath:
			sb.WriteString(h.renderMath(seg))
		case KindText:
			sb.WriteString(h.renderText(seg.Text))
		}
	}
	return sb.String()
}

func (h HTML) renderMath(seg Segment) string {
	if h.math == nil {
		return "<span>" + html.EscapeString(seg.Text) + "</span>"
	}
	markup, err := h.math.RenderMath(seg.Text, seg.Display)
	if err != nil {
		h.logger.Debug("Math render failed, falling back to literal text",
			slog.String("source", seg.Text),
			slog.String("err", err.Error()))
		return "<span>" + html.EscapeString(seg.Text) + "</span>"
	}
	return markup
}

func (h HTML) renderText(text string) string {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		h.logger.Debug("Markdown conversion failed, falling back to literal text",
			slog.String("err", err.Error()))
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}
