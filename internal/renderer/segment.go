package renderer

import (
	"regexp"
	"strings"
)

// Kind identifies the type of a display segment.
type Kind string

const (
	// KindText is a run of plain body text.
	KindText Kind = "text"
	// KindBold is a run of emphasized text taken from between a matched pair of ** markers.
	KindBold Kind = "bold"
	// KindHeading is a heading line, either a ### heading or a numbered "1. Label:" heading.
	KindHeading Kind = "heading"
	// KindMath is a math expression whose Text holds the raw delimiter-free source.
	KindMath Kind = "math"
)

// MathDisplay selects between inline and block presentation of a math segment.
type MathDisplay string

const (
	DisplayInline MathDisplay = "inline"
	DisplayBlock  MathDisplay = "block"
)

// Segment is one typed unit of renderable content derived from a message's raw text. Segments are
// recomputed on every render and never stored back onto a message.
type Segment struct {
	Kind Kind
	Text string

	// Level is only meaningful for heading segments.
	Level int
	// Display is only meaningful for math segments.
	Display MathDisplay
}

// Config carries the rendering feature flags. The same segmentation code serves every page variant;
// only these flags and the system prompt differ between deployments.
type Config struct {
	// Math enables recognition of $$, $, \( and \[ math delimiters.
	Math bool
	// NumberedHeadings enables the secondary "1. Label:" heading pattern.
	NumberedHeadings bool
}

// Segmenter converts raw message text into an ordered sequence of display segments. It is a pure
// function of its input: the same text always yields the same segments, and segmenting a longer
// streamed prefix only extends the previously produced sequence.
type Segmenter struct {
	cfg Config
}

// NewSegmenter creates a Segmenter with the provided feature flags.
func NewSegmenter(cfg Config) Segmenter {
	return Segmenter{cfg: cfg}
}

type mathDelim struct {
	open    string
	close   string
	display MathDisplay
}

// Ordered so that $$ is tried before $ when both open at the same position.
var mathDelims = []mathDelim{
	{open: "$$", close: "$$", display: DisplayBlock},
	{open: `\[`, close: `\]`, display: DisplayBlock},
	{open: `\(`, close: `\)`, display: DisplayInline},
	{open: "$", close: "$", display: DisplayInline},
}

var numberedHeadingPattern = regexp.MustCompile(`^\s*(\d+)\.\s*([^:]+):`)

// Segment splits text into plain, bold, heading, and math segments, preserving the original
// left-to-right order of appearance. Empty input yields no segments.
func (s Segmenter) Segment(text string) []Segment {
	if text == "" {
		return nil
	}

	var segs []Segment
	if !s.cfg.Math {
		return append(segs, s.segmentPlain(text)...)
	}

	rest := text
	for rest != "" {
		idx, delim := findMathRun(rest)
		if idx < 0 {
			// No matched delimiter pair remains; unterminated delimiters degrade to plain text.
			segs = append(segs, s.segmentPlain(rest)...)
			break
		}

		segs = append(segs, s.segmentPlain(rest[:idx])...)

		inner := rest[idx+len(delim.open):]
		end := strings.Index(inner, delim.close)
		source := inner[:end]
		if strings.TrimSpace(source) != "" {
			segs = append(segs, Segment{Kind: KindMath, Text: source, Display: delim.display})
		} else {
			// An empty math run stays literal rather than vanishing.
			segs = append(segs, s.segmentPlain(delim.open+source+delim.close)...)
		}
		rest = inner[end+len(delim.close):]
	}
	return segs
}

// findMathRun locates the earliest opening math delimiter in text that also has a matching closing
// delimiter. It returns -1 when no complete math run remains.
func findMathRun(text string) (int, mathDelim) {
	best := -1
	var bestDelim mathDelim
	for _, d := range mathDelims {
		idx := strings.Index(text, d.open)
		if idx < 0 {
			continue
		}
		if !strings.Contains(text[idx+len(d.open):], d.close) {
			continue
		}
		if best == -1 || idx < best {
			best = idx
			bestDelim = d
		}
	}
	return best, bestDelim
}

// segmentPlain splits a math-free run into heading, bold, and plain segments, line by line.
// Whitespace-only lines are dropped.
func (s Segmenter) segmentPlain(text string) []Segment {
	var segs []Segment
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if after, ok := strings.CutPrefix(line, "###"); ok {
			title, body := splitHeadingLine(after)
			if title != "" {
				segs = append(segs, Segment{Kind: KindHeading, Text: title, Level: 3})
			}
			if body != "" {
				segs = append(segs, segmentBold(body)...)
			}
			continue
		}

		if s.cfg.NumberedHeadings {
			if m := numberedHeadingPattern.FindStringSubmatch(line); m != nil {
				title := m[1] + ". " + strings.TrimSpace(m[2])
				segs = append(segs, Segment{Kind: KindHeading, Text: title, Level: 4})
				if body := strings.TrimSpace(line[len(m[0]):]); body != "" {
					segs = append(segs, segmentBold(body)...)
				}
				continue
			}
		}

		segs = append(segs, segmentBold(line)...)
	}
	return segs
}

// splitHeadingLine separates a ### heading's title, which runs up to the next colon or the end of
// the line, from the remainder of that line.
func splitHeadingLine(line string) (string, string) {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:])
	}
	return strings.TrimSpace(line), ""
}

// segmentBold splits a single line into alternating plain and bold segments. An unmatched trailing
// ** marker is kept as literal plain text.
func segmentBold(line string) []Segment {
	var segs []Segment
	rest := line
	for {
		open := strings.Index(rest, "**")
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open+2:], "**")
		if closing < 0 {
			break
		}

		if rest[:open] != "" {
			segs = append(segs, Segment{Kind: KindText, Text: rest[:open]})
		}
		if inner := rest[open+2 : open+2+closing]; inner != "" {
			segs = append(segs, Segment{Kind: KindBold, Text: inner})
		} else {
			// "****" carries no emphasized content and stays literal.
			segs = append(segs, Segment{Kind: KindText, Text: "****"})
		}
		rest = rest[open+4+closing:]
	}
	if rest != "" {
		segs = append(segs, Segment{Kind: KindText, Text: rest})
	}
	return segs
}
