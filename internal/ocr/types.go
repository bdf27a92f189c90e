/**
 * Shared data model for the OCR engine
 *
 * The recognition hierarchy is word -> line -> paragraph -> block -> page,
 * coarsest to finest the other way around. Every level carries its own
 * confidence (0-100) and a pixel-space bounding box.
 */

package ocr

// BlockType classifies a top-level text block.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockHeading BlockType = "heading"
	BlockList    BlockType = "list"
	BlockTable   BlockType = "table"
	BlockImage   BlockType = "image"
	BlockUnknown BlockType = "unknown"
)

// BoundingBox is an axis-aligned rectangle in pixel coordinates.
// Width and Height are never negative.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewBoundingBox builds a box from engine-reported corner coordinates.
func NewBoundingBox(x0, y0, x1, y1 int) BoundingBox {
	w := x1 - x0
	h := y1 - y0
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return BoundingBox{X: x0, Y: y0, Width: w, Height: h}
}

// IsZero reports whether the box is the zero value.
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// Union returns the smallest box enclosing both b and o. A zero box is
// treated as empty rather than as a rectangle at the origin.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b.IsZero() {
		return o
	}
	if o.IsZero() {
		return b
	}
	x0 := min(b.X, o.X)
	y0 := min(b.Y, o.Y)
	x1 := max(b.X+b.Width, o.X+o.Width)
	y1 := max(b.Y+b.Height, o.Y+o.Height)
	return NewBoundingBox(x0, y0, x1, y1)
}

// TextWord is the finest recognition unit.
type TextWord struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Bounds     BoundingBox `json:"bounds"`
}

// TextLine is an ordered sequence of words on one visual line.
type TextLine struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Bounds     BoundingBox `json:"bounds"`
	Words      []TextWord  `json:"words"`
}

// TextParagraph is an ordered sequence of lines.
type TextParagraph struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Bounds     BoundingBox `json:"bounds"`
	Lines      []TextLine  `json:"lines"`
}

// TextBlock is a top-level layout unit carrying a classification tag.
type TextBlock struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Bounds     BoundingBox     `json:"bounds"`
	Type       BlockType       `json:"type"`
	Paragraphs []TextParagraph `json:"paragraphs"`
}

// Lines returns every line in the block in paragraph order.
func (b *TextBlock) Lines() []TextLine {
	var lines []TextLine
	for _, p := range b.Paragraphs {
		lines = append(lines, p.Lines...)
	}
	return lines
}

// PageInfo describes one processed page.
type PageInfo struct {
	PageNumber  int    `json:"pageNumber"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation string `json:"orientation"`
}

// Orientation derives page orientation from its dimensions.
func Orientation(width, height int) string {
	if width > height {
		return "landscape"
	}
	return "portrait"
}

// OCRResult is the immutable outcome of processing one image.
type OCRResult struct {
	Text             string      `json:"text"`
	Confidence       float64     `json:"confidence"`
	Blocks           []TextBlock `json:"blocks"`
	Pages            []PageInfo  `json:"pages"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
}

// ProgressStatus enumerates the phases of an end-to-end recognition job.
type ProgressStatus string

const (
	StatusInitializing ProgressStatus = "initializing"
	StatusLoading      ProgressStatus = "loading"
	StatusProcessing   ProgressStatus = "processing"
	StatusRecognizing  ProgressStatus = "recognizing"
	StatusComplete     ProgressStatus = "complete"
	StatusError        ProgressStatus = "error"
)

// ProgressInfo is emitted on every phase transition. It is never persisted.
type ProgressInfo struct {
	Status      ProgressStatus `json:"status"`
	Progress    float64        `json:"progress"`
	Page        int            `json:"page,omitempty"`
	TotalPages  int            `json:"totalPages,omitempty"`
	Operation   string         `json:"operation,omitempty"`
	ElapsedMs   int64          `json:"elapsedMs,omitempty"`
	RemainingMs int64          `json:"remainingMs,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// RawWord is a single recognized token as reported by the recognition
// engine, before any hierarchy is built. Coordinates are page-absolute
// corners; Block/Par/Line/Word numbers encode the engine's grouping.
type RawWord struct {
	Text       string
	Confidence float64
	X0, Y0     int
	X1, Y1     int
	BlockNum   int
	ParNum     int
	LineNum    int
	WordNum    int
}

// RawResult is the opaque recognition engine's output for one image.
type RawResult struct {
	Text       string
	Confidence float64
	Words      []RawWord
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
