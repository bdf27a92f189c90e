/**
 * Block structure classifier and table extractor
 *
 * Labels each top-level block as heading, list, table, or plain text using
 * geometric and textual heuristics, and converts table blocks into a
 * row/column grid of cell strings.
 */

package structure

import (
	"regexp"
	"sort"
	"strings"

	"github.com/docuflow/ocr-worker/internal/ocr"
)

// Heuristic tunables. The alignment constants are unvalidated defaults, not
// a contract; adjust per corpus.
var (
	// MaxHeadingWords is the word budget for a single-line heading block.
	MaxHeadingWords = 10
	// AlignmentTolerance is the horizontal slack (px) for two word starts to
	// count as column-aligned.
	AlignmentTolerance = 10
	// MinSharedWordStarts is how many of one line's words must align with
	// the other line for the pair to vote "aligned".
	MinSharedWordStarts = 2
	// MinTableLines is the minimum line count able to establish column
	// alignment.
	MinTableLines = 3
	// RowGapThreshold is the vertical gap (px) below which consecutive lines
	// merge into one table row.
	RowGapThreshold = 10
)

var listMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[•·◦▪‣*-]\s+`),
	regexp.MustCompile(`^\s*\d+[.)]\s+`),
	regexp.MustCompile(`^\s*[a-zA-Z][.)]\s+`),
}

// Table is a row/column grid of trimmed cell strings plus the source
// block's bounding box.
type Table struct {
	Bounds ocr.BoundingBox `json:"bounds"`
	Rows   [][]string      `json:"rows"`
}

// ClassifyBlocks tags every block in place.
func ClassifyBlocks(blocks []ocr.TextBlock) {
	for i := range blocks {
		blocks[i].Type = Classify(&blocks[i])
	}
}

// Classify labels one block. Precedence is deliberate: a short single-line
// block is always a heading, even when it would also satisfy a list or
// table pattern.
func Classify(block *ocr.TextBlock) ocr.BlockType {
	switch {
	case isHeading(block):
		return ocr.BlockHeading
	case isList(block):
		return ocr.BlockList
	case IsLikelyTable(block):
		return ocr.BlockTable
	default:
		return ocr.BlockText
	}
}

// isHeading: exactly one paragraph with exactly one line of at most
// MaxHeadingWords words.
func isHeading(block *ocr.TextBlock) bool {
	if len(block.Paragraphs) != 1 {
		return false
	}
	par := block.Paragraphs[0]
	if len(par.Lines) != 1 {
		return false
	}

	line := par.Lines[0]
	wordCount := len(line.Words)
	if wordCount == 0 {
		wordCount = len(strings.Fields(line.Text))
	}
	return wordCount > 0 && wordCount <= MaxHeadingWords
}

// isList: every paragraph holds exactly one line and every line starts with
// a list marker.
func isList(block *ocr.TextBlock) bool {
	if len(block.Paragraphs) == 0 {
		return false
	}
	for _, par := range block.Paragraphs {
		if len(par.Lines) != 1 {
			return false
		}
		if !matchesListMarker(par.Lines[0].Text) {
			return false
		}
	}
	return true
}

func matchesListMarker(text string) bool {
	for _, re := range listMarkerPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// IsLikelyTable votes on pairwise column alignment between lines. A block
// qualifies when the number of aligned line pairs reaches at least half the
// line count. Permissive by design: dense prose can false-positive and
// ragged tables can false-negative.
func IsLikelyTable(block *ocr.TextBlock) bool {
	if len(block.Paragraphs) <= 1 {
		return false
	}
	lines := block.Lines()
	if len(lines) < MinTableLines {
		return false
	}

	alignedPairs := 0
	for i := 0; i < len(lines); i++ {
		for j := i + 1; j < len(lines); j++ {
			if linesAligned(lines[i], lines[j]) {
				alignedPairs++
			}
		}
	}

	return alignedPairs*2 >= len(lines)
}

// linesAligned counts words on a whose horizontal start is within
// AlignmentTolerance of some word start on b.
func linesAligned(a, b ocr.TextLine) bool {
	shared := 0
	for _, wa := range a.Words {
		for _, wb := range b.Words {
			d := wa.Bounds.X - wb.Bounds.X
			if d < 0 {
				d = -d
			}
			if d <= AlignmentTolerance {
				shared++
				break
			}
		}
	}
	return shared >= MinSharedWordStarts
}

// ExtractTable converts a table-classified block into a grid. Lines are
// sorted by vertical position and greedily grouped into rows whenever the
// gap to the previous line stays under RowGapThreshold; within a row, cells
// run left to right.
func ExtractTable(block *ocr.TextBlock) Table {
	lines := block.Lines()
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Bounds.Y < lines[j].Bounds.Y
	})

	var rows [][]ocr.TextLine
	prevY := 0
	for i, line := range lines {
		if i == 0 || line.Bounds.Y-prevY >= RowGapThreshold {
			rows = append(rows, nil)
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], line)
		prevY = line.Bounds.Y
	}

	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Bounds.X < row[j].Bounds.X
		})
		rowCells := make([]string, 0, len(row))
		for _, line := range row {
			rowCells = append(rowCells, strings.TrimSpace(line.Text))
		}
		cells = append(cells, rowCells)
	}

	return Table{Bounds: block.Bounds, Rows: cells}
}
