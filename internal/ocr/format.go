/**
 * Result formatter
 *
 * Pure mapping from the raw recognition output to the block/paragraph/line/
 * word hierarchy with normalized bounding boxes. Deterministic, no side
 * effects.
 */

package ocr

import (
	"strings"
	"time"
)

// Format maps a raw recognition result into an OCRResult. Exactly one
// PageInfo is produced; pageNumber is fixed at 1 in the single-image case.
func Format(raw *RawResult, width, height int, elapsed time.Duration) *OCRResult {
	return &OCRResult{
		Text:       raw.Text,
		Confidence: raw.Confidence,
		Blocks:     buildBlocks(raw.Words),
		Pages: []PageInfo{{
			PageNumber:  1,
			Width:       width,
			Height:      height,
			Orientation: Orientation(width, height),
		}},
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// buildBlocks folds the engine's flat word stream into the hierarchy using
// the block/paragraph/line numbering the engine reports. Words arrive in
// reading order, so grouping is a single pass.
func buildBlocks(words []RawWord) []TextBlock {
	var blocks []TextBlock
	var curBlock, curPar, curLine = -1, -1, -1

	for _, w := range words {
		if w.BlockNum != curBlock {
			blocks = append(blocks, TextBlock{Type: BlockUnknown})
			curBlock = w.BlockNum
			curPar = -1
			curLine = -1
		}
		block := &blocks[len(blocks)-1]

		if w.ParNum != curPar {
			block.Paragraphs = append(block.Paragraphs, TextParagraph{})
			curPar = w.ParNum
			curLine = -1
		}
		par := &block.Paragraphs[len(block.Paragraphs)-1]

		if w.LineNum != curLine {
			par.Lines = append(par.Lines, TextLine{})
			curLine = w.LineNum
		}
		line := &par.Lines[len(par.Lines)-1]

		line.Words = append(line.Words, TextWord{
			Text:       w.Text,
			Confidence: w.Confidence,
			Bounds:     NewBoundingBox(w.X0, w.Y0, w.X1, w.Y1),
		})
	}

	for i := range blocks {
		finalizeBlock(&blocks[i])
	}
	return blocks
}

// finalizeBlock computes text, confidence and union bounds bottom-up so a
// parent's box encloses the union of its children's boxes.
func finalizeBlock(block *TextBlock) {
	var parTexts []string
	for pi := range block.Paragraphs {
		par := &block.Paragraphs[pi]

		var lineTexts []string
		for li := range par.Lines {
			line := &par.Lines[li]

			var wordTexts []string
			var confSum float64
			for _, w := range line.Words {
				wordTexts = append(wordTexts, w.Text)
				confSum += w.Confidence
				line.Bounds = line.Bounds.Union(w.Bounds)
			}
			line.Text = strings.Join(wordTexts, " ")
			if len(line.Words) > 0 {
				line.Confidence = confSum / float64(len(line.Words))
			}

			lineTexts = append(lineTexts, line.Text)
			par.Bounds = par.Bounds.Union(line.Bounds)
			par.Confidence += line.Confidence
		}
		par.Text = strings.Join(lineTexts, "\n")
		if len(par.Lines) > 0 {
			par.Confidence /= float64(len(par.Lines))
		}

		parTexts = append(parTexts, par.Text)
		block.Bounds = block.Bounds.Union(par.Bounds)
		block.Confidence += par.Confidence
	}
	block.Text = strings.Join(parTexts, "\n")
	if len(block.Paragraphs) > 0 {
		block.Confidence /= float64(len(block.Paragraphs))
	}
}
