/**
 * Tesseract recognition worker
 *
 * One worker wraps one long-lived gosseract client so the pool can amortize
 * model loading across jobs. The worker is the only place that knows the
 * recognition capability is Tesseract; everything downstream consumes
 * RawResult values.
 */

package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Languages is the recognition language selection. An empty value means
// English; multiple entries are joined with "+" for multi-language
// recognition.
type Languages []string

// Spec returns the Tesseract language specification string.
func (l Languages) Spec() string {
	if len(l) == 0 {
		return "eng"
	}
	return strings.Join(l, "+")
}

// Equal reports whether two selections resolve to the same specification.
func (l Languages) Equal(o Languages) bool {
	return l.Spec() == o.Spec()
}

// WorkerConfig is the per-worker recognition configuration. Every worker in
// a pool shares the same config.
type WorkerConfig struct {
	Languages   Languages
	PageSegMode int
	EngineMode  int
	Variables   map[string]string
}

// Recognizer is one recognition-engine handle held open in the pool,
// reusable across jobs.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*RawResult, error)
	Close() error
}

// WorkerFactory creates a configured Recognizer.
type WorkerFactory func(cfg WorkerConfig) (Recognizer, error)

type tesseractWorker struct {
	client *gosseract.Client
}

// NewTesseractWorker creates a Tesseract-backed recognition worker.
func NewTesseractWorker(cfg WorkerConfig) (Recognizer, error) {
	client := gosseract.NewClient()

	langs := cfg.Languages
	if len(langs) == 0 {
		langs = Languages{"eng"}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set languages %q: %w", langs.Spec(), err)
	}

	if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page segmentation mode %d: %w", cfg.PageSegMode, err)
	}

	if cfg.EngineMode > 0 {
		if err := client.SetVariable("tessedit_ocr_engine_mode", strconv.Itoa(cfg.EngineMode)); err != nil {
			client.Close()
			return nil, fmt.Errorf("set engine mode %d: %w", cfg.EngineMode, err)
		}
	}

	for k, v := range cfg.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			client.Close()
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	return &tesseractWorker{client: client}, nil
}

// Recognize runs Tesseract over the image and reports token-level text with
// confidences and bounding boxes.
func (w *tesseractWorker) Recognize(ctx context.Context, image []byte) (*RawResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := w.client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	text, err := w.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	words, avgConf := w.extractWords()

	return &RawResult{
		Text:       strings.TrimSpace(text),
		Confidence: avgConf,
		Words:      words,
	}, nil
}

// extractWords pulls word tokens with the engine's block/paragraph/line
// grouping. A failed box query degrades to a text-only result.
func (w *tesseractWorker) extractWords() ([]RawWord, float64) {
	boxes, err := w.client.GetBoundingBoxesVerbose()
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}

	words := make([]RawWord, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
		words = append(words, RawWord{
			Text:       b.Word,
			Confidence: b.Confidence,
			X0:         b.Box.Min.X,
			Y0:         b.Box.Min.Y,
			X1:         b.Box.Max.X,
			Y1:         b.Box.Max.Y,
			BlockNum:   b.BlockNum,
			ParNum:     b.ParNum,
			LineNum:    b.LineNum,
			WordNum:    b.WordNum,
		})
	}

	return words, sum / float64(len(words))
}

func (w *tesseractWorker) Close() error {
	return w.client.Close()
}
