// Package batch converts a list of texts by running the dispatcher pipeline
// once per item.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdispatch/internal/dispatch"
)

// StatusCompleted is reported once every item has an outcome, whether or not
// individual items failed.
const StatusCompleted = "completed"

// Result is the envelope of one batch run. Results holds exactly one outcome
// per input text, in input order.
type Result struct {
	Status          string             `json:"status"`
	TotalFiles      int                `json:"total_files"`
	Engine          string             `json:"engine"`
	OutputDirectory string             `json:"output_directory"`
	Results         []dispatch.Outcome `json:"results"`
}

// Succeeded returns the number of successful items.
func (r Result) Succeeded() int {
	n := 0
	for _, o := range r.Results {
		if o.OK() {
			n++
		}
	}
	return n
}

// Coordinator runs batches against a dispatcher.
type Coordinator struct {
	d           *dispatch.Dispatcher
	concurrency int
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithConcurrency sets the number of items synthesized at once. Values below
// one are ignored. Default: 1.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New returns a Coordinator that dispatches through d.
func New(d *dispatch.Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{d: d, concurrency: 1}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run synthesizes every text with tmpl's provider and prosody settings. Item
// i is written to outputDir/batch_tts_<i+1>_<id><ext>. Failed items are
// recorded in place; earlier successes are kept.
//
// Run returns an error only for an empty text list or an output directory
// that cannot be created.
func (c *Coordinator) Run(ctx context.Context, texts []string, tmpl dispatch.Request, outputDir string) (Result, error) {
	if len(texts) == 0 {
		return Result{}, fmt.Errorf("batch: %w: texts must not be empty", dispatch.ErrValidation)
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = c.d.ScratchDir()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("batch: create output directory: %w", err)
	}

	engine := tmpl.Provider
	if strings.TrimSpace(engine) == "" {
		engine = "auto"
	}
	if id, err := c.d.Select(engine); err == nil {
		engine = id
	}
	ext := c.d.OutputExt(engine)
	metrics := c.d.Metrics()

	results := make([]dispatch.Outcome, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			req := tmpl
			req.Text = text
			req.OutputFile = filepath.Join(outputDir, fmt.Sprintf("batch_tts_%03d_%s%s", i+1, dispatch.ShortID(), ext))

			out := c.d.Synthesize(gctx, req)
			results[i] = out

			status := "ok"
			if !out.OK() {
				status = string(out.Kind)
			}
			metrics.RecordBatchItem(gctx, out.Provider, status)
			return nil
		})
	}
	_ = g.Wait() // items never return errors

	res := Result{
		Status:          StatusCompleted,
		TotalFiles:      len(results),
		Engine:          engine,
		OutputDirectory: outputDir,
		Results:         results,
	}
	slog.Info("batch completed", "engine", engine, "items", res.TotalFiles, "succeeded", res.Succeeded(), "dir", outputDir)
	return res, nil
}
