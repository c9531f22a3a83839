package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one strategy run: cleaned valid text, or the
// reason the strategy produced nothing usable.
type Outcome struct {
	Config  PreprocessingConfig
	Raw     string
	Text    string
	Err     error
	Skipped bool
	Took    time.Duration
}

// OK reports whether the outcome carries usable text.
func (o Outcome) OK() bool { return o.Err == nil && o.Text != "" }

// runPasses executes every config against base on at most Workers
// goroutines. Outcomes keep the order of configs.
func (p *Pipeline) runPasses(ctx context.Context, base *Bitmap, configs []PreprocessingConfig) []Outcome {
	outcomes := make([]Outcome, len(configs))
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			outcomes[i] = p.runPass(ctx, base, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Pipeline) runPass(ctx context.Context, base *Bitmap, cfg PreprocessingConfig) (out Outcome) {
	out.Config = cfg
	entry := log.WithFields(logrus.Fields{"strategy": cfg.Strategy, "mode": cfg.Mode.String()})
	if err := ctx.Err(); err != nil {
		out.Skipped = true
		out.Err = fmt.Errorf("%w: skipped: %w", ErrOCREngine, err)
		entry.Debug("request budget exhausted, strategy skipped")
		return out
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Text = ""
			out.Err = fmt.Errorf("%w: panic: %v", ErrOCREngine, r)
		}
		out.Took = time.Since(start)
		if out.Err != nil {
			entry.WithError(out.Err).WithField("took", out.Took).Debug("strategy failed")
		} else {
			entry.WithFields(logrus.Fields{"chars": len(out.Text), "took": out.Took}).Debug("strategy done")
		}
	}()

	img, err := Preprocess(cfg.Strategy, base)
	if err != nil {
		out.Err = err
		return out
	}

	callCtx := ctx
	if p.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()
	}
	raw, err := p.engine.Recognize(callCtx, img.Image, cfg.Mode)
	if err != nil {
		if !errors.Is(err, ErrOCREngine) {
			err = fmt.Errorf("%w: %w", ErrOCREngine, err)
		}
		out.Err = err
		return out
	}
	out.Raw = raw
	cleaned := p.opts.Policy.Clean(raw)
	if !p.opts.Policy.Valid(cleaned) {
		out.Err = ErrNoContent
		return out
	}
	out.Text = cleaned
	return out
}

// foldOutcomes turns per-strategy outcomes into the winning candidate.
// It fails with the first engine error when every strategy failed in the
// engine, and with ErrNoContent otherwise.
func foldOutcomes(outcomes []Outcome) (CandidateResult, error) {
	var cands []CandidateResult
	var engineErr error
	engineFailures := 0
	for _, o := range outcomes {
		switch {
		case o.OK():
			cands = append(cands, CandidateResult{Strategy: o.Config.Strategy, Text: o.Text, Score: scoreText(o.Text)})
		case errors.Is(o.Err, ErrOCREngine):
			engineFailures++
			if engineErr == nil {
				engineErr = o.Err
			}
		}
	}
	if best, ok := SelectBest(cands); ok {
		return best, nil
	}
	if len(outcomes) > 0 && engineFailures == len(outcomes) {
		return CandidateResult{}, fmt.Errorf("all %d strategies failed: %w", len(outcomes), engineErr)
	}
	return CandidateResult{}, ErrNoContent
}
