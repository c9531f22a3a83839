package ocr

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Selection chooses how many strategies race for a request.
type Selection string

const (
	// SelectExhaustive runs every configured strategy and keeps the longest valid text.
	SelectExhaustive Selection = "exhaustive"
	// SelectSingle runs only Options.SingleStrategy.
	SelectSingle Selection = "single"
)

// ParseSelection accepts "exhaustive" or "single" (also "single-best").
func ParseSelection(s string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SelectExhaustive):
		return SelectExhaustive, nil
	case string(SelectSingle), "single-best", "single_best":
		return SelectSingle, nil
	}
	return "", fmt.Errorf("unknown selection %q", s)
}

const (
	DefaultTargetMinSide  = 2000
	DefaultMaxSide        = 4000
	DefaultCallTimeout    = 20 * time.Second
	DefaultRequestTimeout = 60 * time.Second
	DefaultSingleStrategy = StrategyCLAHE
)

// Options configures a Pipeline. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	Limits         Limits
	Policy         Policy
	Selection      Selection
	SingleStrategy StrategyName
	// Configs lists the strategies raced in exhaustive mode, in tie-break order.
	Configs []PreprocessingConfig

	// TargetMinSide triggers upscaling when either side is smaller. Zero disables it.
	TargetMinSide int
	MaxSide       int
	Deskew        bool

	Workers        int
	CallTimeout    time.Duration
	RequestTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Limits:         DefaultLimits(),
		Policy:         DefaultPolicy(),
		Selection:      SelectExhaustive,
		SingleStrategy: DefaultSingleStrategy,
		Configs:        DefaultConfigs(),
		TargetMinSide:  DefaultTargetMinSide,
		MaxSide:        DefaultMaxSide,
		Deskew:         true,
		Workers:        runtime.NumCPU(),
		CallTimeout:    DefaultCallTimeout,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Pipeline turns uploaded images into response text. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	opts    Options
	engine  Recognizer
	scanner Scanner
	configs []PreprocessingConfig
}

// New validates opts and builds a pipeline. A nil scanner disables barcode detection.
func New(engine Recognizer, scanner Scanner, opts Options) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("ocr: nil recognizer")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxSide < 0 || opts.TargetMinSide < 0 {
		return nil, fmt.Errorf("ocr: negative resize bounds (target %d, max %d)", opts.TargetMinSide, opts.MaxSide)
	}
	if opts.MaxSide > 0 && opts.TargetMinSide > opts.MaxSide {
		return nil, fmt.Errorf("ocr: target side %d exceeds max side %d", opts.TargetMinSide, opts.MaxSide)
	}
	if len(opts.Configs) == 0 {
		opts.Configs = DefaultConfigs()
	}
	for _, c := range opts.Configs {
		if _, ok := LookupStrategy(c.Strategy); !ok {
			return nil, fmt.Errorf("ocr: unknown strategy %q", c.Strategy)
		}
		// gosseract has no engine-mode setter; it always initialises with the default.
		if c.Mode.OEM != DefaultOEM {
			return nil, fmt.Errorf("ocr: strategy %q: engine mode %d not supported, only --oem %d", c.Strategy, c.Mode.OEM, DefaultOEM)
		}
	}

	p := &Pipeline{opts: opts, engine: engine, scanner: scanner}
	switch opts.Selection {
	case SelectExhaustive, "":
		p.configs = opts.Configs
	case SelectSingle:
		cfg, ok := findConfig(opts.Configs, opts.SingleStrategy)
		if !ok {
			cfg, ok = findConfig(defaultConfigs, opts.SingleStrategy)
		}
		if !ok {
			return nil, fmt.Errorf("ocr: unknown single strategy %q", opts.SingleStrategy)
		}
		p.configs = []PreprocessingConfig{cfg}
	default:
		return nil, fmt.Errorf("ocr: unknown selection %q", opts.Selection)
	}
	return p, nil
}

func findConfig(cfgs []PreprocessingConfig, name StrategyName) (PreprocessingConfig, bool) {
	for _, c := range cfgs {
		if c.Strategy == name {
			return c, true
		}
	}
	return PreprocessingConfig{}, false
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Result carries the response text plus what produced it.
type Result struct {
	// Text is always set: content, the no-text message, or a bounded error text.
	Text     string
	Barcodes []BarcodeHit
	Best     CandidateResult
	Outcomes []Outcome
	// Skew is the tilt measured before strategies ran, in degrees.
	Skew float64
	// Err is the fatal or no-content error, if any.
	Err  error
	Took time.Duration
}

// Process loads data and runs the pipeline. It never panics and always
// yields response text.
func (p *Pipeline) Process(ctx context.Context, data []byte) Result {
	bmp, err := Load(data, p.opts.Limits)
	if err != nil {
		log.WithError(err).Info("image rejected")
		return Result{Text: ErrorText(err), Err: err}
	}
	return p.Run(ctx, bmp)
}

// Run executes barcode scanning and the strategy fan-out on an already
// normalized bitmap.
func (p *Pipeline) Run(ctx context.Context, bmp *Bitmap) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("internal error: %v", r)
			log.WithError(err).Error("pipeline panicked")
			res = Result{Text: ErrorText(err), Err: err}
		}
		res.Took = time.Since(start)
	}()
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	var (
		wg   sync.WaitGroup
		hits []BarcodeHit
	)
	if p.scanner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits = p.scan(bmp)
		}()
	}

	base, skew := p.Prepare(bmp)
	res.Skew = skew
	res.Outcomes = p.runPasses(ctx, base, p.configs)
	wg.Wait()
	res.Barcodes = hits

	best, err := foldOutcomes(res.Outcomes)
	switch {
	case err == nil:
		res.Best = best
		res.Text = Assemble(res.Barcodes, best.Text)
	case len(res.Barcodes) > 0:
		res.Text = Assemble(res.Barcodes, "")
	case errors.Is(err, ErrNoContent):
		res.Text = NoTextMessage
		res.Err = err
	default:
		res.Text = ErrorText(err)
		res.Err = err
	}

	log.WithFields(logrus.Fields{
		"winner":   best.Strategy,
		"chars":    best.Score,
		"barcodes": len(res.Barcodes),
		"skew":     fmt.Sprintf("%.2f", skew),
		"took":     time.Since(start),
	}).Info("ocr finished")
	return res
}

// Prepare builds the grayscale base every strategy starts from: resized
// into [TargetMinSide, MaxSide] and optionally deskewed.
func (p *Pipeline) Prepare(bmp *Bitmap) (*Bitmap, float64) {
	g := upscale(bmp.Gray(), p.opts.TargetMinSide, p.opts.MaxSide)
	skew := 0.0
	if p.opts.Deskew {
		g, skew = deskew(g)
	}
	return NewGrayBitmap(g), skew
}

func (p *Pipeline) scan(bmp *Bitmap) (hits []BarcodeHit) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("barcode scanner panicked: %v", r)
			hits = nil
		}
	}()
	return p.scanner.Scan(bmp.Image)
}
