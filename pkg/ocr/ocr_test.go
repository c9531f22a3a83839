package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func newTestPipeline(t *testing.T, rec Recognizer, sc Scanner, opts Options) *Pipeline {
	t.Helper()
	p, err := New(rec, sc, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestProcessPicksLongestValidText(t *testing.T) {
	rec := &fakeRecognizer{byPSM: map[int]string{
		11: "short line",
		12: "a somewhat longer line of text",
		6:  "§§§§ ¤¤¤¤ ¶¶¶¶ §§§§ ¤¤¤¤ ¶¶¶¶ §§§§ ¤¤¤¤ ¶¶¶¶ garbage that is long",
		4:  "a somewhat longer line of tex!",
		13: "",
	}}
	p := newTestPipeline(t, rec, nil, testOptions())
	res := p.Process(context.Background(), encodePNG(t, noiseRGBA(200, 120)))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	// adaptive and sharpen tie on length; adaptive is declared first
	if res.Best.Strategy != StrategyAdaptive {
		t.Fatalf("winner = %s, want adaptive", res.Best.Strategy)
	}
	want := TextOnlyHeader + "\na somewhat longer line of text"
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
	if len(res.Outcomes) != 5 || rec.callCount() != 5 {
		t.Fatalf("expected 5 strategies to run, outcomes=%d calls=%d", len(res.Outcomes), rec.callCount())
	}
	for i, o := range res.Outcomes {
		if o.Config.Strategy != testConfigs()[i].Strategy {
			t.Fatalf("outcome %d out of order: %s", i, o.Config.Strategy)
		}
	}
}

func TestProcessNoValidText(t *testing.T) {
	rec := &fakeRecognizer{byPSM: map[int]string{11: "~~", 12: "|||^^^|||", 6: "", 4: "x", 13: "  "}}
	p := newTestPipeline(t, rec, staticScanner(nil), testOptions())
	res := p.Process(context.Background(), encodePNG(t, whiteRGBA(300, 200)))
	if res.Text != NoTextMessage {
		t.Fatalf("text = %q, want no-text message", res.Text)
	}
	if !errors.Is(res.Err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", res.Err)
	}
}

func TestProcessBarcodeOnly(t *testing.T) {
	img := imaging.Clone(qrFixture(t, "hello-world"))
	rec := &fakeRecognizer{byPSM: map[int]string{}}
	p := newTestPipeline(t, rec, ZXingScanner{}, testOptions())
	res := p.Process(context.Background(), encodePNG(t, img))
	if !strings.HasPrefix(res.Text, BarcodeHeader+"\n") {
		t.Fatalf("missing barcode header: %q", res.Text)
	}
	if !strings.Contains(res.Text, "[QRCODE] hello-world") {
		t.Fatalf("missing qr payload: %q", res.Text)
	}
	if strings.Contains(res.Text, TextOnlyHeader) || strings.Contains(res.Text, TextAfterBarcodes) {
		t.Fatalf("unexpected text section: %q", res.Text)
	}
	if res.Err != nil {
		t.Fatalf("barcode-only result should not carry an error: %v", res.Err)
	}
}

func TestProcessBarcodeAndText(t *testing.T) {
	rec := &fakeRecognizer{byPSM: map[int]string{6: "Receipt total 12.00"}}
	sc := staticScanner{{Type: "QRCODE", Payload: "https://example.com"}}
	p := newTestPipeline(t, rec, sc, testOptions())
	res := p.Process(context.Background(), encodePNG(t, noiseRGBA(120, 80)))
	want := BarcodeHeader + "\n[QRCODE] https://example.com\n\n" + TextAfterBarcodes + "\nReceipt total 12.00"
	if res.Text != want {
		t.Fatalf("text = %q, want %q", res.Text, want)
	}
}

func TestProcessEngineFailures(t *testing.T) {
	all := map[int]error{11: errEngineDown, 12: errEngineDown, 6: errEngineDown, 4: errEngineDown, 13: errEngineDown}

	t.Run("one strategy survives", func(t *testing.T) {
		errs := map[int]error{11: errEngineDown, 12: errEngineDown, 4: errEngineDown, 13: errEngineDown}
		rec := &fakeRecognizer{byPSM: map[int]string{6: "still readable"}, errPSM: errs}
		res := newTestPipeline(t, rec, nil, testOptions()).Process(context.Background(), encodePNG(t, noiseRGBA(80, 80)))
		if res.Text != TextOnlyHeader+"\nstill readable" {
			t.Fatalf("text = %q", res.Text)
		}
		for _, o := range res.Outcomes {
			if o.Config.Strategy != StrategyCLAHE && !errors.Is(o.Err, ErrOCREngine) {
				t.Fatalf("%s: engine failure not wrapped: %v", o.Config.Strategy, o.Err)
			}
		}
	})

	t.Run("every strategy fails", func(t *testing.T) {
		rec := &fakeRecognizer{errPSM: all}
		res := newTestPipeline(t, rec, nil, testOptions()).Process(context.Background(), encodePNG(t, noiseRGBA(80, 80)))
		if res.Text != EngineFailedMessage || !errors.Is(res.Err, ErrOCREngine) {
			t.Fatalf("text = %q err = %v", res.Text, res.Err)
		}
	})

	t.Run("engine panics", func(t *testing.T) {
		rec := &fakeRecognizer{panics: true}
		res := newTestPipeline(t, rec, panicScanner{}, testOptions()).Process(context.Background(), encodePNG(t, noiseRGBA(80, 80)))
		if res.Text != EngineFailedMessage {
			t.Fatalf("text = %q", res.Text)
		}
	})
}

func TestProcessSingleSelection(t *testing.T) {
	rec := &fakeRecognizer{byPSM: map[int]string{6: "clahe text", 11: "much longer otsu text"}}
	opts := testOptions()
	opts.Selection = SelectSingle
	res := newTestPipeline(t, rec, nil, opts).Process(context.Background(), encodePNG(t, noiseRGBA(80, 80)))
	if rec.callCount() != 1 || len(res.Outcomes) != 1 {
		t.Fatalf("single selection ran %d strategies", rec.callCount())
	}
	if res.Best.Strategy != StrategyCLAHE || res.Text != TextOnlyHeader+"\nclahe text" {
		t.Fatalf("unexpected result %q from %s", res.Text, res.Best.Strategy)
	}
}

func TestProcessRejectsBadUploads(t *testing.T) {
	rec := &fakeRecognizer{}
	p := newTestPipeline(t, rec, ZXingScanner{}, testOptions())

	res := p.Process(context.Background(), []byte("tiny"))
	if res.Text != TooSmallMessage || !errors.Is(res.Err, ErrTooSmall) {
		t.Fatalf("tiny upload: text=%q err=%v", res.Text, res.Err)
	}
	res = p.Process(context.Background(), []byte(strings.Repeat("garbage ", 50)))
	if res.Text != DecodeFailedMessage {
		t.Fatalf("garbage upload: text=%q", res.Text)
	}
	if rec.callCount() != 0 {
		t.Fatalf("recognizer called for rejected uploads")
	}
}

func TestProcessSkipsStrategiesAfterBudget(t *testing.T) {
	rec := &fakeRecognizer{byPSM: map[int]string{6: "never read"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestPipeline(t, rec, nil, testOptions()).Process(ctx, encodePNG(t, noiseRGBA(80, 80)))
	if rec.callCount() != 0 {
		t.Fatalf("expected no engine calls after the budget expired, got %d", rec.callCount())
	}
	for _, o := range res.Outcomes {
		if !o.Skipped {
			t.Fatalf("%s was not skipped", o.Config.Strategy)
		}
	}
	if res.Text != EngineFailedMessage {
		t.Fatalf("text = %q", res.Text)
	}
}

type slowRecognizer struct{ delay time.Duration }

func (s slowRecognizer) Recognize(ctx context.Context, _ image.Image, _ Mode) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late text", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestProcessCallTimeout(t *testing.T) {
	opts := testOptions()
	opts.Configs = opts.Configs[:2]
	opts.CallTimeout = 20 * time.Millisecond
	p := newTestPipeline(t, slowRecognizer{delay: 5 * time.Second}, nil, opts)
	res := p.Process(context.Background(), encodePNG(t, noiseRGBA(80, 80)))
	if res.Text != EngineFailedMessage {
		t.Fatalf("text = %q", res.Text)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", res.Err)
	}
	if res.Took > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", res.Took)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(nil, nil, DefaultOptions()); err == nil {
		t.Fatalf("expected error for nil recognizer")
	}
	opts := DefaultOptions()
	opts.Selection = SelectSingle
	opts.SingleStrategy = "bogus"
	if _, err := New(&fakeRecognizer{}, nil, opts); err == nil {
		t.Fatalf("expected error for unknown single strategy")
	}
	opts = DefaultOptions()
	opts.TargetMinSide, opts.MaxSide = 5000, 4000
	if _, err := New(&fakeRecognizer{}, nil, opts); err == nil {
		t.Fatalf("expected error for target above max side")
	}
	opts = DefaultOptions()
	opts.Configs = []PreprocessingConfig{{Strategy: StrategyOtsu, Mode: Mode{PSM: 6, OEM: 1}}}
	if _, err := New(&fakeRecognizer{}, nil, opts); err == nil || !strings.Contains(err.Error(), "engine mode 1") {
		t.Fatalf("expected error for non-default engine mode, got %v", err)
	}
	opts = DefaultOptions()
	opts.Workers = 0
	p, err := New(&fakeRecognizer{}, nil, opts)
	if err != nil || p.Options().Workers < 1 {
		t.Fatalf("workers not defaulted: %v", err)
	}
}

func TestParseSelection(t *testing.T) {
	for in, want := range map[string]Selection{"": SelectExhaustive, "Exhaustive": SelectExhaustive, "single": SelectSingle, "single-best": SelectSingle} {
		got, err := ParseSelection(in)
		if err != nil || got != want {
			t.Fatalf("ParseSelection(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseSelection("random"); err == nil {
		t.Fatalf("expected error for unknown selection")
	}
}
