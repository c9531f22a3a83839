package main

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"ocrio/models"
	"ocrio/pkg/ocr"
)

type countingRecognizer struct {
	text  string
	calls atomic.Int32
}

func (c *countingRecognizer) Recognize(context.Context, image.Image, ocr.Mode) (string, error) {
	c.calls.Add(1)
	return c.text, nil
}

func newTestProcessor(t *testing.T, text string) (*processor, *countingRecognizer) {
	t.Helper()
	rec := &countingRecognizer{text: text}
	opts := ocr.DefaultOptions()
	opts.TargetMinSide = 0
	opts.MaxSide = 800
	opts.Deskew = false
	opts.Selection = ocr.SelectSingle
	pl, err := ocr.New(rec, nil, opts)
	if err != nil {
		t.Fatalf("ocr.New: %v", err)
	}
	return &processor{pipeline: pl, dir: t.TempDir()}, rec
}

func writeNoiseImage(t *testing.T, dir, name string) {
	t.Helper()
	img := imaging.New(96, 64, color.White)
	seed := uint32(3)
	for y := 0; y < 64; y++ {
		for x := 0; x < 96; x++ {
			seed = seed*1664525 + 1013904223
			v := uint8(seed >> 24)
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	if err := imaging.Save(img, filepath.Join(dir, name)); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestProcessFileWritesTextAndSkipsDone(t *testing.T) {
	p, rec := newTestProcessor(t, "Batch text line")
	writeNoiseImage(t, p.dir, "a.png")

	status, err := p.processFile(context.Background(), "a.png")
	if err != nil || status != statusDone {
		t.Fatalf("first run: status=%v err=%v", status, err)
	}
	got, err := os.ReadFile(filepath.Join(p.dir, "a.png"+textSuffix))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.TrimSpace(string(got)) != ocr.TextOnlyHeader+"\nBatch text line" {
		t.Fatalf("output = %q", got)
	}

	status, _ = p.processFile(context.Background(), "a.png")
	if status != statusSkipped || rec.calls.Load() != 1 {
		t.Fatalf("second run should skip, status=%v calls=%d", status, rec.calls.Load())
	}

	p.force = true
	if status, _ = p.processFile(context.Background(), "a.png"); status != statusDone || rec.calls.Load() != 2 {
		t.Fatalf("forced run: status=%v calls=%d", status, rec.calls.Load())
	}
}

func TestProcessFileReportAndMove(t *testing.T) {
	p, _ := newTestProcessor(t, "Moved text")
	p.writeReport = true
	p.processedDir = filepath.Join(t.TempDir(), "done")
	writeNoiseImage(t, p.dir, "b.jpg")

	if status, err := p.processFile(context.Background(), "b.jpg"); err != nil || status != statusDone {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if _, err := os.Stat(filepath.Join(p.processedDir, "b.jpg")); err != nil {
		t.Fatalf("image not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.dir, "b.jpg")); !os.IsNotExist(err) {
		t.Fatalf("original still present: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(p.dir, "b.jpg"+reportSuffix))
	if err != nil {
		t.Fatalf("report missing: %v", err)
	}
	var rep models.OCRReport
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.File != "b.jpg" || rep.Strategy != string(ocr.StrategyCLAHE) || rep.Chars != len("Moved text") {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestProcessFileNoText(t *testing.T) {
	p, _ := newTestProcessor(t, "~~")
	p.processedDir = filepath.Join(t.TempDir(), "done")
	writeNoiseImage(t, p.dir, "c.png")
	status, err := p.processFile(context.Background(), "c.png")
	if err != nil || status != statusEmpty {
		t.Fatalf("status=%v err=%v", status, err)
	}
	if _, err := os.Stat(filepath.Join(p.dir, "c.png")); err != nil {
		t.Fatalf("image without text must stay in place: %v", err)
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.PNG", "a.jpg", "notes.txt", "a.jpg.ocr.txt", "scan.tif", "anim.gif"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := []string{"a.jpg", "b.PNG", "scan.tif"}
	if got := listImageFiles(dir); !reflect.DeepEqual(got, want) {
		t.Fatalf("listImageFiles = %v, want %v", got, want)
	}
}

func TestRunWorkerPool(t *testing.T) {
	p, rec := newTestProcessor(t, "Pool text")
	names := []string{"1.png", "2.png", "3.png", "4.png"}
	for _, n := range names {
		writeNoiseImage(t, p.dir, n)
	}
	stats := p.runWorkerPool(context.Background(), 3, feed(append(names, "missing.png")))
	f := stats.fields()
	if f["done"] != 4 || f["failed"] != 1 {
		t.Fatalf("stats = %v", f)
	}
	if rec.calls.Load() != 4 {
		t.Fatalf("calls = %d", rec.calls.Load())
	}
}

func TestWatchDirectoryDebounces(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := make(chan string, 8)
	errc := make(chan error, 1)
	go func() { errc <- watchDirectory(ctx, dir, out) }()
	time.Sleep(200 * time.Millisecond)

	writeNoiseImage(t, dir, "new.png")
	if err := os.WriteFile(filepath.Join(dir, "new.png"+textSuffix), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case name := <-out:
		if name != "new.png" {
			t.Fatalf("got %q", name)
		}
	case <-ctx.Done():
		t.Fatalf("no event for new.png")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("watch: %v", err)
	}
	for name := range out {
		if name != "new.png" {
			t.Fatalf("unexpected extra event %q", name)
		}
	}
}
