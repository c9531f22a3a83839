package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"ocrio/models"
	"ocrio/pkg/ocr"
)

const (
	textSuffix   = ".ocr.txt"
	reportSuffix = ".ocr.json"

	debounceTick   = 250 * time.Millisecond
	debounceSettle = 300 * time.Millisecond
)

// Main: OCRs every image in a directory, writing <name>.ocr.txt beside it, optional watch mode.
func main() {
	dirFlag := flag.String("dir", "public/scans", "directory to scan for images")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Files processed in parallel (default NumCPU)")
	lang := flag.String("lang", ocr.DefaultLanguage, "Tesseract languages, e.g. eng+ind")
	selection := flag.String("selection", string(ocr.SelectExhaustive), "exhaustive or single")
	strategies := flag.String("strategies", "", "comma separated strategies (default all)")
	noDeskew := flag.Bool("no-deskew", false, "Skip skew correction")
	force := flag.Bool("force", false, "Re-run files whose .ocr.txt is newer than the image")
	writeReport := flag.Bool("report", false, "Also write <name>.ocr.json with the winning strategy and timings")
	processedDir := flag.String("processed", "", "Move images here after a successful run")
	verbose := flag.Bool("verbose", false, "Verbose per-strategy logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	ocr.SetLogger(logrus.StandardLogger())

	opts := ocr.DefaultOptions()
	sel, err := ocr.ParseSelection(*selection)
	if err != nil {
		logrus.Fatal(err)
	}
	opts.Selection = sel
	opts.Deskew = !*noDeskew
	if *strategies != "" {
		if opts.Configs, err = ocr.ConfigsFor(ocr.ParseStrategyNames(*strategies)); err != nil {
			logrus.Fatal(err)
		}
	}
	// files already run in parallel; keep strategy fan-out narrow
	opts.Workers = 2
	pipeline, err := ocr.New(ocr.NewTesseractEngine(*lang, os.Getenv("TESSDATA_PREFIX")), ocr.ZXingScanner{}, opts)
	if err != nil {
		logrus.Fatal(err)
	}

	p := &processor{
		pipeline:     pipeline,
		dir:          *dirFlag,
		processedDir: *processedDir,
		force:        *force,
		writeReport:  *writeReport,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := listImageFiles(*dirFlag)
	n := effectiveWorkers(*workers)
	logrus.WithFields(logrus.Fields{"dir": *dirFlag, "files": len(files), "workers": n}).Info("scanning")
	stats := p.runWorkerPool(ctx, n, feed(files))
	logrus.WithFields(stats.fields()).Info("scan finished")

	if *watch {
		events := make(chan string, 256)
		errc := make(chan error, 1)
		go func() { errc <- watchDirectory(ctx, *dirFlag, events) }()
		p.runWorkerPool(ctx, n, events)
		if err := <-errc; err != nil {
			logrus.WithError(err).Fatal("watch failed")
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

type processor struct {
	pipeline     *ocr.Pipeline
	dir          string
	processedDir string
	force        bool
	writeReport  bool
}

type runStats struct {
	mu                        sync.Mutex
	done, skipped, empty, bad int
}

func (s *runStats) add(status fileStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case statusDone:
		s.done++
	case statusSkipped:
		s.skipped++
	case statusEmpty:
		s.empty++
	default:
		s.bad++
	}
}

func (s *runStats) fields() logrus.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return logrus.Fields{"done": s.done, "skipped": s.skipped, "empty": s.empty, "failed": s.bad}
}

type fileStatus int

const (
	statusDone fileStatus = iota
	statusSkipped
	statusEmpty
	statusFailed
)

func feed(names []string) <-chan string {
	ch := make(chan string, len(names))
	for _, n := range names {
		ch <- n
	}
	close(ch)
	return ch
}

// runWorkerPool drains names until the channel closes or ctx is done.
func (p *processor) runWorkerPool(ctx context.Context, workers int, names <-chan string) *runStats {
	stats := &runStats{}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case name, ok := <-names:
					if !ok {
						return
					}
					status, err := p.processFile(ctx, name)
					if err != nil {
						logrus.WithError(err).WithField("file", name).Warn("ocr failed")
					}
					stats.add(status)
				}
			}
		}()
	}
	wg.Wait()
	return stats
}

// processFile is idempotent: a .ocr.txt newer than the image means done.
func (p *processor) processFile(ctx context.Context, name string) (fileStatus, error) {
	src := filepath.Join(p.dir, name)
	fi, err := os.Stat(src)
	if err != nil {
		return statusFailed, err
	}
	out := filepath.Join(p.dir, name+textSuffix)
	if !p.force {
		if oi, err := os.Stat(out); err == nil && !oi.ModTime().Before(fi.ModTime()) {
			logrus.WithField("file", name).Debug("already processed")
			return statusSkipped, nil
		}
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return statusFailed, err
	}
	res := p.pipeline.Process(ctx, data)
	if err := os.WriteFile(out, []byte(res.Text+"\n"), 0o644); err != nil {
		return statusFailed, err
	}
	if p.writeReport {
		if err := writeReport(filepath.Join(p.dir, name+reportSuffix), name, res); err != nil {
			return statusFailed, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"file":     name,
		"strategy": res.Best.Strategy,
		"chars":    res.Best.Score,
		"barcodes": len(res.Barcodes),
		"took":     res.Took,
	}).Info("processed")

	switch {
	case res.Err == nil:
	case errors.Is(res.Err, ocr.ErrNoContent):
		return statusEmpty, nil
	default:
		return statusFailed, res.Err
	}
	if p.processedDir != "" {
		if err := moveToProcessed(src, filepath.Join(p.processedDir, name)); err != nil {
			return statusDone, fmt.Errorf("move to processed: %w", err)
		}
	}
	return statusDone, nil
}

func writeReport(path, name string, res ocr.Result) error {
	rep := models.OCRReport{
		File:     name,
		Strategy: string(res.Best.Strategy),
		Chars:    res.Best.Score,
		Skew:     res.Skew,
		TookMS:   res.Took.Milliseconds(),
	}
	for _, h := range res.Barcodes {
		rep.Barcodes = append(rep.Barcodes, h.String())
	}
	if res.Err != nil {
		rep.Error = res.Err.Error()
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.WithError(err).WithField("dir", dir).Warn("cannot read directory")
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	// ignore our own outputs to avoid recursive processing
	if strings.Contains(name, ".ocr.") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// watchDirectory sends file names once they stop changing. It closes out and
// returns when ctx is done.
func watchDirectory(ctx context.Context, dir string, out chan<- string) error {
	defer close(out)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	logrus.WithField("dir", dir).Info("watching (debounced)")

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				name := filepath.Base(ev.Name)
				if isSupportedExt(name) {
					pending[name] = time.Now()
				}
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > debounceSettle {
					select {
					case out <- name:
					case <-ctx.Done():
						return nil
					}
					delete(pending, name)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("watch error")
		}
	}
}

// moveToProcessed renames src to dst, falling back to copy and remove across devices.
func moveToProcessed(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
