package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ocrio/pkg/ocr"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func main() {
	file := flag.String("file", "", "image file to OCR")
	lang := flag.String("lang", ocr.DefaultLanguage, "Tesseract languages, e.g. eng+ind")
	dump := flag.String("dump", "", "write each strategy's preprocessed image into this directory")
	noDeskew := flag.Bool("no-deskew", false, "Skip skew correction")
	subs := flag.Bool("substitutions", false, "Enable | -> I and 0 -> O fixes")
	flag.Parse()
	if *file == "" {
		logrus.Fatal("-file required")
	}
	logrus.SetLevel(logrus.DebugLevel)
	ocr.SetLogger(logrus.StandardLogger())

	data, err := os.ReadFile(*file)
	if err != nil {
		logrus.Fatalf("read: %v", err)
	}
	opts := ocr.DefaultOptions()
	opts.Deskew = !*noDeskew
	opts.Policy.Substitutions = *subs
	p, err := ocr.New(ocr.NewTesseractEngine(*lang, os.Getenv("TESSDATA_PREFIX")), ocr.ZXingScanner{}, opts)
	if err != nil {
		logrus.Fatal(err)
	}

	if *dump != "" {
		if err := dumpStrategies(p, data, *dump); err != nil {
			logrus.Fatalf("dump: %v", err)
		}
	}

	res := p.Process(context.Background(), data)
	fmt.Printf("skew=%.2f took=%v err=%v\n", res.Skew, res.Took, res.Err)
	for _, o := range res.Outcomes {
		fmt.Printf("\n--- %s (%s) took=%v ok=%v skipped=%v err=%v\n", o.Config.Strategy, o.Config.Mode, o.Took, o.OK(), o.Skipped, o.Err)
		fmt.Printf("raw:\n%s\n", indent(o.Raw))
		fmt.Printf("clean:\n%s\n", indent(o.Text))
	}
	fmt.Printf("\nbarcodes=%d\n", len(res.Barcodes))
	for _, h := range res.Barcodes {
		fmt.Println("  " + h.String())
	}
	fmt.Printf("winner=%q chars=%d\n\n%s\n", res.Best.Strategy, res.Best.Score, res.Text)
}

func dumpStrategies(p *ocr.Pipeline, data []byte, dir string) error {
	bmp, err := ocr.Load(data, p.Options().Limits)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base, skew := p.Prepare(bmp)
	fmt.Printf("base %dx%d skew=%.2f\n", base.Width(), base.Height(), skew)
	for _, cfg := range p.Options().Configs {
		out, err := ocr.Preprocess(cfg.Strategy, base)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, string(cfg.Strategy)+".png")
		if err := imaging.Save(out.Image, path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

func indent(s string) string {
	if strings.TrimSpace(s) == "" {
		return "    (empty)"
	}
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
