package ocr

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// StrategyName identifies a registered preprocessing transform.
type StrategyName string

const (
	StrategyOtsu     StrategyName = "otsu"
	StrategyAdaptive StrategyName = "adaptive"
	StrategyCLAHE    StrategyName = "clahe"
	StrategySharpen  StrategyName = "sharpen"
	StrategyOriginal StrategyName = "original"
)

// Strategy turns a bitmap into a variant tuned for recognition. It must
// return a new Bitmap and leave its input untouched.
type Strategy func(*Bitmap) *Bitmap

const (
	adaptiveBlock = 11
	adaptiveC     = 2
	adaptiveBlur  = 1.1
	claheClip     = 3.0
	claheTiles    = 8
	closeKernel   = 2
)

var strategies = map[StrategyName]Strategy{
	StrategyOtsu: grayStrategy(func(g *image.Gray) *image.Gray {
		d := median3(g)
		return binarize(d, otsuThreshold(d))
	}),
	StrategyAdaptive: grayStrategy(func(g *image.Gray) *image.Gray {
		return adaptiveThreshold(gaussian(g, adaptiveBlur), adaptiveBlock, adaptiveC)
	}),
	StrategyCLAHE: grayStrategy(func(g *image.Gray) *image.Gray {
		eq := clahe(g, claheClip, claheTiles, claheTiles)
		return morphClose(binarize(eq, otsuThreshold(eq)), closeKernel)
	}),
	StrategySharpen: grayStrategy(func(g *image.Gray) *image.Gray {
		s := sharpen(g)
		return binarize(s, otsuThreshold(s))
	}),
	StrategyOriginal: grayStrategy(func(g *image.Gray) *image.Gray { return g }),
}

// declaredOrder breaks selector ties.
var declaredOrder = []StrategyName{
	StrategyOtsu,
	StrategyAdaptive,
	StrategyCLAHE,
	StrategySharpen,
	StrategyOriginal,
}

// StrategyNames lists registered strategies in declared order.
func StrategyNames() []StrategyName {
	out := make([]StrategyName, len(declaredOrder))
	copy(out, declaredOrder)
	return out
}

// LookupStrategy returns the registered transform for name.
func LookupStrategy(name StrategyName) (Strategy, bool) {
	s, ok := strategies[name]
	return s, ok
}

func grayStrategy(fn func(*image.Gray) *image.Gray) Strategy {
	return func(b *Bitmap) *Bitmap {
		return NewGrayBitmap(fn(b.Gray()))
	}
}

// Preprocess applies the named strategy to in the same way the pipeline does,
// including the grayscale fallback.
func Preprocess(name StrategyName, in *Bitmap) (*Bitmap, error) {
	s, ok := LookupStrategy(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return applyStrategy(name, s, in), nil
}

// applyStrategy runs s and falls back to the plain grayscale conversion when
// the transform panics or yields an empty image.
func applyStrategy(name StrategyName, s Strategy, in *Bitmap) (out *Bitmap) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("strategy", name).Warnf("strategy panicked, using grayscale: %v", r)
			out = NewGrayBitmap(in.Gray())
		}
	}()
	out = s(in)
	if out == nil || out.Image == nil || out.Width() == 0 || out.Height() == 0 {
		return NewGrayBitmap(in.Gray())
	}
	return out
}

// Mode is the recognition-mode configuration passed to the engine.
type Mode struct {
	PSM            int
	OEM            int
	PreserveSpaces bool
}

// DefaultOEM selects the LSTM engine where available.
const DefaultOEM = 3

func (m Mode) String() string {
	s := fmt.Sprintf("--oem %d --psm %d", m.OEM, m.PSM)
	if m.PreserveSpaces {
		s += " -c preserve_interword_spaces=1"
	}
	return s
}

// ParseMode reads the command-line style string produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	m := Mode{OEM: DefaultOEM, PSM: 3}
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if i+1 >= len(fields) {
			return Mode{}, fmt.Errorf("mode %q: %s needs a value", s, f)
		}
		v := fields[i+1]
		i++
		switch f {
		case "--oem":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 3 {
				return Mode{}, fmt.Errorf("mode %q: bad oem %q", s, v)
			}
			m.OEM = n
		case "--psm":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 13 {
				return Mode{}, fmt.Errorf("mode %q: bad psm %q", s, v)
			}
			m.PSM = n
		case "-c":
			key, val, ok := strings.Cut(v, "=")
			if !ok || key != "preserve_interword_spaces" {
				return Mode{}, fmt.Errorf("mode %q: unsupported variable %q", s, v)
			}
			m.PreserveSpaces = val == "1"
		default:
			return Mode{}, fmt.Errorf("mode %q: unknown flag %q", s, f)
		}
	}
	return m, nil
}

// PreprocessingConfig pairs a strategy with the mode its output is read with.
type PreprocessingConfig struct {
	Strategy StrategyName
	Mode     Mode
}

var defaultConfigs = []PreprocessingConfig{
	{Strategy: StrategyOtsu, Mode: Mode{PSM: 1, OEM: DefaultOEM, PreserveSpaces: true}},
	{Strategy: StrategyAdaptive, Mode: Mode{PSM: 3, OEM: DefaultOEM, PreserveSpaces: true}},
	{Strategy: StrategyCLAHE, Mode: Mode{PSM: 6, OEM: DefaultOEM, PreserveSpaces: true}},
	{Strategy: StrategySharpen, Mode: Mode{PSM: 3, OEM: DefaultOEM}},
	{Strategy: StrategyOriginal, Mode: Mode{PSM: 1, OEM: DefaultOEM}},
}

// DefaultConfigs returns a copy of the built-in configuration set in declared order.
func DefaultConfigs() []PreprocessingConfig {
	out := make([]PreprocessingConfig, len(defaultConfigs))
	copy(out, defaultConfigs)
	return out
}

// ConfigsFor picks the default configurations for names, preserving the
// order given. Unknown or repeated names are an error.
func ConfigsFor(names []StrategyName) ([]PreprocessingConfig, error) {
	seen := map[StrategyName]bool{}
	out := make([]PreprocessingConfig, 0, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, fmt.Errorf("strategy %q listed twice", n)
		}
		seen[n] = true
		found := false
		for _, c := range defaultConfigs {
			if c.Strategy == n {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown strategy %q", n)
		}
	}
	return out, nil
}

// ParseStrategyNames splits a comma separated list such as "otsu, clahe".
func ParseStrategyNames(s string) []StrategyName {
	var out []StrategyName
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, StrategyName(p))
		}
	}
	return out
}
