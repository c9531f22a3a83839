package ocr

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinLength       = 3
	DefaultMinAlnumRatio   = 0.4
	DefaultMaxSpecialRatio = 0.3
	DefaultMinLineLength   = 2

	// DefaultAllowedPunctuation is not counted against MaxSpecialRatio.
	DefaultAllowedPunctuation = `.,!?@#$%&*()-_=+[]{}:;"'`
)

// Policy decides which recognised text is worth returning.
type Policy struct {
	MinLength          int
	MinAlnumRatio      float64
	MaxSpecialRatio    float64
	MinLineLength      int
	AllowedPunctuation string

	// NormalizePunctuation removes spaces before .,!?;: and puts exactly one
	// space after them when a letter follows.
	NormalizePunctuation bool
	// Substitutions rewrites '|' as 'I' and '0' as 'O' inside upper-case
	// words. Lossy: a real pipe or zero is corrupted.
	Substitutions bool
}

// DefaultPolicy returns the thresholds used by the HTTP endpoint.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:          DefaultMinLength,
		MinAlnumRatio:      DefaultMinAlnumRatio,
		MaxSpecialRatio:    DefaultMaxSpecialRatio,
		MinLineLength:      DefaultMinLineLength,
		AllowedPunctuation: DefaultAllowedPunctuation,
	}
}

// Valid reports whether text looks like real text rather than recognition noise.
func (p Policy) Valid(text string) bool {
	t := strings.TrimSpace(text)
	total := utf8.RuneCountInString(t)
	if total == 0 || total < p.MinLength {
		return false
	}
	alnum, special := 0, 0
	for _, r := range t {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			alnum++
		case strings.ContainsRune(p.AllowedPunctuation, r):
		default:
			special++
		}
	}
	if float64(alnum)/float64(total) < p.MinAlnumRatio {
		return false
	}
	return float64(special)/float64(total) <= p.MaxSpecialRatio
}

var (
	horizontalSpace  = regexp.MustCompile(`[\s\p{Zs}]+`)
	spaceBeforePunct = regexp.MustCompile(`[ ]+([.,!?;:])`)
	spaceAfterPunct  = regexp.MustCompile(`([.,!?;:]) *(\p{L})`)
	upperWord        = regexp.MustCompile(`\b[A-Z0]+\b`)
)

// Clean keeps the valid lines of text, squeezing whitespace and collapsing
// blank runs to a single separator line. Clean(Clean(t)) == Clean(t).
func (p Policy) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
		if p.Substitutions {
			line = substitute(line)
		}
		if p.NormalizePunctuation {
			line = normalizePunctuation(line)
		}
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		if utf8.RuneCountInString(line) < p.MinLineLength || !p.Valid(line) {
			continue
		}
		out = append(out, line)
		blank = false
	}
	if blank {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func normalizePunctuation(s string) string {
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	return spaceAfterPunct.ReplaceAllString(s, "$1 $2")
}

func substitute(s string) string {
	s = strings.ReplaceAll(s, "|", "I")
	return upperWord.ReplaceAllStringFunc(s, func(w string) string {
		letters := 0
		for _, r := range w {
			if r != '0' {
				letters++
			}
		}
		if letters < 2 {
			return w
		}
		return strings.ReplaceAll(w, "0", "O")
	})
}
