package ocr

import "unicode/utf8"

// CandidateResult is the cleaned text one strategy produced.
type CandidateResult struct {
	Strategy StrategyName
	Text     string
	Score    int
}

// scoreText ranks cleaned text by length: once garbage is filtered out,
// more text means more of the image was read.
func scoreText(text string) int {
	return utf8.RuneCountInString(text)
}

// SelectBest returns the highest scoring candidate. Candidates are expected
// in declared strategy order; on equal scores the earlier one wins.
func SelectBest(cands []CandidateResult) (CandidateResult, bool) {
	if len(cands) == 0 {
		return CandidateResult{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}
