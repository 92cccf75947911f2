// Package extract recovers question/answer pairs from free-text model replies.
//
// Parsing is layered from strict to loose. Each Strategy is a pure function
// and Parse returns the first non-empty result, so a reply that ignores the
// requested "Question N:" format still yields whatever structure it has.
package extract

import (
	"regexp"
	"strings"
)

// ErrorMarker prefixes a reply that records a failed model call.
const ErrorMarker = "ERROR:"

const (
	// minQuestionOffset is the earliest index a question/answer boundary may
	// sit at. Closer boundaries are usually delimiter noise.
	minQuestionOffset = 10
	// minMarkerAnswer is the shortest answer the marker strategy accepts.
	minMarkerAnswer = 20
)

// Pair is one extracted question with its answer.
type Pair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Strategy is one independent way of splitting a reply into pairs.
type Strategy struct {
	Name  string
	Parse func(text string) []Pair
}

var (
	// labelled matches "Question 1:", "Q2.", "**Question 3:**", "### Q 4)" anywhere in the text.
	labelled = regexp.MustCompile(`(?i)(?:#{1,6}[ \t]*)?(?:\*\*|__)?[ \t]*\b(?:question|q)[ \t]*\d+[ \t]*(?:\*\*|__)?[ \t]*[:.)][ \t]*(?:\*\*|__)?`)
	// enumerated matches "1. " or "2) " at a line start.
	enumerated = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?\d+[.)](?:\*\*)?[ \t]+`)
	// answerMarker matches "**Answer:**", "Answer 2:", "A:" and similar.
	answerMarker = regexp.MustCompile(`(?m)(?:^|[ \t])[ \t]*(?:\*\*|__)?[ \t]*(?:Answer|ANSWER|A)(?:[ \t]*\d+)?[ \t]*(?:\*\*|__)?[ \t]*:(?:\*\*|__)?`)

	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	// sentenceEnd is a question mark or a period followed by whitespace.
	sentenceEnd = regexp.MustCompile(`\?|\.\s`)
	// blockBoundary also accepts a bare line break.
	blockBoundary = regexp.MustCompile(`\?|\.\s|\n`)
	// leadingEmphasis is a bold close left over after a "**question?**" split.
	leadingEmphasis = regexp.MustCompile(`^(?:\*\*|__)\s`)
)

// Numbered splits on question delimiters and divides each block at an
// answer marker, a sentence boundary or the first line break.
var Numbered = Strategy{Name: "numbered", Parse: parseNumbered}

// Paragraphs treats every blank-line separated block as one pair whose
// question ends at the first sentence boundary in the block's first half.
var Paragraphs = Strategy{Name: "paragraphs", Parse: parseParagraphs}

// Marker pairs each answer marker with the paragraph before it. It only
// applies when the reply has no labelled question delimiters.
var Marker = Strategy{Name: "marker", Parse: parseMarker}

// Strategies is the order Parse tries.
var Strategies = []Strategy{Numbered, Paragraphs, Marker}

// Parse extracts pairs from a model reply. It never fails: empty,
// error-marked or unstructured input yields nil.
func Parse(raw string) []Pair {
	if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, ErrorMarker) {
		return nil
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	for _, s := range Strategies {
		if pairs := s.Parse(text); len(pairs) > 0 {
			return pairs
		}
	}
	return nil
}

func delimiters(text string) [][]int {
	if locs := labelled.FindAllStringIndex(text, -1); len(locs) > 0 {
		return locs
	}
	return enumerated.FindAllStringIndex(text, -1)
}

func parseNumbered(text string) []Pair {
	locs := delimiters(text)
	var out []Pair
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if p, ok := splitBlock(text[loc[1]:end]); ok {
			out = append(out, p)
		}
	}
	return out
}

// splitBlock divides one delimited block into question and answer.
func splitBlock(block string) (Pair, bool) {
	block = strings.TrimSpace(block)
	if loc := answerMarker.FindStringIndex(block); loc != nil && loc[0] > 0 {
		// The marker only splits when everything before it is one paragraph.
		if q := strings.TrimSpace(block[:loc[0]]); !paragraphBreak.MatchString(q) {
			return makePair(q, block[loc[1]:])
		}
	}
	if idx := boundary(block, blockBoundary); idx >= 0 {
		return makePair(block[:idx+1], block[idx+1:])
	}
	q, a, ok := strings.Cut(block, "\n")
	if !ok {
		return Pair{}, false
	}
	return makePair(q, a)
}

// boundary returns the index of the first match of sep at or after
// minQuestionOffset, or -1.
func boundary(s string, sep *regexp.Regexp) int {
	if len(s) <= minQuestionOffset {
		return -1
	}
	loc := sep.FindStringIndex(s[minQuestionOffset:])
	if loc == nil {
		return -1
	}
	return loc[0] + minQuestionOffset
}

func parseParagraphs(text string) []Pair {
	var out []Pair
	for _, block := range paragraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		idx := boundary(block, sentenceEnd)
		if idx < 0 || idx >= len(block)/2 {
			continue
		}
		if p, ok := makePair(block[:idx+1], block[idx+1:]); ok {
			out = append(out, p)
		}
	}
	return out
}

func parseMarker(text string) []Pair {
	if labelled.MatchString(text) {
		return nil
	}
	locs := answerMarker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	segs := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		segs = append(segs, text[prev:loc[0]])
		prev = loc[1]
	}
	segs = append(segs, text[prev:])

	var out []Pair
	for k := 1; k < len(segs); k++ {
		_, question := splitTrailing(segs[k-1])
		answer := segs[k]
		if k < len(segs)-1 {
			answer, _ = splitTrailing(answer)
		}
		if len(strings.TrimSpace(answer)) <= minMarkerAnswer {
			continue
		}
		if p, ok := makePair(question, answer); ok {
			out = append(out, p)
		}
	}
	return out
}

// splitTrailing separates the last paragraph of s from what precedes it,
// falling back to the last line when s has no blank line.
func splitTrailing(s string) (head, tail string) {
	s = strings.TrimRight(s, " \t\n")
	if locs := paragraphBreak.FindAllStringIndex(s, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		return s[:last[0]], s[last[1]:]
	}
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

func makePair(q, a string) (Pair, bool) {
	p := Pair{Question: cleanQuestion(q), Answer: cleanAnswer(a)}
	return p, p.Question != "" && p.Answer != ""
}

func cleanQuestion(s string) string {
	s = strings.TrimSpace(s)
	if loc := labelled.FindStringIndex(s); loc != nil && loc[0] == 0 {
		s = s[loc[1]:]
	}
	return strings.Trim(s, " \t\n*_#")
}

func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for {
		s = strings.TrimSpace(leadingEmphasis.ReplaceAllString(s, ""))
		loc := answerMarker.FindStringIndex(s)
		if loc == nil || strings.TrimSpace(s[:loc[0]]) != "" {
			return s
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
}
