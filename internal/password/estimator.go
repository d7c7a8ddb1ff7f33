// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Estimator scores how hard a password is to guess.
type Estimator interface {
	Estimate(password string, inputs []string) Estimate
}

// Estimate is the result of a strength estimation.
type Estimate struct {
	// Score is 0 (trivially guessable) to 4 (very hard to guess).
	Score int

	// Guesses is the estimated number of guesses an attacker needs.
	Guesses float64

	// Feedback explains a low score. Empty when Score is 3 or more.
	Feedback []string
}

// Score thresholds on the estimated number of guesses.
const (
	guessesScore1 = 1e3
	guessesScore2 = 1e6
	guessesScore3 = 1e8
	guessesScore4 = 1e10
)

// maxEstimateRunes bounds the work done per estimate. Characters beyond it
// only make a password stronger.
const maxEstimateRunes = 64

const bruteforceCardinality = 10.0

type matchKind int

const (
	matchBruteforce matchKind = iota
	matchDictionary
	matchUserInput
	matchSequence
	matchKeyboard
	matchRepeat
)

type match struct {
	i, j    int
	kind    matchKind
	guesses float64
}

// PatternEstimator estimates guesses by decomposing the password into the
// cheapest sequence of known patterns: dictionary words (with case and
// leet variations), words from the caller's context, character sequences,
// keyboard walks, repeated blocks and brute force. The estimate is a pure
// function of its input.
type PatternEstimator struct {
	ranked map[string]int
}

// NewPatternEstimator returns an estimator over the built-in word list.
func NewPatternEstimator() *PatternEstimator {
	return &PatternEstimator{ranked: rankedWords}
}

// Estimate implements Estimator. inputs are user-specific strings such as
// the username or email; passwords built from them score lower.
func (e *PatternEstimator) Estimate(password string, inputs []string) Estimate {
	runes := []rune(password)
	if len(runes) > maxEstimateRunes {
		runes = runes[:maxEstimateRunes]
	}
	if len(runes) == 0 {
		return Estimate{Feedback: []string{"Use a few words, avoid common phrases"}}
	}

	est := &estimation{
		ranked:  e.ranked,
		context: contextWords(inputs),
		maxLen:  maxWordRunes,
		memo:    make(map[string]float64),
	}
	for w := range est.context {
		est.maxLen = max(est.maxLen, len([]rune(w)))
	}
	guesses, seq := est.mostGuessable(runes)

	out := Estimate{Score: scoreFor(guesses), Guesses: guesses}
	if out.Score < 3 {
		out.Feedback = feedbackFor(seq)
	}
	return out
}

func scoreFor(guesses float64) int {
	switch {
	case guesses < guessesScore1:
		return 0
	case guesses < guessesScore2:
		return 1
	case guesses < guessesScore3:
		return 2
	case guesses < guessesScore4:
		return 3
	default:
		return 4
	}
}

// contextWords turns caller inputs into a ranked word list. Each input is
// used whole and split on non-alphanumeric characters.
func contextWords(inputs []string) map[string]int {
	words := make(map[string]int)
	add := func(w string) {
		if len([]rune(w)) < 3 {
			return
		}
		if _, ok := words[w]; !ok {
			words[w] = len(words) + 1
		}
	}
	for _, in := range inputs {
		in = strings.ToLower(strings.TrimSpace(in))
		add(in)
		for _, part := range strings.FieldsFunc(in, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			add(part)
		}
	}
	return words
}

type estimation struct {
	ranked  map[string]int
	context map[string]int
	maxLen  int
	memo    map[string]float64
}

type dpStep struct {
	product float64
	m       match
	ok      bool
}

// mostGuessable finds the segmentation of runes with the fewest total
// guesses. Each segmentation of k parts costs k! times the product of its
// parts, which keeps many tiny matches from beating one honest estimate.
func (est *estimation) mostGuessable(runes []rune) (float64, []match) {
	n := len(runes)
	matches := est.findMatches(runes)

	byEnd := make([][]match, n)
	for _, m := range matches {
		byEnd[m.j] = append(byEnd[m.j], m)
	}

	// opt[end][k] is the cheapest way to cover runes[:end] with k parts.
	opt := make([][]dpStep, n+1)
	for i := range opt {
		opt[i] = make([]dpStep, n+1)
	}
	opt[0][0] = dpStep{product: 1, ok: true}

	relax := func(m match) {
		end := m.j + 1
		for k := 0; k < n; k++ {
			prev := opt[m.i][k]
			if !prev.ok {
				continue
			}
			p := prev.product * m.guesses
			cur := &opt[end][k+1]
			if !cur.ok || p < cur.product {
				*cur = dpStep{product: p, m: m, ok: true}
			}
		}
	}

	for end := 1; end <= n; end++ {
		for _, m := range byEnd[end-1] {
			relax(m)
		}
		for start := 0; start < end; start++ {
			relax(match{
				i:       start,
				j:       end - 1,
				kind:    matchBruteforce,
				guesses: math.Pow(bruteforceCardinality, float64(end-start)),
			})
		}
	}

	best, bestK := math.Inf(1), 0
	for k := 1; k <= n; k++ {
		s := opt[n][k]
		if !s.ok {
			continue
		}
		if g := factorial(k) * s.product; g < best {
			best, bestK = g, k
		}
	}

	seq := make([]match, bestK)
	for pos, k := n, bestK; k > 0; k-- {
		m := opt[pos][k].m
		seq[k-1] = m
		pos = m.i
	}
	return best, seq
}

func (est *estimation) findMatches(runes []rune) []match {
	var out []match
	out = append(out, est.dictionaryMatches(runes)...)
	out = append(out, sequenceMatches(runes)...)
	out = append(out, keyboardMatches(runes)...)
	out = append(out, est.repeatMatches(runes)...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].i != out[b].i {
			return out[a].i < out[b].i
		}
		if out[a].j != out[b].j {
			return out[a].j < out[b].j
		}
		return out[a].kind < out[b].kind
	})
	return out
}

var leetTable = map[rune]rune{
	'@': 'a', '4': 'a',
	'3': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'$': 's', '5': 's',
	'7': 't', '+': 't',
}

func (est *estimation) dictionaryMatches(runes []rune) []match {
	n := len(runes)
	lower := make([]rune, n)
	plain := make([]rune, n)
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
		plain[i] = lower[i]
		if sub, ok := leetTable[lower[i]]; ok {
			plain[i] = sub
		}
	}

	var out []match
	for i := 0; i < n; i++ {
		for j := i + 2; j < n && j-i < est.maxLen; j++ {
			raw := string(lower[i : j+1])
			variations := upperVariations(runes[i : j+1])
			out = append(out, est.lookup(i, j, raw, variations)...)
			if word := string(plain[i : j+1]); word != raw {
				out = append(out, est.lookup(i, j, word, variations*2)...)
			}
		}
	}
	return out
}

// lookup matches word against the context words, the ranked list and the
// reversed ranked list.
func (est *estimation) lookup(i, j int, word string, variations float64) []match {
	var out []match
	if rank, ok := est.context[word]; ok {
		out = append(out, match{i: i, j: j, kind: matchUserInput, guesses: float64(rank) * variations})
	}
	if rank, ok := est.ranked[word]; ok {
		out = append(out, match{i: i, j: j, kind: matchDictionary, guesses: float64(rank) * variations})
	}
	if rev := reverseString(word); rev != word {
		if rank, ok := est.ranked[rev]; ok {
			out = append(out, match{i: i, j: j, kind: matchDictionary, guesses: float64(rank) * variations * 2})
		}
	}
	return out
}

// upperVariations counts the capitalisations an attacker tries for a word.
func upperVariations(word []rune) float64 {
	upper, letters := 0, 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	switch {
	case upper == 0:
		return 1
	case upper == letters, upper == 1 && unicode.IsUpper(word[0]):
		return 2
	default:
		return math.Pow(2, float64(min(upper, 10)))
	}
}

// sequenceMatches finds maximal runs of three or more letters or digits
// that step by one in a single direction.
func sequenceMatches(runes []rune) []match {
	n := len(runes)
	lower := []rune(strings.ToLower(string(runes)))
	if len(lower) != n {
		return nil
	}

	var out []match
	i := 0
	for i < n-2 {
		step := seqDelta(lower[i], lower[i+1])
		if step == 0 {
			i++
			continue
		}
		j := i + 1
		for j+1 < n && seqDelta(lower[j], lower[j+1]) == step {
			j++
		}
		if j-i+1 >= 3 {
			base := 26.0
			switch {
			case strings.ContainsRune("az019", lower[i]):
				base = 4
			case isDigit(lower[i]):
				base = 10
			}
			g := base * float64(j-i+1)
			if step < 0 {
				g *= 2
			}
			out = append(out, match{i: i, j: j, kind: matchSequence, guesses: g})
		}
		i = j
	}
	return out
}

var keyboardRows = []string{
	"`1234567890-=",
	"qwertyuiop[]\\",
	"asdfghjkl;'",
	"zxcvbnm,./",
}

const keyboardStartingPositions = 94

// keyboardMatches finds walks of four or more adjacent keys along one
// keyboard row in a single direction.
func keyboardMatches(runes []rune) []match {
	n := len(runes)
	lower := []rune(strings.ToLower(string(runes)))
	if len(lower) != n {
		return nil
	}

	var out []match
	for _, row := range keyboardRows {
		pos := make(map[rune]int, len(row))
		for idx, r := range row {
			pos[r] = idx
		}
		i := 0
		for i < n-1 {
			a, okA := pos[lower[i]]
			b, okB := pos[lower[i+1]]
			if !okA || !okB || (b-a != 1 && b-a != -1) {
				i++
				continue
			}
			step := b - a
			j := i + 1
			for j+1 < n {
				c, ok := pos[lower[j+1]]
				if !ok || c-pos[lower[j]] != step {
					break
				}
				j++
			}
			if j-i+1 >= 4 {
				out = append(out, match{
					i: i, j: j, kind: matchKeyboard,
					guesses: keyboardStartingPositions * float64(j-i+1),
				})
			}
			i = j
		}
	}
	return out
}

// repeatMatches finds blocks repeated back to back. The guesses for a
// repeat are the guesses for one block times the repeat count.
func (est *estimation) repeatMatches(runes []rune) []match {
	n := len(runes)
	var out []match
	for i := 0; i < n-1; i++ {
		for size := 1; i+2*size <= n; size++ {
			block := runes[i : i+size]
			reps := 1
			for i+(reps+1)*size <= n && equalRunes(block, runes[i+reps*size:i+(reps+1)*size]) {
				reps++
			}
			if reps < 2 {
				continue
			}
			out = append(out, match{
				i: i, j: i + reps*size - 1, kind: matchRepeat,
				guesses: est.blockGuesses(block) * float64(reps),
			})
		}
	}
	return out
}

func (est *estimation) blockGuesses(block []rune) float64 {
	key := string(block)
	if g, ok := est.memo[key]; ok {
		return g
	}
	g, _ := est.mostGuessable(block)
	est.memo[key] = g
	return g
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func factorial(k int) float64 {
	f := 1.0
	for i := 2; i <= k; i++ {
		f *= float64(i)
	}
	return f
}

// feedbackFor explains the weakest part of the cheapest decomposition:
// the longest non brute force match.
func feedbackFor(seq []match) []string {
	var worst *match
	for i := range seq {
		m := &seq[i]
		if m.kind == matchBruteforce {
			continue
		}
		if worst == nil || m.j-m.i > worst.j-worst.i {
			worst = m
		}
	}

	extra := "Add another word or two; uncommon words are better"
	if worst == nil {
		return []string{"Password is too easy to guess", extra}
	}

	switch worst.kind {
	case matchUserInput:
		return []string{"Avoid using your name, username or email address", extra}
	case matchDictionary:
		return []string{"This is similar to a commonly used password", extra}
	case matchSequence:
		return []string{"Sequences like abc or 6543 are easy to guess", "Avoid sequences"}
	case matchKeyboard:
		return []string{"Straight rows of keys are easy to guess", "Use a longer keyboard pattern with more turns"}
	case matchRepeat:
		return []string{"Repeated patterns like \"abcabcabc\" are easy to guess", "Avoid repeated words and characters"}
	default:
		return []string{"Password is too easy to guess", extra}
	}
}
