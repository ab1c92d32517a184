package atoms

import (
	"context"
	"strings"
	"unicode"
)

// Similarity scores how strongly text matches a reference anchor, in [0,1].
// Implementations are external collaborators (embedding services and the
// like); the layer treats any error as a zero contribution.
type Similarity interface {
	Similarity(ctx context.Context, text, anchor string) (float64, error)
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(ctx context.Context, text, anchor string) (float64, error)

// Similarity calls f.
func (f SimilarityFunc) Similarity(ctx context.Context, text, anchor string) (float64, error) {
	return f(ctx, text, anchor)
}

// LexicalSimilarity is a deterministic offline similarity: the fraction of
// the anchor's tokens that appear in the text. Multi-word anchors therefore
// score partially when only some words are present.
type LexicalSimilarity struct{}

// Similarity implements Similarity.
func (LexicalSimilarity) Similarity(_ context.Context, text, anchor string) (float64, error) {
	anchorTokens := Tokenize(anchor)
	if len(anchorTokens) == 0 {
		return 0, nil
	}
	present := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		present[tok] = true
	}
	hits := 0
	for _, tok := range anchorTokens {
		if present[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(anchorTokens)), nil
}

// Tokenize lower-cases text, splits on anything that is not a letter, digit
// or apostrophe, drops stop words and folds common suffixes.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" || stopWords[f] {
			continue
		}
		out = append(out, fold(f))
	}
	return out
}

// fold strips a handful of English suffixes so inflected forms usually
// meet their stems.
func fold(tok string) string {
	tok = strings.ReplaceAll(tok, "'", "")
	for _, suffix := range []string{"ing", "ed", "ly", "es", "s"} {
		if len(tok) > len(suffix)+2 && strings.HasSuffix(tok, suffix) {
			tok = strings.TrimSuffix(tok, suffix)
			break
		}
	}
	// stopp -> stop
	if n := len(tok); n > 3 && tok[n-1] == tok[n-2] {
		tok = tok[:n-1]
	}
	return tok
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "is": true,
	"am": true, "are": true, "was": true, "be": true, "it": true, "this": true,
	"that": true, "i": true, "im": true, "i'm": true, "my": true, "me": true,
	"so": true, "just": true, "really": true, "very": true, "with": true,
	"for": true, "have": true, "has": true, "do": true,
}
