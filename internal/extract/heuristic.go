package extract

import (
	"context"
	"slices"
	"strings"
	"unicode"
)

// Heuristic extracts entities as runs of capitalized words and topics from a
// keyword lexicon. It needs no model and never fails.
type Heuristic struct {
	lexicon map[string][]string // topic -> keywords
}

// DefaultLexicon maps topic labels to the lowercase keywords that signal them.
var DefaultLexicon = map[string][]string{
	"space":          {"rocket", "rockets", "orbit", "orbital", "launch", "mars", "moon", "nasa", "satellite", "spacecraft", "astronaut"},
	"technology":     {"software", "hardware", "computer", "chip", "chips", "internet", "app", "startup", "technology"},
	"ai":             {"ai", "artificial", "neural", "model", "models", "gpt", "llm", "machine learning", "training"},
	"electric cars":  {"electric", "ev", "battery", "batteries", "charging", "tesla"},
	"energy":         {"solar", "energy", "power", "grid", "oil", "gas", "nuclear"},
	"business":       {"company", "companies", "revenue", "market", "investors", "profit", "stock", "ceo"},
	"politics":       {"election", "government", "president", "senate", "policy", "congress", "vote"},
	"science":        {"research", "experiment", "physics", "biology", "chemistry", "scientists"},
	"health":         {"health", "doctor", "medicine", "disease", "vaccine", "hospital"},
	"social media":   {"twitter", "instagram", "tiktok", "youtube", "followers", "post", "posts"},
	"education":      {"school", "university", "students", "teacher", "learning", "course"},
	"climate":        {"climate", "carbon", "emissions", "warming"},
	"sports":         {"game", "team", "season", "player", "coach", "championship"},
	"finance":        {"money", "bank", "crypto", "bitcoin", "inflation", "interest"},
	"transportation": {"car", "cars", "train", "plane", "flight", "traffic", "tunnel"},
}

// Capitalized words that start sentences or fill speech rather than name things.
var stopCapitalized = map[string]bool{
	"i": true, "the": true, "a": true, "an": true, "and": true, "but": true, "so": true, "or": true,
	"we": true, "you": true, "he": true, "she": true, "it": true, "they": true, "this": true,
	"that": true, "there": true, "then": true, "now": true, "well": true, "yes": true, "no": true,
	"okay": true, "ok": true, "oh": true, "if": true, "when": true, "what": true, "why": true,
	"how": true, "who": true, "where": true, "in": true, "on": true, "at": true, "of": true,
	"for": true, "to": true, "my": true, "our": true, "your": true, "is": true, "are": true,
	"was": true, "do": true, "did": true, "let": true, "just": true, "like": true, "um": true,
	"uh": true, "right": true, "also": true, "because": true, "all": true, "thank": true,
	"thanks": true, "hello": true, "hi": true, "today": true, "here": true, "as": true,
}

// NewHeuristic creates a heuristic extractor using DefaultLexicon.
func NewHeuristic() *Heuristic {
	return &Heuristic{lexicon: DefaultLexicon}
}

// NewHeuristicWithLexicon uses a custom topic lexicon.
func NewHeuristicWithLexicon(lexicon map[string][]string) *Heuristic {
	return &Heuristic{lexicon: lexicon}
}

// Extract implements Extractor.
func (h *Heuristic) Extract(ctx context.Context, text string) (Annotations, error) {
	if err := ctx.Err(); err != nil {
		return Annotations{}, err
	}
	return normalized(h.entities(text), h.topics(text)), nil
}

type token struct {
	word          string
	sentenceStart bool
	breakAfter    bool // punctuation ends the current name run
}

func tokenize(text string) []token {
	var (
		tokens  []token
		sb      strings.Builder
		start   = true
		pending bool
	)
	flush := func(breakAfter bool) {
		if sb.Len() == 0 {
			if breakAfter && len(tokens) > 0 {
				tokens[len(tokens)-1].breakAfter = true
			}
			return
		}
		tokens = append(tokens, token{word: sb.String(), sentenceStart: pending, breakAfter: breakAfter})
		sb.Reset()
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-' || r == '&':
			if sb.Len() == 0 {
				pending = start
				start = false
			}
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			flush(false)
		case r == '.' || r == '!' || r == '?':
			flush(true)
			start = true
		default:
			flush(true)
		}
	}
	flush(true)
	return tokens
}

func isCapitalized(w string) bool {
	for _, r := range w {
		return unicode.IsUpper(r)
	}
	return false
}

func (h *Heuristic) entities(text string) []string {
	var (
		out []string
		run []token
	)
	emit := func() {
		for len(run) > 0 && stopCapitalized[strings.ToLower(run[0].word)] {
			run = run[1:]
		}
		// A lone capitalized sentence opener is more often grammar than a name.
		if len(run) == 1 && run[0].sentenceStart && !nameLike(run[0].word) {
			run = nil
		}
		if len(run) > 0 {
			words := make([]string, len(run))
			for i, t := range run {
				words[i] = strings.TrimSuffix(t.word, "'s")
			}
			out = append(out, strings.Join(words, " "))
		}
		run = nil
	}

	for _, t := range tokenize(text) {
		t.word = strings.Trim(t.word, "'-")
		if len(t.word) > 1 && isCapitalized(t.word) {
			run = append(run, t)
		} else {
			emit()
		}
		if t.breakAfter {
			emit()
		}
	}
	emit()
	return out
}

// nameLike reports acronyms and camel-cased brands such as "NASA" or "SpaceX".
func nameLike(w string) bool {
	for i, r := range w {
		if i > 0 && unicode.IsUpper(r) {
			return true
		}
	}
	return isAcronym(w)
}

func isAcronym(w string) bool {
	if len(w) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (h *Heuristic) topics(text string) []string {
	lower := " " + strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "

	var out []string
	for topic, keywords := range h.lexicon {
		if slices.ContainsFunc(keywords, func(k string) bool {
			return strings.Contains(lower, " "+k+" ")
		}) {
			out = append(out, topic)
		}
	}
	return out
}
