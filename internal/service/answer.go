package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NoSegmentsAnswer is returned when no segment matches the question.
const NoSegmentsAnswer = "No relevant video splits found."

// DefaultAskSegments is the number of segments given to the model as context.
const DefaultAskSegments = 8

// ErrNoModel indicates question answering was requested without a configured LLM.
var ErrNoModel = errors.New("no LLM configured")

// Generator produces a completion for a system and a user prompt.
type Generator interface {
	GenerateWithSystem(ctx context.Context, system, user string) (string, error)
}

// Answer is a model answer with the segments it was grounded on.
type Answer struct {
	Question string         `json:"question" yaml:"question"`
	Answer   string         `json:"answer" yaml:"answer"`
	Segments []SearchResult `json:"relevant_segments" yaml:"relevant_segments"`
}

// AnswerService answers questions from retrieved transcript segments.
type AnswerService struct {
	search *SearchService
	gen    Generator
}

// NewAnswerService creates an answer service. gen may be nil, in which case
// Ask fails with ErrNoModel once segments are found.
func NewAnswerService(search *SearchService, gen Generator) *AnswerService {
	return &AnswerService{search: search, gen: gen}
}

const answerSystemPrompt = `You are an expert assistant for video analysis.
Answer the question using only the numbered transcript segments provided.
Reference the segments you rely on by number and timestamp.
If no relevant information is found in the segments, say so.`

// Ask retrieves up to k segments for question and asks the model to answer
// from them. k <= 0 uses DefaultAskSegments.
func (a *AnswerService) Ask(ctx context.Context, question string, k int) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: question is required", ErrInvalidQuery)
	}
	if k <= 0 {
		k = DefaultAskSegments
	}

	results, err := a.search.Search(ctx, SearchQuery{Query: question, MaxResults: k})
	if err != nil {
		return Answer{}, err
	}
	if len(results) == 0 {
		return Answer{Question: question, Answer: NoSegmentsAnswer, Segments: []SearchResult{}}, nil
	}
	if a.gen == nil {
		return Answer{}, ErrNoModel
	}

	text, err := a.gen.GenerateWithSystem(ctx, answerSystemPrompt, answerPrompt(question, results))
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	return Answer{Question: question, Answer: strings.TrimSpace(text), Segments: results}, nil
}

func answerPrompt(question string, results []SearchResult) string {
	var b strings.Builder
	b.WriteString("Transcript segments:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "Segment %d (%s, %.0fs-%.0fs):\n%s\n\n", i+1, r.VideoID, r.StartTime, r.EndTime, r.Text)
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}
