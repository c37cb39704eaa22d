// Package generation produces thoughts and gates template generation for
// signed-out callers.
package generation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/thoughtforge/thoughtsync/internal/models"
)

// Request describes what to generate.
type Request struct {
	Topic    string      `json:"topic,omitempty"`
	Mood     models.Mood `json:"mood"`
	Category string      `json:"category,omitempty"`
	UseAI    bool        `json:"useAI,omitempty"`
}

// Engine turns a request into a thought payload. Implementations set Source.
type Engine interface {
	Generate(ctx context.Context, req Request) (models.Thought, error)
}

var phrases = map[models.Mood][]string{
	models.MoodPhilosophical: {
		"What if %s is less a thing we have than a thing we keep choosing?",
		"Every question about %s is quietly a question about time.",
		"%s looks different once you stop asking what it is for.",
		"Perhaps %s is only the shape our attention leaves behind.",
	},
	models.MoodHumorous: {
		"%s: because my to-do list needed a plot twist.",
		"I tried to understand %s. %s tried harder to avoid me.",
		"Scientists agree %s is 40%% vibes and 60%% snacks.",
		"My relationship with %s is strictly read-only.",
	},
	models.MoodScientific: {
		"Measured carefully, %s turns out to be a rate, not a state.",
		"The simplest model of %s already explains most of what we observe.",
		"%s is a system with feedback; small inputs can move it far.",
		"Any claim about %s should come with its error bars.",
	},
}

// TemplateEngine fills per-mood phrase templates.
type TemplateEngine struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTemplateEngine returns an engine drawing from rnd. A nil rnd is seeded
// randomly.
func NewTemplateEngine(rnd *rand.Rand) *TemplateEngine {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &TemplateEngine{rnd: rnd}
}

func (e *TemplateEngine) Generate(ctx context.Context, req Request) (models.Thought, error) {
	list, ok := phrases[req.Mood]
	if !ok {
		return models.Thought{}, fmt.Errorf("unknown mood %q", req.Mood)
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = "everything"
	}

	e.mu.Lock()
	tmpl := list[e.rnd.IntN(len(list))]
	e.mu.Unlock()

	args := make([]any, strings.Count(tmpl, "%s"))
	for i := range args {
		args[i] = topic
	}
	content := fmt.Sprintf(tmpl, args...)
	if r := []rune(content); len(r) > 0 {
		content = strings.ToUpper(string(r[0])) + string(r[1:])
	}

	return models.Thought{
		Content:  content,
		Topic:    req.Topic,
		Mood:     req.Mood,
		Category: req.Category,
		Tags:     models.NormalizeTags([]string{req.Topic, req.Category, string(req.Mood)}),
		Source:   models.SourceTemplate,
	}, nil
}
