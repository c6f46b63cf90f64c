package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"document-qa/internal/llmservice"
	"document-qa/internal/models"
)

// Composer renders the grounded prompt and asks the generative model
type Composer struct {
	generator   llmservice.Generator
	template    prompts.PromptTemplate
	temperature float64
}

func NewComposer(generator llmservice.Generator, temperature float64) *Composer {
	return &Composer{
		generator:   generator,
		template:    prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question"}),
		temperature: temperature,
	}
}

// Prompt renders the answer prompt
func (c *Composer) Prompt(question string, assembled models.AssembledContext) (string, error) {
	return c.template.Format(map[string]any{
		"context":  assembled.Text,
		"question": question,
	})
}

// Answer returns the generated text unmodified with the context's provenance
func (c *Composer) Answer(ctx context.Context, question string, assembled models.AssembledContext) (models.AnswerRecord, error) {
	prompt, err := c.Prompt(question, assembled)
	if err != nil {
		return models.AnswerRecord{}, fmt.Errorf("%w: rendering prompt: %v", models.ErrGenerationService, err)
	}
	log.Debug().Int("prompt_chars", len(prompt)).Float64("temperature", c.temperature).Msg("Generating answer")

	text, err := c.generator.Generate(ctx, prompt, c.temperature)
	if err != nil {
		return models.AnswerRecord{}, fmt.Errorf("%w: %v", models.ErrGenerationService, err)
	}

	sources := make([]string, len(assembled.Sources))
	copy(sources, assembled.Sources)
	return models.AnswerRecord{
		Question:   question,
		AnswerText: text,
		Sources:    sources,
	}, nil
}
