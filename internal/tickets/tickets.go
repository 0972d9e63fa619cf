// Package tickets provides the ticket provider contract, a gh-backed GitHub
// provider, and prompt-ticket synthesis.
//
// Linear and Jira providers live outside the engine; the orchestrator only
// depends on the Provider interface. Prompt-sourced tickets never touch a
// provider.
package tickets

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// titleMaxChars bounds synthesised ticket titles.
const titleMaxChars = 100

// Provider defines the operations the engine needs from a ticket system.
type Provider interface {
	// Fetch retrieves a ticket by provider-native id.
	Fetch(ctx context.Context, id string, source constants.TicketSource) (*domain.Ticket, error)

	// UpdateStatus moves the ticket to a new provider status, optionally
	// attaching the run's pull request URL.
	UpdateStatus(ctx context.Context, ticket *domain.Ticket, status string, prURL string) error
}

// Synthesize builds a ticket from free-form prompt text: the whole prompt
// becomes the description and the first 100 characters the title.
func Synthesize(id, prompt string) (*domain.Ticket, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt: %w", sferrors.ErrEmptyValue)
	}
	return &domain.Ticket{
		ID:          id,
		Source:      constants.SourcePrompt,
		Title:       truncate(prompt, titleMaxChars),
		Description: prompt,
		Priority:    constants.PriorityP2,
	}, nil
}

// truncate cuts s to at most n runes without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Resolve fetches a ticket from the provider, or synthesises one when the
// source is "prompt". A prompt source needs no provider.
func Resolve(ctx context.Context, provider Provider, id string, source constants.TicketSource, promptText string) (*domain.Ticket, error) {
	if source == constants.SourcePrompt {
		return Synthesize(id, promptText)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrUnknownTicketSource, source)
	}
	ticket, err := provider.Fetch(ctx, id, source)
	if err != nil {
		return nil, fmt.Errorf("fetch ticket %s: %w", id, err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrTicketNotFound, id)
	}
	return ticket, nil
}
