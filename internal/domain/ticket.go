// Package domain provides shared domain types for the SprintFoundry
// orchestration engine. These types are used across all internal packages to
// ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import (
	"encoding/json"
	"strings"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
)

// Ticket is the immutable unit of work a run is created for. It is fetched
// from a ticket provider (Linear, GitHub, Jira) or synthesised from a prompt,
// and never mutated once a run holds it.
//
// Example JSON representation:
//
//	{
//	    "id": "ENG-1423",
//	    "source": "linear",
//	    "title": "Add rate limiting to the webhook endpoint",
//	    "priority": "p1",
//	    "labels": ["backend", "security"],
//	    "acceptance_criteria": ["429 returned above threshold"]
//	}
type Ticket struct {
	// ID is the provider-native ticket identifier.
	ID string `json:"id"`

	// Source identifies which provider the ticket came from.
	Source constants.TicketSource `json:"source"`

	// Title is the one-line summary of the ticket.
	Title string `json:"title"`

	// Description is the full body of the ticket.
	Description string `json:"description"`

	// Labels are the provider labels attached to the ticket.
	Labels []string `json:"labels,omitempty"`

	// Priority is the ticket priority (p0 highest).
	Priority constants.Priority `json:"priority"`

	// AcceptanceCriteria lists the conditions the work must satisfy.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`

	// LinkedTickets lists related ticket ids.
	LinkedTickets []string `json:"linked_tickets,omitempty"`

	// Comments are provider comments, newest last.
	Comments []TicketComment `json:"comments,omitempty"`

	// Author is the ticket creator.
	Author string `json:"author,omitempty"`

	// Assignee is the current assignee, if any.
	Assignee string `json:"assignee,omitempty"`

	// Raw preserves the provider's original payload untouched.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// TicketComment is a single provider comment on a ticket.
type TicketComment struct {
	// Author is the comment author.
	Author string `json:"author"`

	// Body is the comment text.
	Body string `json:"body"`
}

// HasLabel reports whether the ticket carries the given label,
// compared case-insensitively as a substring (provider labels are free-form).
func (t *Ticket) HasLabel(substr string) bool {
	needle := strings.ToLower(substr)
	for _, l := range t.Labels {
		if strings.Contains(strings.ToLower(l), needle) {
			return true
		}
	}
	return false
}
