package domain

import (
	"errors"

	"github.com/google/uuid"
)

// Common validation errors for PosterTemplate
var (
	ErrEmptyTemplateName = errors.New("template name cannot be empty")
	ErrEmptyTemplateURL  = errors.New("template URL cannot be empty")
)

// PosterTemplate is one of the compose-step variants. The compose step
// picks uniformly at random among enabled templates at submission time;
// the choice is not load-bearing for correctness.
type PosterTemplate struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Style   string    `json:"style,omitempty"`
	Enabled bool      `json:"enabled"`
}

// Validate checks if the PosterTemplate has valid data.
func (p *PosterTemplate) Validate() error {
	if p.Name == "" {
		return ErrEmptyTemplateName
	}

	if p.URL == "" {
		return ErrEmptyTemplateURL
	}

	return nil
}
