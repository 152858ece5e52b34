// Package project defines the projects listed in the dashboard's project pane.
package project

import (
	"fmt"
	"unicode"

	"github.com/Strob0t/forgetop/internal/domain"
)

// Project is a code repository the automation tool works on.
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Validate checks the fields the project pane relies on.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	if p.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(p.Name) > 255 {
		return fmt.Errorf("name exceeds 255 characters: %w", domain.ErrValidation)
	}
	for _, r := range p.Name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}
