package models

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks a thought payload handed over by the generation engine.
func Validate(t *Thought) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thought: %w", err)
	}
	return nil
}
