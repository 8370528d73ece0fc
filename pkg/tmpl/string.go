package tmpl

import (
	"fmt"
)

// TemplateString is template source embedded in configuration, such as an
// output path in a manifest.
type TemplateString string

func (t TemplateString) Validate() error {
	if _, err := defaultEngine.Parse(string(t)); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

func (t TemplateString) Render(ctx Value) (string, error) {
	return defaultEngine.RenderTemplate(string(t), ctx)
}
