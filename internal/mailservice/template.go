package mailservice

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*
var templateFS embed.FS

func NewTemplate() *Template {
	return &Template{}
}

// ParseTemplate renders the subject, plainBody and htmlBody blocks of the
// named template with data.
func (tp *Template) ParseTemplate(name string, data any) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer, error) {
	t, err := template.New("email").ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not parse template: %w", err)
	}

	buffers := make([]*bytes.Buffer, 3)
	for i, block := range []string{"subject", "plainBody", "htmlBody"} {
		buffers[i] = new(bytes.Buffer)
		if err := t.ExecuteTemplate(buffers[i], block, data); err != nil {
			return nil, nil, nil, fmt.Errorf("could not render %s of %s: %w", block, name, err)
		}
	}

	return buffers[0], buffers[1], buffers[2], nil
}
