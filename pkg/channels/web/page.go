package web

import (
	_ "embed"
	"html/template"
	"io"

	"polymath/pkg/config"
)

//go:embed page.html
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

// Page holds the texts rendered around the chat.
type Page struct {
	Title               string
	Subtitle            string
	CredentialLabel     string
	CredentialHelpURL   string
	QuestionPlaceholder string
	DefaultQuestion     string
	Footer              string
}

// PageFromConfig copies the page texts out of the application config.
func PageFromConfig(cfg *config.Config) Page {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return Page{
		Title:               cfg.Title,
		Subtitle:            cfg.Subtitle,
		CredentialLabel:     cfg.CredentialLabel,
		CredentialHelpURL:   cfg.CredentialHelpURL,
		QuestionPlaceholder: cfg.QuestionPlaceholder,
		DefaultQuestion:     cfg.DefaultQuestion,
		Footer:              cfg.Footer,
	}
}

func (p Page) render(w io.Writer) error {
	return pageTemplate.Execute(w, p)
}
