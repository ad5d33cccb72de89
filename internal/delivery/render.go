package delivery

import (
	"bytes"
	"html/template"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"github.com/russross/blackfriday/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/digest-cli/internal/model"
)

// DefaultTitle heads every digest.
const DefaultTitle = "Your Daily News Digest"

const contentTemplate = `<h1 style="color: #2c3e50;">{{.Title}}</h1>
<p class="meta" style="color: #7f8c8d; font-size: 0.9em;">{{.Date}} | {{.Meta}}</p>
{{range .Sections}}<div class="summary" style="margin-bottom: 30px;">
<h2 style="color: #34495e; border-bottom: 2px solid #3498db; padding-bottom: 5px;">{{.Topic}}</h2>
<div class="summary-content" style="margin-left: 20px;">
{{.Body}}
</div>
{{if .Sources}}<p style="font-size: 0.85em;">Sources:</p>
<ul>{{range .Sources}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>{{end}}
</div>
{{end}}`

const pageTemplate = `<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
{{.}}
</body>
</html>`

// Renderer turns a digest into an HTML email with a plain-text alternative.
type Renderer struct {
	title   string
	content *template.Template
	page    *template.Template
	policy  *bluemonday.Policy
	text    *md.Converter
	printer *message.Printer
}

// NewRenderer creates a Renderer. An empty title uses DefaultTitle.
func NewRenderer(title string) *Renderer {
	if title == "" {
		title = DefaultTitle
	}
	return &Renderer{
		title:   title,
		content: template.Must(template.New("content").Parse(contentTemplate)),
		page:    template.Must(template.New("page").Parse(pageTemplate)),
		policy:  bluemonday.UGCPolicy(),
		text:    md.NewConverter("", true, nil),
		printer: message.NewPrinter(language.English),
	}
}

type sectionView struct {
	Topic   string
	Body    template.HTML
	Sources []string
}

// Render returns the HTML and plain-text bodies for d. Section summaries are
// Markdown; they are converted and sanitized before embedding.
func (r *Renderer) Render(d model.Digest) (string, string, error) {
	sections := make([]sectionView, 0, len(d.Sections))
	for _, s := range d.Sections {
		sections = append(sections, sectionView{
			Topic:   s.Topic,
			Body:    template.HTML(r.markdownToHTML(s.Summary)), //nolint:gosec // sanitized by bluemonday
			Sources: s.Sources,
		})
	}

	var content bytes.Buffer
	err := r.content.Execute(&content, struct {
		Title    string
		Date     string
		Meta     string
		Sections []sectionView
	}{
		Title:    r.title,
		Date:     d.GeneratedAt.UTC().Format("January 02, 2006"),
		Meta:     r.printer.Sprintf("%d Topics Analyzed", len(d.Sections)),
		Sections: sections,
	})
	if err != nil {
		return "", "", eris.Wrap(err, "delivery: render digest")
	}

	var page bytes.Buffer
	if err := r.page.Execute(&page, template.HTML(content.String())); err != nil { //nolint:gosec // built from escaped template output
		return "", "", eris.Wrap(err, "delivery: render page")
	}

	text, err := r.text.ConvertString(content.String())
	if err != nil {
		return "", "", eris.Wrap(err, "delivery: render text part")
	}
	return page.String(), strings.TrimSpace(text), nil
}

func (r *Renderer) markdownToHTML(summary string) string {
	raw := blackfriday.Run([]byte(summary))
	return string(r.policy.SanitizeBytes(raw))
}
