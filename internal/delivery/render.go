package delivery

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vrsandeep/litpush/internal/models"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<html><body>
<h2>New articles for "{{.Query}}"</h2>
<ol>
{{range .Articles}}<li class="article"><a class="title" href="{{.URL}}">{{.Title}}</a>
<div class="meta">{{.Journal}}{{if .PublishedAt}} ({{.PublishedAt.Format "2006-01-02"}}){{end}}</div>
{{if .Authors}}<div class="authors">{{.Authors}}</div>{{end}}</li>
{{end}}</ol>
</body></html>`))

// RenderDigest builds the subject and both bodies of a digest. The plain text
// part is derived from the rendered HTML.
func RenderDigest(sub *models.Subscription, articles []models.Article) (subject, html, text string, err error) {
	subject = fmt.Sprintf("%d new article", len(articles))
	if len(articles) != 1 {
		subject += "s"
	}
	subject += fmt.Sprintf(" for %q", sub.Query)

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, struct {
		Query    string
		Articles []models.Article
	}{sub.Query, articles}); err != nil {
		return "", "", "", fmt.Errorf("render digest: %w", err)
	}
	html = buf.String()

	text, err = htmlToText(html)
	if err != nil {
		return "", "", "", err
	}
	return subject, html, text, nil
}

func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse digest html: %w", err)
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(doc.Find("h2").First().Text()))
	b.WriteString("\n\n")
	doc.Find("li.article").Each(func(i int, s *goquery.Selection) {
		link := s.Find("a.title")
		href, _ := link.Attr("href")
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(link.Text()))
		if meta := strings.TrimSpace(s.Find(".meta").Text()); meta != "" {
			fmt.Fprintf(&b, "   %s\n", meta)
		}
		if authors := strings.TrimSpace(s.Find(".authors").Text()); authors != "" {
			fmt.Fprintf(&b, "   %s\n", authors)
		}
		if href != "" {
			fmt.Fprintf(&b, "   %s\n", href)
		}
		b.WriteString("\n")
	})
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
