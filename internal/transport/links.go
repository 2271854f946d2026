package transport

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/unclebandit/campaign-dispatch/internal/tracking"
)

var trackingKey = parser.NewContextKey()

type trackingTarget struct {
	links     tracking.Links
	messageID string
}

// clickRewriter points every web link in the HTML part at the signed click
// endpoint. It does nothing unless the parse context carries a trackingTarget.
type clickRewriter struct{}

func (clickRewriter) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	tt, ok := pc.Get(trackingKey).(trackingTarget)
	if !ok {
		return
	}
	source := reader.Source()
	var autos []*ast.AutoLink
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := n.(type) {
		case *ast.Link:
			if dest := string(l.Destination); isWebURL(dest) {
				l.Destination = []byte(tt.links.ClickURL(tt.messageID, dest))
			}
		case *ast.AutoLink:
			if l.AutoLinkType == ast.AutoLinkURL && isWebURL(string(l.URL(source))) {
				autos = append(autos, l)
			}
		}
		return ast.WalkContinue, nil
	})
	// Autolinks have no settable destination, so they become plain links
	// keeping their visible label.
	for _, a := range autos {
		link := ast.NewLink()
		link.Destination = []byte(tt.links.ClickURL(tt.messageID, string(a.URL(source))))
		link.AppendChild(link, ast.NewString(a.Label(source)))
		a.Parent().ReplaceChild(a.Parent(), a, link)
	}
}

func isWebURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(clickRewriter{}, 500)),
		),
	)
}

// renderHTML converts the plain body into the HTML alternative. With
// tracking enabled its links go through the click endpoint and the open
// pixel is appended.
func renderHTML(md goldmark.Markdown, body string, links tracking.Links, messageID string) (string, error) {
	track := links.Enabled() && messageID != ""
	pc := parser.NewContext()
	if track {
		pc.Set(trackingKey, trackingTarget{links: links, messageID: messageID})
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf, parser.WithContext(pc)); err != nil {
		return "", fmt.Errorf("render html body: %w", err)
	}
	if track {
		buf.WriteString(pixelTag(links, messageID))
	}
	return buf.String(), nil
}

func pixelTag(links tracking.Links, messageID string) string {
	src := html.EscapeString(links.OpenURL(messageID))
	return `<img src="` + src + `" width="1" height="1" alt="" style="display:none">`
}
