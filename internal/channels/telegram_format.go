package channels

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var telegramMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// formatTelegram renders markdown as the HTML subset Telegram accepts. It
// reports false when rendering fails; callers then send s as plain text.
func formatTelegram(s string) (string, bool) {
	out, err := renderTelegram(s, telegramMarkdown)
	if err != nil {
		return "", false
	}
	return out, true
}

func renderTelegram(s string, md goldmark.Markdown) (string, error) {
	if md == nil {
		return "", errors.New("markdown parser is required")
	}
	source := []byte(s)
	doc := md.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Document:
		case *ast.Paragraph:
			if !entering && n.NextSibling() != nil {
				b.WriteString("\n\n")
			}
		case *ast.TextBlock:
			if !entering && n.NextSibling() != nil {
				b.WriteString("\n")
			}
		case *ast.Heading:
			if entering {
				b.WriteString("<b>")
			} else {
				b.WriteString("</b>\n")
			}
		case *ast.List:
			if !entering && n.NextSibling() != nil {
				b.WriteString("\n")
			}
		case *ast.ListItem:
			if entering {
				b.WriteString(listMarker(node))
			} else {
				b.WriteString("\n")
			}
		case *ast.Blockquote:
			if entering {
				b.WriteString("<blockquote>")
			} else {
				b.WriteString("</blockquote>\n")
			}
		case *ast.Emphasis:
			tag := "i"
			if node.Level >= 2 {
				tag = "b"
			}
			writeTag(&b, tag, entering)
		case *extast.Strikethrough:
			writeTag(&b, "s", entering)
		case *ast.CodeSpan:
			writeTag(&b, "code", entering)
		case *ast.Link:
			if entering {
				fmt.Fprintf(&b, `<a href="%s">`, html.EscapeString(string(node.Destination)))
			} else {
				b.WriteString("</a>")
			}
		case *ast.AutoLink:
			if entering {
				b.WriteString(html.EscapeString(string(node.Label(source))))
			}
		case *ast.Text:
			if entering {
				b.WriteString(html.EscapeString(string(node.Segment.Value(source))))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				b.WriteString(html.EscapeString(string(node.Value)))
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if !entering {
				return ast.WalkContinue, nil
			}
			b.WriteString("<pre><code>")
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				b.WriteString(html.EscapeString(string(segment.Value(source))))
			}
			b.WriteString("</code></pre>")
			if n.NextSibling() != nil {
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func listMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "- "
	}
	index := list.Start
	for prev := item.PreviousSibling(); prev != nil; prev = prev.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%d%c ", index, list.Marker)
}

func writeTag(b *strings.Builder, tag string, entering bool) {
	if entering {
		fmt.Fprintf(b, "<%s>", tag)
		return
	}
	fmt.Fprintf(b, "</%s>", tag)
}
