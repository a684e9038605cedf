package outline

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jackzampolin/outline/internal/types"
)

const (
	minContentRunes = 10
	maxLinkDensity  = 0.8
)

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Nav: true,
}

var navClasses = []string{
	"nav", "navigation", "menu", "breadcrumb", "sidebar", "footer", "header",
	"toolbar", "pagination", "toc", "shortcuts", "metadata", "actions", "controls",
}

var navText = regexp.MustCompile(`(首页|主页|返回|上一页|下一页|目录|导航)\s*[>›]`)

// ParseHTML extracts h1-h6 headings in document order, wherever they are nested.
// A chapter's content is the text between it and the next heading. Elements
// without a heading inside are taken whole; the rest are descended into.
// Navigation chrome and short fragments are dropped.
func ParseHTML(r io.Reader) ([]types.Chapter, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var chapters []types.Chapter
	var content [][]string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if lvl, ok := headingLevels[n.DataAtom]; ok {
				chapters = append(chapters, types.Chapter{
					Title:  nodeText(n),
					Level:  lvl,
					HTMLID: attr(n, "id"),
				})
				content = append(content, nil)
				return
			}
			if !hasHeading(n) {
				if len(chapters) > 0 && !hasNavClass(n) {
					if text := cleanText(nodeText(n)); validContent(n, text) {
						content[len(content)-1] = append(content[len(content)-1], text)
					}
				}
				return
			}
		}
		if n.Type == html.TextNode && len(chapters) > 0 {
			if text := cleanText(n.Data); validContent(n, text) {
				content[len(content)-1] = append(content[len(content)-1], text)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for i := range chapters {
		chapters[i].Content = strings.Join(content[i], "\n\n")
	}
	return chapters, nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return cleanText(b.String())
}

func hasHeading(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || skipped[c.DataAtom] {
			continue
		}
		if _, ok := headingLevels[c.DataAtom]; ok || hasHeading(c) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasNavClass(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	if class == "" {
		return false
	}
	for _, c := range strings.Fields(class) {
		for _, nav := range navClasses {
			if c == nav {
				return true
			}
		}
	}
	return false
}

func validContent(n *html.Node, text string) bool {
	total := utf8.RuneCountInString(text)
	if total < minContentRunes || navText.MatchString(text) {
		return false
	}
	links := 0
	var count func(*html.Node)
	count = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			links += utf8.RuneCountInString(nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			count(c)
		}
	}
	count(n)
	return float64(links)/float64(total) <= maxLinkDensity
}
