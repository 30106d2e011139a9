package htmlutil

import (
	"bytes"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText strips non-printable runes, trims the ends and collapses
// every run of unicode whitespace (no-break spaces included) into a single
// space.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(removeNonPrintable(text)), " ")
}

// Text is the normalized text content of every node in the selection.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return NormalizeText(buffer.String())
}

type Anchor struct {
	Name string
	Url  *url.URL
}

// GetAnchors collects every <a> in the selection, resolving hrefs against `base`.
// Anchors with an unparsable href are skipped.
func GetAnchors(base *url.URL, sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		anchors = append(anchors, Anchor{
			Name: NormalizeText(GetText(n)),
			Url:  link,
		})
	}
	return anchors
}

// FindAnchor returns the first anchor whose name contains `label`.
func FindAnchor(anchors []Anchor, label string) (Anchor, bool) {
	for _, a := range anchors {
		if strings.Contains(a.Name, label) {
			return a, true
		}
	}
	return Anchor{}, false
}
