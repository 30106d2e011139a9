package htmlutil

import "github.com/PuerkitoBio/goquery"

const (
	sectionSelector = "section.node_category"
	headingSelector = "h3"
)

// SectionMap maps the heading of a profile "category section" to its content.
type SectionMap map[string]*goquery.Selection

// BuildSectionMap partitions a page into its category sections keyed by heading
// text. Sections come and go between profiles and are not ordered, so callers
// must treat every key as optional.
//
// When two sections share a heading the one later in the document wins.
func BuildSectionMap(doc *goquery.Selection) SectionMap {
	sections := SectionMap{}
	doc.Find(sectionSelector).Each(func(_ int, section *goquery.Selection) {
		heading := Text(section.Find(headingSelector).First())
		if heading == "" {
			return
		}
		content := section.Find("div").First()
		if content.Length() == 0 {
			content = section
		}
		sections[heading] = content
	})
	return sections
}

// Get returns the content of a section, ok is false if the page lacks it.
func (m SectionMap) Get(heading string) (*goquery.Selection, bool) {
	sel, ok := m[heading]
	return sel, ok
}
