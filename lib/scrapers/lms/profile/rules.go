package profile

import (
	"strings"

	"snulms/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// page is a fetched profile page with its sections already mapped.
type page struct {
	doc      *goquery.Document
	sections htmlutil.SectionMap
}

// rule tries one way of reading a field, ok is false when the markup it
// looks for is not on the page.
type rule struct {
	name    string
	extract func(p page) (value string, ok bool)
}

// firstMatch runs rules in order and returns the first value found along with
// the name of the rule that produced it.
func firstMatch(p page, rules []rule) (value string, ruleName string, ok bool) {
	for _, r := range rules {
		value, ok := r.extract(p)
		if ok && value != "" {
			return value, r.name, true
		}
	}
	return "", "", false
}

const (
	sectionUserDetails   = "User details"
	sectionCourseDetails = "Course details"
	sectionLoginActivity = "Login activity"
)

var emailRules = []rule{
	{
		name: "user-details-mailto",
		extract: func(p page) (string, bool) {
			details, ok := p.sections.Get(sectionUserDetails)
			if !ok {
				return "", false
			}
			link := details.Find(`dd a[href^="mailto:"]`).First()
			return htmlutil.Text(link), link.Length() > 0
		},
	},
	{
		name: "user-details-link",
		extract: func(p page) (string, bool) {
			details, ok := p.sections.Get(sectionUserDetails)
			if !ok {
				return "", false
			}
			link := details.Find("dd").First().Find("a").First()
			return htmlutil.Text(link), link.Length() > 0
		},
	},
	{
		name: "no-overflow",
		extract: func(p page) (string, bool) {
			sel := p.doc.Find(".no-overflow").First()
			return htmlutil.Text(sel), sel.Length() > 0
		},
	},
}

func pictureSource(sel *goquery.Selection) (string, bool) {
	src, ok := sel.Attr("src")
	return strings.TrimSpace(src), ok
}

var pictureRules = []rule{
	{
		name: "page-header-image",
		extract: func(p page) (string, bool) {
			return pictureSource(p.doc.Find(".page-header-image img.userpicture").First())
		},
	},
	{
		// the navbar carries the avatar of whoever is viewing the page
		name: "userpicture",
		extract: func(p page) (string, bool) {
			img := p.doc.Find("img.userpicture").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.Closest(".usermenu").Length() == 0
			}).First()
			return pictureSource(img)
		},
	},
}
