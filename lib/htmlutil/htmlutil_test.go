package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "Log out", NormalizeText("\n\t  Log \n   out ​ "))
	require.Equal(t, "", NormalizeText(" \n "))
	require.Equal(t, "User details", NormalizeText("User\ndetails"))
	require.Equal(t, "Calculus 1", NormalizeText("Calculus\u00a01"))
	require.Equal(t, "a b", NormalizeText("a\tb"))
}

func TestBuildSectionMapWrappedHeading(t *testing.T) {
	doc := parse(t, `
		<section class="node_category"><h3>Course
details</h3><ul><li><a href="/course/view.php?id=1">Calculus&nbsp;1</a></li></ul></section>`)

	sections := BuildSectionMap(doc.Selection)
	section, ok := sections.Get("Course details")
	require.True(t, ok)
	anchors := GetAnchors(nil, section.Find("a"))
	require.Len(t, anchors, 1)
	require.Equal(t, "Calculus 1", anchors[0].Name)
}

func TestGetAnchors(t *testing.T) {
	doc := parse(t, `
		<div class="dropdown-menu">
			<a class="dropdown-item" href="/user/profile.php?id=12"> Profile </a>
			<a class="dropdown-item" href="https://lms.example.edu/login/logout.php?sesskey=abc">
				<span>Log</span> <span>out</span>
			</a>
		</div>`)

	base, err := url.Parse("https://lms.example.edu/")
	require.NoError(t, err)

	anchors := GetAnchors(base, doc.Find("a.dropdown-item"))
	require.Len(t, anchors, 2)
	require.Equal(t, "Profile", anchors[0].Name)
	require.Equal(t, "https://lms.example.edu/user/profile.php?id=12", anchors[0].Url.String())
	require.Equal(t, "Log out", anchors[1].Name)

	logout, ok := FindAnchor(anchors, "Log out")
	require.True(t, ok)
	require.Equal(t, "abc", logout.Url.Query().Get("sesskey"))

	_, ok = FindAnchor(anchors, "Preferences")
	require.False(t, ok)
}

func TestBuildSectionMap(t *testing.T) {
	doc := parse(t, `
		<section class="node_category"><div class="card-body">
			<h3>Course details</h3><ul><li><a href="/course/view.php?id=1">A</a></li></ul>
		</div></section>
		<section class="node_category"><h3>  User details </h3><div><dl><dd>x@example.edu</dd></dl></div></section>
		<section class="node_category"><div><p>no heading</p></div></section>
		<section class="other"><h3>Ignored</h3><div></div></section>`)

	sections := BuildSectionMap(doc.Selection)
	require.Len(t, sections, 2)

	courses, ok := sections.Get("Course details")
	require.True(t, ok)
	require.Equal(t, 1, courses.Find("a").Length())

	details, ok := sections.Get("User details")
	require.True(t, ok)
	require.Equal(t, "x@example.edu", Text(details.Find("dd")))

	_, ok = sections.Get("Ignored")
	require.False(t, ok)
	_, ok = sections.Get("Login activity")
	require.False(t, ok)
}

func TestBuildSectionMapDuplicateHeading(t *testing.T) {
	doc := parse(t, `
		<section class="node_category"><h3>Miscellaneous</h3><div><p>first</p></div></section>
		<section class="node_category"><h3>Miscellaneous</h3><div><p>second</p></div></section>`)

	sections := BuildSectionMap(doc.Selection)
	require.Len(t, sections, 1)
	misc, ok := sections.Get("Miscellaneous")
	require.True(t, ok)
	require.Equal(t, "second", Text(misc))
}
