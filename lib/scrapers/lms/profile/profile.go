package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"snulms/lib/htmlutil"
	"snulms/lib/scrapers/lms/core"
	"snulms/lib/telemetry"
	"snulms/lib/transport"
	"snulms/lib/urlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/lms/profile")

var ErrInvalidUserId = errors.New("user id must be positive")

const (
	report_resolver_self_id  = "resolver.self-id"
	report_resolver_name     = "resolver.name"
	report_resolver_email    = "resolver.email"
	report_resolver_picture  = "resolver.picture"
	report_resolver_courses  = "resolver.courses"
	report_resolver_activity = "resolver.activity"
)

const (
	labelFirstAccess = "First access to site"
	labelLastAccess  = "Last access to site"
	activityNever    = "Never"
)

type Fetcher interface {
	Get(ctx context.Context, endpoint string) (transport.Response, error)
}

// Resolver turns profile pages into User records and caches the profile of
// the logged in user.
type Resolver struct {
	http  Fetcher
	cache ProfileCache
	tel   telemetry.API

	// serializes self-profile refreshes so the cache is written by one
	// fetch at a time
	mutex sync.Mutex
}

func NewResolver(http Fetcher, cache ProfileCache, tel telemetry.API) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{
		http:  http,
		cache: cache,
		tel:   telemetry.NewScopedAPI("lms_profile", tel),
	}
}

func (r *Resolver) fetch(ctx context.Context, endpoint string) (*goquery.Document, error) {
	res, err := r.http.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, err
	}
	doc.Url = res.Url
	return doc, nil
}

func resolve(doc *goquery.Document, link string) string {
	if doc.Url == nil {
		return link
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	return doc.Url.ResolveReference(parsed).String()
}

// SelfId reads the id of the logged in user off the "Profile" action of the
// user menu.
func (r *Resolver) SelfId(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "resolver:SelfId")
	defer span.End()

	doc, err := r.fetch(ctx, "/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch base page")
		return -1, fmt.Errorf("fetch base page: %w", err)
	}

	anchors := htmlutil.GetAnchors(doc.Url, doc.Find("a.dropdown-item"))
	profile, ok := htmlutil.FindAnchor(anchors, "Profile")
	if !ok {
		r.tel.ReportBroken(report_resolver_self_id, "profile action is missing")
		span.SetStatus(codes.Error, "failed to find profile action")
		return -1, fmt.Errorf("%w: could not find profile action", core.ErrUnknown)
	}
	id, err := urlutil.ExtractIntParam("id", profile.Url.String())
	if err != nil {
		r.tel.ReportBroken(report_resolver_self_id, "profile action has no id", profile.Url.String())
		span.SetStatus(codes.Error, "failed to read user id")
		return -1, fmt.Errorf("%w: %w", core.ErrUnknown, err)
	}
	return id, nil
}

// GetUser fetches and parses the profile page of `id`. Only the name is
// required, every other field is left empty when the page does not show it.
func (r *Resolver) GetUser(ctx context.Context, id int64) (User, error) {
	ctx, span := tracer.Start(ctx, "resolver:GetUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", id))

	if id <= 0 {
		span.SetStatus(codes.Error, ErrInvalidUserId.Error())
		return User{}, fmt.Errorf("%w: %d", ErrInvalidUserId, id)
	}

	doc, err := r.fetch(ctx, fmt.Sprintf("/user/profile.php?id=%d", id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch profile page")
		return User{}, fmt.Errorf("fetch profile %d: %w", id, err)
	}
	p := page{
		doc:      doc,
		sections: htmlutil.BuildSectionMap(doc.Selection),
	}

	name := htmlutil.Text(doc.Find(".page-header-headings > h1:nth-child(1)"))
	if name == "" {
		r.tel.ReportBroken(report_resolver_name, "profile name is missing", id)
		span.SetStatus(codes.Error, "failed to find profile name")
		return User{}, fmt.Errorf("%w: could not find name on profile %d", core.ErrUnknown, id)
	}

	user := User{
		Id:      id,
		Name:    name,
		Courses: r.parseCourses(p, id),
	}

	email, rule, ok := firstMatch(p, emailRules)
	if ok {
		user.Email = email
		r.tel.ReportDebug(report_resolver_email, "rule", rule)
	} else {
		r.tel.ReportDebug(report_resolver_email, "email is hidden", id)
	}

	picture, _, ok := firstMatch(p, pictureRules)
	if ok {
		user.Picture = resolve(doc, picture)
	} else {
		r.tel.ReportDebug(report_resolver_picture, "no picture", id)
	}

	user.FirstAccess, user.LastAccess, err = r.parseActivity(p, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login activity")
		return User{}, err
	}

	return user, nil
}

func (r *Resolver) parseCourses(p page, userId int64) map[int64]string {
	courses := map[int64]string{}
	section, ok := p.sections.Get(sectionCourseDetails)
	if !ok {
		r.tel.ReportDebug(report_resolver_courses, "no course details", userId)
		return courses
	}

	for _, a := range htmlutil.GetAnchors(p.doc.Url, section.Find("a")) {
		id, err := urlutil.ExtractIntParam("course", a.Url.String())
		if err != nil {
			r.tel.ReportWarning(report_resolver_courses, "skipping course link", a.Url.String(), err)
			continue
		}
		courses[id] = a.Name
	}
	return courses
}

func (r *Resolver) parseActivity(p page, userId int64) (first time.Time, last time.Time, err error) {
	section, ok := p.sections.Get(sectionLoginActivity)
	if !ok {
		r.tel.ReportDebug(report_resolver_activity, "no login activity", userId)
		return time.Time{}, time.Time{}, nil
	}

	// a <dl> may hold one entry or all of them
	terms := section.Find("dt")
	for i := range terms.Length() {
		term := terms.Eq(i)
		label := htmlutil.Text(term)
		var target *time.Time
		switch label {
		case labelFirstAccess:
			target = &first
		case labelLastAccess:
			target = &last
		default:
			continue
		}

		value := htmlutil.Text(term.NextFiltered("dd"))
		if value == activityNever || value == "" {
			continue
		}
		parsed, err := ParseActivityTimestamp(value)
		if err != nil {
			r.tel.ReportBroken(report_resolver_activity, label, err)
			return time.Time{}, time.Time{}, fmt.Errorf("%s of user %d: %w", label, userId, err)
		}
		*target = parsed
	}
	return first, last, nil
}

func (r *Resolver) load(ctx context.Context, refresh bool) (Snapshot, error) {
	if !refresh {
		if snapshot, ok := r.cache.Get(); ok {
			return snapshot, nil
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// another caller may have filled the cache while this one waited
	if !refresh {
		if snapshot, ok := r.cache.Get(); ok {
			return snapshot, nil
		}
	}

	id, err := r.SelfId(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	snapshot := newSnapshot(user)
	r.cache.Set(snapshot)
	return snapshot.clone(), nil
}

// GetProfile returns the profile of the logged in user, from the cache unless
// `refresh` is set or nothing is cached yet.
func (r *Resolver) GetProfile(ctx context.Context, refresh bool) (User, error) {
	ctx, span := tracer.Start(ctx, "resolver:GetProfile")
	defer span.End()

	snapshot, err := r.load(ctx, refresh)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return User{}, err
	}
	return snapshot.Profile, nil
}

// GetCourses returns the courses of the logged in user. It shares its cache
// entry with GetProfile so the two never disagree.
func (r *Resolver) GetCourses(ctx context.Context, refresh bool) (map[int64]string, error) {
	ctx, span := tracer.Start(ctx, "resolver:GetCourses")
	defer span.End()

	snapshot, err := r.load(ctx, refresh)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return snapshot.Courses, nil
}

// Forget drops the cached self-profile.
func (r *Resolver) Forget() {
	r.cache.Clear()
}
