package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrParamNotFound = errors.New("url parameter not found")
	ErrInvalidUrl    = errors.New("invalid url")
	ErrNotInteger    = errors.New("url parameter is not an integer")
)

// links scraped out of raw markup sometimes keep their entity-encoded separators
var entityReplacer = strings.NewReplacer("&amp;", "&", "&#38;", "&", "&#038;", "&")

// moodle double encodes some redirect targets, 3 rounds is more than
// anything observed in the wild
const maxUnescapeRounds = 3

func unescapeFully(s string) string {
	for range maxUnescapeRounds {
		if !strings.Contains(s, "%") {
			return s
		}
		next, err := url.QueryUnescape(s)
		if err != nil || next == s {
			return s
		}
		s = next
	}
	return s
}

// ExtractParam returns the first value bound to `name` in the query string of `link`.
// Repeated parameters resolve to the occurrence that appears first in the url.
func ExtractParam(name, link string) (string, error) {
	link = entityReplacer.Replace(strings.TrimSpace(link))
	if link == "" {
		return "", fmt.Errorf("extract '%s' from empty url: %w", name, ErrParamNotFound)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("extract '%s': %w: %w", name, ErrInvalidUrl, err)
	}

	for _, pair := range strings.Split(parsed.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if unescapeFully(key) != name {
			continue
		}
		return unescapeFully(value), nil
	}

	return "", fmt.Errorf("extract '%s' from '%s': %w", name, link, ErrParamNotFound)
}

// ExtractIntParam is ExtractParam for numeric ids like `id` or `course`.
func ExtractIntParam(name, link string) (int64, error) {
	value, err := ExtractParam(name, link)
	if err != nil {
		return -1, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("extract '%s' (%q): %w", name, value, ErrNotInteger)
	}
	return id, nil
}
