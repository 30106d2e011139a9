package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"snulms/lib/timezone"

	"github.com/araddon/dateparse"
)

var ErrUnparsableTimestamp = errors.New("unparsable timestamp")

// the portal pads the relative duration with non-breaking spaces
var relativeAnnotation = regexp.MustCompile(`[\s\p{Zs}]*\(.*?\)`)

var activityLayouts = []string{
	"Monday, 2 January 2006, 3:04 PM",
	"2 January 2006, 3:04 PM",
	"Monday, 2 January 2006, 15:04",
	"2 January 2006, 15:04",
	"Monday, 2 January 2006",
	"2 January 2006",
}

// ParseActivityTimestamp parses the absolute half of a login activity value
// like "Tuesday, 20 August 2024, 9:36 AM  (71 days 13 hours)" in the portal's
// timezone. The relative annotation is discarded.
func ParseActivityTimestamp(raw string) (time.Time, error) {
	text := relativeAnnotation.ReplaceAllString(raw, "")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: '%s'", ErrUnparsableTimestamp, raw)
	}

	loc := timezone.Location()
	for _, layout := range activityLayouts {
		t, err := time.ParseInLocation(layout, text, loc)
		if err == nil {
			return t, nil
		}
	}

	t, err := dateparse.ParseIn(text, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: '%s': %s", ErrUnparsableTimestamp, raw, err.Error())
	}
	return t, nil
}
