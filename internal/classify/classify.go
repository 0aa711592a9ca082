// Package classify decides what a post's title says about its schedule.
//
// Titles carry a year-less date such as "Dec 31 23:59". The year is taken
// from now and then corrected by at most one year in either direction so the
// result lands within six months of now.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/reddit"
)

// DateLayout is how the captured group is read, always in UTC.
const DateLayout = "Jan 2 15:04"

// wrapWindow is how far from now a year-less date may fall before it is
// moved into the neighbouring year.
const wrapWindow = 6 // months

var ErrNoMatch = errors.New("title does not match the required format")

// DateError reports a capture that matched the pattern but is not a date.
type DateError struct {
	Text string
	Err  error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("unparseable date %q: %v", e.Text, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

// Classifier is safe for concurrent use.
type Classifier struct {
	pattern *regexp.Regexp
	grace   config.Span
	log     *zap.Logger
}

// Compile builds the case-insensitive title pattern. It must have exactly one
// capture group.
func Compile(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compile title regex: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("title regex must have exactly one capture group, has %d", re.NumSubexp())
	}
	return re, nil
}

func New(expr string, grace config.Span, log *zap.Logger) (*Classifier, error) {
	re, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{pattern: re, grace: grace, log: log.Named("classify")}, nil
}

// Classify picks the outcome for post at now. It reads nothing but its
// arguments and the classifier's configuration.
func (c *Classifier) Classify(post reddit.Post, now time.Time) Outcome {
	if !c.grace.IsZero() && c.grace.Before(now).Before(post.CreatedAt) {
		return WithinGracePeriod{Age: now.Sub(post.CreatedAt)}
	}

	at, err := c.ScheduledAt(post.Title, now)
	if err != nil {
		var dateErr *DateError
		if errors.As(err, &dateErr) {
			c.log.Warn("title matched but date did not parse",
				zap.String("post", post.Name),
				zap.String("title", post.Title),
				zap.Error(err),
			)
		}
		return InvalidFormat{Reason: err}
	}

	if at.After(now) {
		return ValidSchedule{At: at}
	}
	return PastSchedule{At: at}
}

// ScheduledAt extracts the title's date and resolves its year against now.
func (c *Classifier) ScheduledAt(title string, now time.Time) (time.Time, error) {
	m := c.pattern.FindStringSubmatch(title)
	if m == nil {
		return time.Time{}, ErrNoMatch
	}
	return Resolve(m[1], now)
}

// Resolve reads text as DateLayout in now's UTC year, then moves it one year
// back when it is more than six months ahead of now, or one year forward when
// it is more than six months behind. A day that does not exist in the
// resolved year is an error.
func Resolve(text string, now time.Time) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	now = now.UTC()

	year := now.Year()
	candidate, err := parseInYear(text, year)
	if err != nil {
		// Feb 29 can still be valid in a neighbouring leap year.
		return resolveLeapDay(text, now, err)
	}

	switch {
	case candidate.After(now.AddDate(0, wrapWindow, 0)):
		year--
	case candidate.Before(now.AddDate(0, -wrapWindow, 0)):
		year++
	default:
		return candidate, nil
	}

	wrapped, err := parseInYear(text, year)
	if err != nil {
		return time.Time{}, &DateError{Text: text, Err: err}
	}
	return wrapped, nil
}

func resolveLeapDay(text string, now time.Time, cause error) (time.Time, error) {
	for _, year := range []int{now.Year() - 1, now.Year() + 1} {
		t, err := parseInYear(text, year)
		if err != nil {
			continue
		}
		if !t.After(now.AddDate(0, wrapWindow, 0)) && !t.Before(now.AddDate(0, -wrapWindow, 0)) {
			return t, nil
		}
	}
	return time.Time{}, &DateError{Text: text, Err: cause}
}

func parseInYear(text string, year int) (time.Time, error) {
	return time.ParseInLocation("2006 "+DateLayout, strconv.Itoa(year)+" "+text, time.UTC)
}
