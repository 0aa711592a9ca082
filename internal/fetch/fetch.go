// Package fetch retrieves bounded, deduplicated result sets from the paged
// subreddit search listing.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/reddit"
)

// PageSize is the largest page the search endpoint returns. A page of exactly
// this many raw items is the only signal that more results may exist.
const PageSize = 100

// Searcher is the single listing call the fetcher needs from the remote API.
type Searcher interface {
	Search(ctx context.Context, params reddit.SearchParams) (reddit.Listing, error)
}

// Error reports a failed page request. Results from earlier pages are discarded.
type Error struct {
	Subreddit string
	Query     string
	Page      int // zero-based index of the failing page
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch r/%s page %d (q=%q): %v", e.Subreddit, e.Page, e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Flairs holds the flair search terms used to build the derived queries.
type Flairs struct {
	Upcoming string   // search term of the upcoming flair
	Excluded []string // terms removed from the unflaired query
}

// Fetcher pulls posts for one subreddit.
type Fetcher struct {
	searcher  Searcher
	subreddit string
	flairs    Flairs
	log       *zap.Logger
}

// New creates a fetcher for subreddit. A nil logger disables logging.
func New(searcher Searcher, subreddit string, flairs Flairs, log *zap.Logger) (*Fetcher, error) {
	if searcher == nil {
		return nil, errors.New("fetch: searcher is required")
	}
	if strings.TrimSpace(subreddit) == "" {
		return nil, errors.New("fetch: subreddit is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		searcher:  searcher,
		subreddit: subreddit,
		flairs:    flairs,
		log:       log.Named("fetch"),
	}, nil
}

// Fetch returns up to count posts matching query, newest first, each post at most once.
//
// Pages are requested with min(count, PageSize) as the size hint. A page larger
// than what is still needed is truncated before merging, so the result never
// exceeds count. Another page is requested only when the previous one came back
// full (PageSize raw items), more posts are still needed, and the listing has a
// next cursor. The result may be shorter than count when duplicates are dropped
// or the listing runs out.
func (f *Fetcher) Fetch(ctx context.Context, subreddit, query string, count int) ([]reddit.Post, error) {
	if count <= 0 {
		return nil, nil
	}

	params := reddit.SearchParams{
		Subreddit: subreddit,
		Query:     query,
		Limit:     min(count, PageSize),
	}

	all := make([]reddit.Post, 0, count)
	seen := make(map[string]struct{}, count)
	remaining := count

	for page := 0; ; page++ {
		listing, err := f.searcher.Search(ctx, params)
		if err != nil {
			return nil, &Error{Subreddit: subreddit, Query: query, Page: page, Err: err}
		}

		raw := len(listing.Posts)
		batch := listing.Posts
		if len(batch) > remaining {
			batch = batch[:remaining]
		}

		dropped := 0
		for _, p := range batch {
			if _, dup := seen[p.Name]; dup {
				dropped++
				continue
			}
			seen[p.Name] = struct{}{}
			all = append(all, p)
		}
		remaining = count - len(all)

		f.log.Debug("fetched page",
			zap.String("subreddit", subreddit),
			zap.Int("page", page),
			zap.Int("raw", raw),
			zap.Int("duplicates", dropped),
			zap.Int("remaining", remaining),
		)

		if raw < PageSize || remaining <= 0 || listing.After == "" {
			break
		}
		params.After = listing.After
		params.Count += raw
	}

	return all, nil
}

// FetchUnflaired returns up to count posts carrying none of the excluded flairs.
func (f *Fetcher) FetchUnflaired(ctx context.Context, count int) ([]reddit.Post, error) {
	return f.Fetch(ctx, f.subreddit, UnflairedQuery(f.flairs.Excluded), count)
}

// FetchUpcoming returns up to count posts carrying the upcoming flair.
func (f *Fetcher) FetchUpcoming(ctx context.Context, count int) ([]reddit.Post, error) {
	return f.Fetch(ctx, f.subreddit, "flair:"+f.flairs.Upcoming, count)
}

// UnflairedQuery negates every flair term: "-flair:a -flair:b ".
func UnflairedQuery(excluded []string) string {
	var sb strings.Builder
	for _, term := range excluded {
		sb.WriteString("-flair:")
		sb.WriteString(term)
		sb.WriteByte(' ')
	}
	return sb.String()
}
