package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

// FeedOptions configures the analysis feed.
type FeedOptions struct {
	// Format is "rss" (default) or "atom".
	Format string
	// Link is the public base URL of the dashboard.
	Link  string
	Limit int
	Now   time.Time
}

const defaultFeedLimit = 50

// Feed renders the most recent records as an RSS or Atom feed.
// Records are expected newest first.
func Feed(records []*store.HistoryRecord, opts FeedOptions) (string, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultFeedLimit
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	link := strings.TrimRight(opts.Link, "/")

	feed := &feeds.Feed{
		Title:       "MutationMechanic analyses",
		Link:        &feeds.Link{Href: link},
		Description: "Recent variant analyses",
		Created:     opts.Now,
	}
	for i, r := range records {
		if i >= opts.Limit {
			break
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          r.ID,
			Title:       fmt.Sprintf("%s %s", r.Gene, r.Variant),
			Link:        &feeds.Link{Href: fmt.Sprintf("%s/history/%s", link, r.ID)},
			Description: fmt.Sprintf("%s risk, %s (score %.1f, confidence %.0f%%)", r.RiskLevel, r.PathogenicityLabel, r.PathogenicityScore, r.Confidence),
			Created:     r.Time(),
		})
	}

	var (
		out string
		err error
	)
	switch opts.Format {
	case "", "rss":
		out, err = feed.ToRss()
	case "atom":
		out, err = feed.ToAtom()
	default:
		return "", errors.Errorf("unsupported feed format %q", opts.Format)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to render feed")
	}
	return out, nil
}
