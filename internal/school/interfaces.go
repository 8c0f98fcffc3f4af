package school

import (
	"context"
	"net/http"
	"time"
)

// PageSource returns the raw school names listed on one page of the directory.
type PageSource interface {
	FetchPage(ctx context.Context, page int) ([]string, error)
}

// Searcher returns candidate URLs for a query, best first.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Sender delivers one outreach message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Fetcher retrieves a single web page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Publisher pushes outreach events to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Page is the result of a Fetcher call.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
