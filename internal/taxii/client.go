package taxii

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// MediaType is the TAXII 2.1 content type sent on every request.
const MediaType = "application/taxii+json;version=2.1"

// Default per-request timeouts. Listing calls are cheap; object pages can
// carry large bundles.
const (
	DefaultListTimeout    = 10 * time.Second
	DefaultObjectsTimeout = 30 * time.Second
)

// ErrNotFound signals that a collection title or object id could not be
// resolved on the server. Malformed listings collapse into it as well; the
// log line carries the distinction.
var ErrNotFound = errors.New("taxii: not found")

// StatusError reports a non-success HTTP status from the TAXII server.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("taxii: unexpected status %d from %s", e.Status, e.URL)
}

// Unauthorized reports whether the server rejected our credentials.
func (e *StatusError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Collection is one entry of an API root's collection listing.
type Collection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// APIRoot describes one API root advertised by a server's discovery resource.
type APIRoot struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Envelope is the pagination wrapper returned by object endpoints.
type Envelope struct {
	More    bool              `json:"more"`
	Next    string            `json:"next,omitempty"`
	Objects []json.RawMessage `json:"objects"`
}

// Config holds the per-feed connection settings for a Client.
type Config struct {
	// APIRootURL is the collection-set endpoint base, e.g.
	// https://taxii.example.com/api1. A trailing slash is stripped.
	APIRootURL      string
	CollectionTitle string
	Username        string
	Password        string

	// Optional overrides, used by tests and the serve command.
	ListTimeout    time.Duration
	ObjectsTimeout time.Duration
	Logger         *log.Logger
}

// Client talks to a single TAXII 2.x API root. It carries no mutable state
// beyond its HTTP clients; construct one per feed and discard it after the
// fetch.
type Client struct {
	baseURL         string
	collectionTitle string
	username        string
	password        string

	listClient    *http.Client
	objectsClient *http.Client
	logger        *log.Logger
}

// NewClient builds a client from one feed's settings.
func NewClient(cfg Config) *Client {
	if cfg.ListTimeout == 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.ObjectsTimeout == 0 {
		cfg.ObjectsTimeout = DefaultObjectsTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		baseURL:         strings.TrimRight(cfg.APIRootURL, "/"),
		collectionTitle: cfg.CollectionTitle,
		username:        cfg.Username,
		password:        cfg.Password,
		listClient:      &http.Client{Timeout: cfg.ListTimeout},
		objectsClient:   &http.Client{Timeout: cfg.ObjectsTimeout},
		logger:          logger,
	}
}

// get issues a single GET with the TAXII accept header and optional basic
// auth, decoding a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, hc *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", MediaType)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Status: resp.StatusCode, URL: url}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// Collections fetches the API root's collection listing.
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	url := c.baseURL + "/collections/"

	var raw json.RawMessage
	if err := c.get(ctx, c.listClient, url, &raw); err != nil {
		return nil, err
	}

	// Servers answer with either a bare descriptor array or the TAXII 2.1
	// wrapper {"collections": [...]}.
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var list []Collection
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode collection list: %w", err)
		}
		return list, nil
	}
	var wrapped struct {
		Collections []Collection `json:"collections"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode collection listing: %w", err)
	}
	if wrapped.Collections == nil {
		return nil, fmt.Errorf("collection listing from %s has no collections sequence", url)
	}
	return wrapped.Collections, nil
}

// ResolveCollection returns the id of the first collection whose title
// exactly equals the configured title. Every failure mode (HTTP error,
// malformed body, no match) resolves to ErrNotFound; the log line says why.
func (c *Client) ResolveCollection(ctx context.Context) (string, error) {
	collections, err := c.Collections(ctx)
	if err != nil {
		c.logger.Printf("collection listing for %s failed: %v", c.baseURL, err)
		return "", fmt.Errorf("%w: collection %q: %w", ErrNotFound, c.collectionTitle, err)
	}
	for _, col := range collections {
		if col.Title == c.collectionTitle {
			return col.ID, nil
		}
	}
	c.logger.Printf("collection %q not present among %d collections at %s",
		c.collectionTitle, len(collections), c.baseURL)
	return "", fmt.Errorf("%w: collection %q", ErrNotFound, c.collectionTitle)
}

// Objects fetches one page of a collection's object feed.
func (c *Client) Objects(ctx context.Context, collectionID string, page int) (Envelope, error) {
	url := fmt.Sprintf("%s/collections/%s/objects/?page=%d", c.baseURL, collectionID, page)
	var env Envelope
	if err := c.get(ctx, c.objectsClient, url, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Object fetches a single object by id. The server answers with the same
// envelope shape, expected to hold at most one (possibly nested) item.
func (c *Client) Object(ctx context.Context, collectionID, objectID string) (Envelope, error) {
	url := fmt.Sprintf("%s/collections/%s/objects/%s/", c.baseURL, collectionID, objectID)
	var env Envelope
	if err := c.get(ctx, c.objectsClient, url, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
