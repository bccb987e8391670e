package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultUserAgent = "typesgate"
	// abbreviated packuments carry versions and dist-tags only
	acceptPackument = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"
	maxBodySize     = 64 << 20
)

type packument struct {
	Name     string               `json:"name"`
	DistTags map[string]string    `json:"dist-tags"`
	Versions map[string]*Manifest `json:"versions"`
}

// HTTPClient implements Client against an npm-compatible registry. Packuments
// are memoized for the lifetime of the client and concurrent fetches of the
// same package share one request.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cache      *lru.Cache[string, *packument]
	inflight   singleflight.Group
	logger     *slog.Logger
}

// NewHTTPClient creates a registry client for baseURL
func NewHTTPClient(baseURL string, timeout time.Duration, cacheSize int, logger *slog.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *packument](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry cache: %w", err)
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
		cache:      cache,
		logger:     logger,
	}, nil
}

// Manifest returns the manifest of name at versionOrTag
func (c *HTTPClient) Manifest(ctx context.Context, name, versionOrTag string) (*Manifest, error) {
	p, err := c.packument(ctx, name)
	if err != nil {
		return nil, err
	}

	version := versionOrTag
	if _, ok := p.Versions[version]; !ok {
		if tagged, isTag := p.DistTags[versionOrTag]; isTag {
			version = tagged
		}
	}

	m, ok := p.Versions[version]
	if !ok || m == nil {
		return nil, &LookupError{Kind: KindNotTarget, Name: name, Version: versionOrTag}
	}
	out := *m
	if out.Name == "" {
		out.Name = name
	}
	if out.Version == "" {
		out.Version = version
	}
	return &out, nil
}

func (c *HTTPClient) packument(ctx context.Context, name string) (*packument, error) {
	if p, ok := c.cache.Get(name); ok {
		return p, nil
	}

	v, err, _ := c.inflight.Do(name, func() (any, error) {
		p, err := c.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		c.cache.Add(name, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*packument), nil
}

// fetch performs a single GET of the packument for name
func (c *HTTPClient) fetch(ctx context.Context, name string) (*packument, error) {
	u := c.baseURL + "/" + url.PathEscape(name)
	c.logger.Debug("fetching packument", "package", name, "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &LookupError{Kind: KindOther, Name: name, Err: fmt.Errorf("building request for %s: %w", u, err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptPackument)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Kind: KindOther, Name: name, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, &LookupError{Kind: KindNotFound, Name: name}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LookupError{Kind: KindOther, Name: name, Err: fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &LookupError{Kind: KindOther, Name: name, Err: fmt.Errorf("reading response body from %s: %w", u, err)}
	}

	var p packument
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &LookupError{Kind: KindOther, Name: name, Err: fmt.Errorf("decoding packument from %s: %w", u, err)}
	}
	return &p, nil
}
