package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// Kind is the engagement event carried by a beacon.
type Kind string

const (
	Impression Kind = "impression"
	View       Kind = "view"
	Click      Kind = "click"
)

var ErrUnknownKind = errors.New("unknown beacon kind")

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Impression, View, Click:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Path returns the collector route for the kind.
func (k Kind) Path() string {
	return "/api/ads/" + string(k)
}

type Payload struct {
	AdID string `json:"adId"`
}

// Client posts engagement beacons to a collector. It keeps no per-ad state:
// once-only guarantees belong to the caller.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	logger   *logrus.Logger
	timeout  time.Duration
	inflight sync.WaitGroup
}

type Option func(*Client) error

// WithHTTPClient replaces the default client. Its cookie jar, if any, is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithCookies seeds the jar so beacons carry the viewer's credentials.
func WithCookies(cookies ...*http.Cookie) Option {
	return func(c *Client) error {
		if c.http.Jar == nil {
			return errors.New("http client has no cookie jar")
		}
		c.http.Jar.SetCookies(c.baseURL, cookies)
		return nil
	}
}

func NewClient(baseURL string, logger *logrus.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid collector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid collector url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar},
		logger:  logger,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Post delivers one beacon and reports whether the collector accepted it.
func (c *Client) Post(ctx context.Context, kind Kind, adID string) error {
	body, err := json.Marshal(Payload{AdID: adID})
	if err != nil {
		return fmt.Errorf("failed to marshal beacon: %w", err)
	}

	endpoint := c.baseURL.JoinPath(kind.Path())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build beacon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s beacon: %w", kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s beacon rejected with status %d", kind, resp.StatusCode)
	}
	return nil
}

// Send posts the beacon in the background. The outcome is logged and discarded.
func (c *Client) Send(kind Kind, adID string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.Post(ctx, kind, adID); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"ad_id": adID,
				"kind":  kind,
			}).Warn("Beacon send failed")
			return
		}
		c.logger.WithFields(logrus.Fields{
			"ad_id": adID,
			"kind":  kind,
		}).Debug("Beacon sent")
	}()
}

// Wait blocks until every beacon started with Send has finished.
func (c *Client) Wait() {
	c.inflight.Wait()
}
