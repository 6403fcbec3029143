package webpush

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	DefaultTTL     = 24 * time.Hour
	defaultTimeout = 10 * time.Second
	maxBodyRead    = 4 << 10
)

// Subscription is the browser-issued address of one push endpoint.
// P256dh and Auth are optional; without them the push carries no body.
type Subscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// Validate checks the endpoint and, when present, the key sizes payload
// encryption needs: a 65-byte P-256 point and a 16-byte auth secret.
func (s Subscription) Validate() error {
	if _, err := Audience(s.Endpoint); err != nil {
		return err
	}
	if s.P256dh == "" && s.Auth == "" {
		return nil
	}
	if _, err := decodeFixed(s.P256dh, uncompressedPointLen); err != nil {
		return fmt.Errorf("webpush: p256dh: %w", err)
	}
	if _, err := decodeFixed(s.Auth, authLen); err != nil {
		return fmt.Errorf("webpush: auth: %w", err)
	}
	return nil
}

// Response is what the push service answered.
type Response struct {
	StatusCode int
	Body       string
}

// Success reports a 2xx answer.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Gone reports that the push service no longer knows the subscription.
func (r *Response) Gone() bool {
	return r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone
}

type Options struct {
	// Subject is the sub claim, a mailto: or https: contact for the sender.
	Subject string
	TTL     time.Duration
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client sends Web Push messages signed with one VAPID key pair.
type Client struct {
	keys       *VAPIDKeys
	subject    string
	ttl        time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *cache.Cache
	random     io.Reader
	now        func() time.Time
}

func NewClient(keys *VAPIDKeys, opts Options) (*Client, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: keys are required", ErrInvalidVAPIDKeys)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		keys:       keys,
		subject:    opts.Subject,
		ttl:        opts.TTL,
		httpClient: httpClient,
		limiter:    limiter,
		// tokens are reused until shortly before they expire
		tokens: cache.New(DefaultJWTExpiry-time.Hour, 10*time.Minute),
		random: rand.Reader,
		now:    time.Now,
	}, nil
}

// PublicKey returns the application server key browsers subscribe with.
func (c *Client) PublicKey() string {
	return c.keys.PublicKey()
}

// Send delivers payload to one subscription. A non-2xx answer is returned
// as a Response, not an error; errors mean the request never completed.
func (c *Client) Send(ctx context.Context, sub Subscription, payload []byte) (*Response, error) {
	audience, err := Audience(sub.Endpoint)
	if err != nil {
		return nil, err
	}

	token, err := c.token(audience)
	if err != nil {
		return nil, err
	}

	var body []byte
	encrypted := sub.P256dh != "" && sub.Auth != ""
	if encrypted {
		body, err = encrypt(c.random, payload, sub.P256dh, sub.Auth)
		if err != nil {
			return nil, err
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webpush: building request: %w", err)
	}
	req.Header.Set("Authorization", c.keys.AuthorizationHeader(token))
	req.Header.Set("TTL", strconv.Itoa(int(c.ttl.Seconds())))
	if encrypted {
		req.Header.Set("Content-Encoding", "aes128gcm")
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webpush: sending: %w", err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	return &Response{StatusCode: resp.StatusCode, Body: string(text)}, nil
}

func (c *Client) token(audience string) (string, error) {
	if cached, ok := c.tokens.Get(audience); ok {
		return cached.(string), nil
	}
	token, err := c.keys.SignJWT(audience, c.subject, c.now().Add(DefaultJWTExpiry))
	if err != nil {
		return "", err
	}
	c.tokens.SetDefault(audience, token)
	return token, nil
}
