// Package ipfs pins token images and metadata to Pinata and resolves IPFS URIs through a gateway.
package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultAPIURL  = "https://api.pinata.cloud"
	DefaultGateway = "https://gateway.pinata.cloud"

	// MaxResponseSize caps any response body, metadata documents are a few KB.
	MaxResponseSize = 2 << 20
	// MaxRedirects is how many hops FetchJSON follows, arweave.net answers with a 302.
	MaxRedirects = 5
)

var (
	ErrMissingJWT = errors.New("pinata JWT is not configured")
	ErrStatus     = errors.New("unexpected HTTP status")
)

// PinResult is the Pinata response of a successful pin.
type PinResult struct {
	CID       string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// URI is the ipfs:// form of the pinned content.
func (r PinResult) URI() string {
	return "ipfs://" + r.CID
}

type Config struct {
	APIURL  string
	Gateway string
	JWT     string
	Timeout time.Duration
}

type Client struct {
	client  *fasthttp.Client
	apiURL  string
	gateway string
	jwt     string
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Gateway == "" {
		cfg.Gateway = DefaultGateway
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		client:  &fasthttp.Client{MaxResponseBodySize: MaxResponseSize},
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		gateway: strings.TrimRight(cfg.Gateway, "/"),
		jwt:     cfg.JWT,
		timeout: cfg.Timeout,
		logger:  logger.Named("IPFS"),
	}
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.DoTimeout(req, resp, c.timeout)
}

// get follows redirects, each hop bounded by what is left of the ctx deadline.
func (c *Client) get(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return fasthttp.ErrTimeout
		}
	}
	req.SetTimeout(timeout)
	return c.client.DoRedirects(req, resp, MaxRedirects)
}

func (c *Client) pin(ctx context.Context, path, contentType string, body []byte) (*PinResult, error) {
	if c.jwt == "" {
		return nil, ErrMissingJWT
	}
	requestURL := c.apiURL + path

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.SetBody(body)

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := c.do(ctx, req, resp); err != nil {
		c.logger.Error("Failed to execute request to Pinata", zap.String("url", requestURL), zap.Error(err))
		return nil, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}
	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Error("Pinata request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody),
		)
		return nil, fmt.Errorf("%w %d from %s: %s", ErrStatus, resp.StatusCode(), requestURL, string(rawBody))
	}

	var out PinResult
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Pinata response: %w", err)
	}
	if out.CID == "" {
		return nil, fmt.Errorf("pinata response without IpfsHash: %s", string(rawBody))
	}
	c.logger.Debug("Pinned content", zap.String("cid", out.CID), zap.Int64("size", out.PinSize))
	return &out, nil
}

type pinJSONRequest struct {
	Content  interface{}       `json:"pinataContent"`
	Metadata map[string]string `json:"pinataMetadata,omitempty"`
}

// PinJSON pins v as a JSON document named name.
func (c *Client) PinJSON(ctx context.Context, name string, v interface{}) (*PinResult, error) {
	body, err := json.Marshal(pinJSONRequest{
		Content:  v,
		Metadata: map[string]string{"name": name},
	})
	if err != nil {
		return nil, err
	}
	return c.pin(ctx, "/pinning/pinJSONToIPFS", "application/json", body)
}

// PinFile pins raw file content, e.g. a token image.
func (c *Client) PinFile(ctx context.Context, name string, content []byte) (*PinResult, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err = part.Write(content); err != nil {
		return nil, err
	}
	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	if err = w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return c.pin(ctx, "/pinning/pinFileToIPFS", w.FormDataContentType(), buf.Bytes())
}

// GatewayURL rewrites IPFS references to the configured gateway.
func (c *Client) GatewayURL(uri string) string {
	return GatewayURL(c.gateway, uri)
}

// GatewayURL rewrites ipfs://CID/path, ipfs/CID and foreign gateway /ipfs/ URLs
// to gateway. Other URIs are returned unchanged.
func GatewayURL(gateway, uri string) string {
	uri = strings.TrimSpace(uri)
	gateway = strings.TrimRight(gateway, "/")
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		rest := strings.TrimPrefix(uri, "ipfs://")
		rest = strings.TrimPrefix(rest, "ipfs/")
		return gateway + "/ipfs/" + rest
	case strings.HasPrefix(uri, "ipfs/"):
		return gateway + "/" + uri
	case strings.HasPrefix(uri, "/ipfs/"):
		return gateway + uri
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		if idx := strings.Index(uri, "/ipfs/"); idx >= 0 {
			return gateway + uri[idx:]
		}
	}
	return uri
}

// FetchJSON downloads uri (translated through the gateway) and decodes it into v.
func (c *Client) FetchJSON(ctx context.Context, uri string, v interface{}, timeout time.Duration) error {
	requestURL := c.GatewayURL(uri)
	if !strings.HasPrefix(requestURL, "http://") && !strings.HasPrefix(requestURL, "https://") {
		return fmt.Errorf("unsupported metadata uri %q", uri)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := c.get(ctx, req, resp); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", requestURL, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode(), requestURL)
	}
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", requestURL, err)
	}
	return nil
}
