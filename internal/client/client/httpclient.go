package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/objidx/internal/client/models"
	"github.com/dmitrijs2005/objidx/internal/common"
	"github.com/dmitrijs2005/objidx/internal/netx"
)

type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient builds a client for the server at baseURL. token may be
// empty.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 30 * time.Second,
			// Redirects are reported, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

// WithHTTPClient swaps the underlying transport client.
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	c.http = hc
	return c
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &models.APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrConflict
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		sentinel = ErrUnavailable
	default:
		return apiErr
	}
	return fmt.Errorf("%w: %w", sentinel, apiErr)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *HTTPClient) Upload(ctx context.Context, req *models.UploadRequest) (*models.UploadResult, error) {
	out := &models.UploadResult{}
	if err := c.do(ctx, http.MethodPost, "/upload/", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Complete(ctx context.Context, objectID string) (*models.Object, error) {
	out := &models.Object{}
	body := map[string]bool{"completed": true}
	if err := c.do(ctx, http.MethodPut, "/object/"+url.PathEscape(objectID)+"/", body, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetObject(ctx context.Context, id string) (*models.Object, error) {
	out := &models.Object{}
	if err := c.do(ctx, http.MethodGet, "/object/"+url.PathEscape(id)+"/", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetFile(ctx context.Context, id string) (*models.File, error) {
	out := &models.File{}
	if err := c.do(ctx, http.MethodGet, "/file/"+url.PathEscape(id)+"/", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) FindObjects(ctx context.Context, checksum string) ([]*models.Object, error) {
	var out []*models.Object
	q := url.Values{"checksum": {checksum}}
	if err := c.do(ctx, http.MethodGet, "/object/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchFiles queries by url (a trailing "*" makes it a prefix match) or by
// an extra tag. The server rejects both at once.
func (c *HTTPClient) SearchFiles(ctx context.Context, u, tagKey, tagValue string) ([]*models.File, error) {
	q := url.Values{}
	if u != "" {
		q.Set("url", u)
	}
	if tagKey != "" {
		q.Set("extra", tagKey+"="+tagValue)
	}

	var out []*models.File
	if err := c.do(ctx, http.MethodGet, "/file/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Download(ctx context.Context, objectID string, presigned bool) (*models.Locator, error) {
	path := "/object/" + url.PathEscape(objectID) + "/download"
	if presigned {
		path += "?presigned=1"
	}
	out := &models.Locator{}
	if err := c.do(ctx, http.MethodGet, path, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutPresigned uploads body to a presigned PUT URL. No bearer token is sent.
func (c *HTTPClient) PutPresigned(ctx context.Context, u string, body io.Reader, size int64, contentType string) error {
	if err := netx.PutPresigned(ctx, c.transferClient(), u, body, size, contentType); err != nil {
		return transferError("presigned upload", err)
	}
	return nil
}

// GetPresigned opens a presigned GET URL. The caller closes the body.
func (c *HTTPClient) GetPresigned(ctx context.Context, u string) (io.ReadCloser, error) {
	rc, err := netx.GetPresigned(ctx, c.transferClient(), u)
	if err != nil {
		return nil, transferError("presigned download", err)
	}
	return rc, nil
}

func transferError(op string, err error) error {
	var se *netx.StatusError
	switch {
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.As(err, &se):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
}

// transferClient is the API client without its overall timeout, since blob
// transfers can run long.
func (c *HTTPClient) transferClient() *http.Client {
	hc := *c.http
	hc.Timeout = 0
	hc.CheckRedirect = nil
	return &hc
}
