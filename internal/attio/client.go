package attio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const DefaultBaseURL = "https://api.attio.com"

var (
	// ErrAlreadyExists is returned when Attio rejects a record as a duplicate (HTTP 409).
	ErrAlreadyExists = errors.New("record already exists")
	// ErrUnauthorized is returned for a missing, revoked or under-scoped API key.
	ErrUnauthorized = errors.New("attio rejected the api key")
)

// APIError is any other non-2xx response.
type APIError struct {
	Status  int    `json:"status_code"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("attio returned %d", e.Status)
	}
	return fmt.Sprintf("attio returned %d (%s): %s", e.Status, e.Code, e.Message)
}

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	http *resty.Client
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetAuthToken(opts.APIKey)
	client.SetHeader("accept", "application/json")
	client.SetHeader("content-type", "application/json")
	return &Client{http: client}
}

// RecordID identifies a created record.
type RecordID struct {
	WorkspaceID string `json:"workspace_id"`
	ObjectID    string `json:"object_id"`
	RecordID    string `json:"record_id"`
}

type Record struct {
	ID        RecordID `json:"id"`
	CreatedAt string   `json:"created_at"`
}

type recordEnvelope struct {
	Data Record `json:"data"`
}

// Workspace is what GET /v2/self reports about the token.
type Workspace struct {
	Active        bool   `json:"active"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	WorkspaceSlug string `json:"workspace_slug"`
	Scope         string `json:"scope"`
}

// Self checks the API key and returns the workspace it belongs to.
func (c *Client) Self(ctx context.Context) (Workspace, error) {
	var ws Workspace
	res, err := c.http.R().SetContext(ctx).Get("/v2/self")
	if err := check(res, err); err != nil {
		return ws, err
	}
	if err := json.Unmarshal(res.Body(), &ws); err != nil {
		return ws, errors.Wrap(err, "failed to decode /v2/self")
	}
	if !ws.Active {
		return ws, ErrUnauthorized
	}
	return ws, nil
}

func (c *Client) create(ctx context.Context, object string, values map[string]any) (*Record, error) {
	body := map[string]any{"data": map[string]any{"values": values}}

	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("object", object).
		SetBody(body).
		Post("/v2/objects/{object}/records")
	if err := check(res, err); err != nil {
		return nil, err
	}

	var env recordEnvelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		return nil, errors.Wrapf(err, "failed to decode created %s record", object)
	}
	return &env.Data, nil
}

// check maps a response to the package's error values.
func check(res *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "attio request failed")
	}
	if !res.IsError() {
		return nil
	}

	apiErr := &APIError{}
	_ = json.Unmarshal(res.Body(), apiErr)
	apiErr.Status = res.StatusCode()

	switch res.StatusCode() {
	case http.StatusConflict:
		return errors.Wrap(ErrAlreadyExists, apiErr.Error())
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrap(ErrUnauthorized, apiErr.Error())
	}
	return apiErr
}
