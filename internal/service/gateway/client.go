package gateway

import (
	"context"
	"errors"
	"fmt"

	drepo "github.com/paeltech/savannaFx-sub000/internal/domain/repository"
	phttp "github.com/paeltech/savannaFx-sub000/pkg/http"
)

// Client talks JSON to the external messaging gateway.
//
//	POST {base}/messages  {"target","message"}        -> 2xx
//	POST {base}/channels  {"name"} -> {"channel_id"}
type Client struct {
	http *phttp.Client
}

var _ drepo.MessagingGateway = (*Client)(nil)

// New authenticates with token when it is set; opts tune the HTTP client.
func New(baseURL, token string, opts ...phttp.ClientOption) *Client {
	opts = append([]phttp.ClientOption{
		phttp.WithBaseURL(baseURL),
		phttp.WithBearerToken(token),
	}, opts...)
	return &Client{http: phttp.NewClient(opts...)}
}

type sendRequest struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

type sendResponse struct {
	Delivered *bool  `json:"delivered"`
	Error     string `json:"error"`
}

// Send delivers one message. A 2xx answer with delivered=false is a failure.
func (c *Client) Send(ctx context.Context, target, message string) error {
	var resp sendResponse
	if err := c.http.PostJSON(ctx, "/messages", sendRequest{Target: target, Message: message}, &resp); err != nil {
		return describe("send message", err)
	}
	if resp.Delivered != nil && !*resp.Delivered {
		if resp.Error == "" {
			resp.Error = "rejected by gateway"
		}
		return fmt.Errorf("send message to %s: %s", target, resp.Error)
	}
	return nil
}

type provisionRequest struct {
	Name string `json:"name"`
}

type provisionResponse struct {
	ChannelID string `json:"channel_id"`
}

// ProvisionChannel creates the external channel backing a delivery group.
func (c *Client) ProvisionChannel(ctx context.Context, name string) (string, error) {
	var resp provisionResponse
	if err := c.http.PostJSON(ctx, "/channels", provisionRequest{Name: name}, &resp); err != nil {
		return "", describe("provision channel", err)
	}
	if resp.ChannelID == "" {
		return "", fmt.Errorf("provision channel %q: empty channel_id", name)
	}
	return resp.ChannelID, nil
}

func describe(op string, err error) error {
	var se *phttp.StatusError
	if errors.As(err, &se) {
		return fmt.Errorf("%s: gateway returned %d: %w", op, se.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
