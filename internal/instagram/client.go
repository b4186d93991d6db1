// Package instagram is a thin client for the Graph API content publishing
// endpoints: container creation, container status, and publish. It keeps no
// state; every call is one HTTP round trip with a bounded timeout, and retry
// policy belongs to the caller.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/instapress/internal/apperr"
	"github.com/maheshrc27/instapress/internal/models"
)

const defaultTimeout = 15 * time.Second

// TokenSource yields a valid access token and the connected account id,
// or an apperr.AuthError.
type TokenSource interface {
	AccessToken(ctx context.Context) (token string, accountID string, err error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
	}
}

type apiResponse struct {
	ID    string    `json:"id"`
	Error *graphErr `json:"error,omitempty"`
}

type graphErr struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FbtraceID    string `json:"fbtrace_id"`
}

type containerStatusResponse struct {
	ID         string    `json:"id"`
	StatusCode string    `json:"status_code"` // IN_PROGRESS, FINISHED, ERROR, EXPIRED
	Error      *graphErr `json:"error,omitempty"`
}

type permalinkResponse struct {
	Permalink string `json:"permalink"`
}

// CreateItemContainer creates one image container. caption is only sent for
// top-level containers (single-image posts); carousel children carry none.
func (c *Client) CreateItemContainer(ctx context.Context, imageURL string, carouselItem bool, caption string) (string, error) {
	token, accountID, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"image_url":    imageURL,
		"access_token": token,
	}
	if carouselItem {
		payload["is_carousel_item"] = true
	} else if caption != "" {
		payload["caption"] = caption
	}

	resp, err := c.postJSON(ctx, fmt.Sprintf("%s/%s/media", c.baseURL, accountID), payload)
	if err != nil {
		return "", fmt.Errorf("create item container: %w", err)
	}
	return resp.ID, nil
}

// CreateCarouselContainer creates the parent container referencing the item
// container ids, in order.
func (c *Client) CreateCarouselContainer(ctx context.Context, children []string, caption string) (string, error) {
	token, accountID, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"media_type":   "CAROUSEL",
		"children":     children,
		"caption":      caption,
		"access_token": token,
	}

	resp, err := c.postJSON(ctx, fmt.Sprintf("%s/%s/media", c.baseURL, accountID), payload)
	if err != nil {
		return "", fmt.Errorf("create carousel container: %w", err)
	}
	return resp.ID, nil
}

// ContainerStatus maps the provider's status vocabulary into container states.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	token, _, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		c.baseURL, containerID, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperr.TransientNetworkError{Op: "container status", Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", &apperr.TransientNetworkError{Op: "container status", Err: err}
	}

	var status containerStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}

	if status.Error != nil {
		return "", status.Error.toAPIError()
	}

	switch status.StatusCode {
	case "FINISHED":
		return models.ContainerStateReady, nil
	case "IN_PROGRESS":
		return models.ContainerStatePending, nil
	case "ERROR", "EXPIRED":
		return models.ContainerStateError, nil
	default:
		slog.Info("unknown container status", "container_id", containerID, "status_code", status.StatusCode)
		return models.ContainerStatePending, nil
	}
}

// Publish publishes a ready container and returns the media id and permalink.
// The permalink lookup is best effort; a publish that succeeds without one is
// still a success.
func (c *Client) Publish(ctx context.Context, containerID string) (mediaID, permalink string, err error) {
	token, accountID, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", "", err
	}

	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": token,
	}

	resp, err := c.postJSON(ctx, fmt.Sprintf("%s/%s/media_publish", c.baseURL, accountID), payload)
	if err != nil {
		return "", "", fmt.Errorf("publish container %s: %w", containerID, err)
	}

	permalink, err = c.mediaPermalink(ctx, resp.ID, token)
	if err != nil {
		slog.Info("permalink lookup failed", "media_id", resp.ID, "error", err.Error())
		permalink = ""
	}
	return resp.ID, permalink, nil
}

func (c *Client) mediaPermalink(ctx context.Context, mediaID, token string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s",
		c.baseURL, mediaID, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	var pr permalinkResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&pr); err != nil {
		return "", err
	}
	return pr.Permalink, nil
}

func (c *Client) postJSON(ctx context.Context, reqURL string, payload map[string]interface{}) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientNetworkError{Op: "graph api request", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &apperr.TransientNetworkError{Op: "graph api response", Err: err}
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("error parsing response (status %d): %w", httpResp.StatusCode, err)
	}

	if resp.Error != nil {
		return nil, resp.Error.toAPIError()
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &apperr.RemoteAPIError{Code: httpResp.StatusCode, Message: string(respBody)}
	}
	if resp.ID == "" {
		return nil, &apperr.RemoteAPIError{Code: httpResp.StatusCode, Message: "no id returned"}
	}

	return &resp, nil
}

func (e *graphErr) toAPIError() error {
	return &apperr.RemoteAPIError{
		Code:    e.Code,
		Subcode: e.ErrorSubcode,
		Type:    e.Type,
		Message: e.Message,
	}
}
