package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Tag is a single classification result, ranked by confidence.
type Tag struct {
	Label      string
	Confidence float64
}

// ClassificationError covers every way a classification call can fail:
// transport errors, non-success HTTP statuses, API-reported errors and
// malformed responses. The validation pipeline treats all of them alike.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Client calls the Imagga tagging API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

// NewClient builds a tagging client with a bounded request timeout.
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
	}
}

type taggingResponse struct {
	Result struct {
		Tags []struct {
			Confidence float64 `json:"confidence"`
			Tag        struct {
				En string `json:"en"`
			} `json:"tag"`
		} `json:"tags"`
	} `json:"result"`
	Status struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"status"`
}

// Classify returns the ranked tags for an image URL, in the order the API
// reports them.
func (c *Client) Classify(ctx context.Context, imageURL string) ([]Tag, error) {
	endpoint := fmt.Sprintf("%s/v2/tags?image_url=%s", c.baseURL, url.QueryEscape(imageURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ClassificationError{Reason: "building request", Err: err}
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ClassificationError{Reason: "transport error", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ClassificationError{Reason: "reading response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ClassificationError{
			Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var parsed taggingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ClassificationError{Reason: "malformed response", Err: err}
	}

	if parsed.Status.Type != "success" {
		return nil, &ClassificationError{
			Reason: fmt.Sprintf("api error: %s", parsed.Status.Text),
		}
	}

	tags := make([]Tag, 0, len(parsed.Result.Tags))
	for _, t := range parsed.Result.Tags {
		tags = append(tags, Tag{Label: t.Tag.En, Confidence: t.Confidence})
	}

	return tags, nil
}
