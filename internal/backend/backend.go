// Package backend is a client for the subscription backend, which gates page
// access per customer and lists subscribers for the admin dashboard.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/formdepartment/capsule/internal/errors"
)

const maxBodyBytes = 8 << 20

var customerIDPattern = regexp.MustCompile(`^\d{13}$`)

// ValidCustomerID reports whether id has the backend's 13 digit format.
func ValidCustomerID(id string) bool {
	return customerIDPattern.MatchString(id)
}

// Client calls the backend over HTTP.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, http: httpClient}, nil
}

// AccessResult is the backend's verdict on one page visit.
type AccessResult struct {
	OK            bool   `json:"ok"`
	Allowed       *bool  `json:"allowed,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Plan          string `json:"plan,omitempty"`
	Message       string `json:"message,omitempty"`
	Redirect      string `json:"redirect,omitempty"`
	RemainingUses *int   `json:"remaining_uses,omitempty"`
	ToolURL       string `json:"tool_url,omitempty"`
}

// Granted reports whether the visit may proceed.
func (r AccessResult) Granted() bool {
	return r.OK && (r.Allowed == nil || *r.Allowed)
}

// CheckAccess asks whether customerID may open page. A refusal is a result,
// not an error; errors are reserved for bad input and backend failures.
// Tier1 plans spend one use per granted check.
func (c *Client) CheckAccess(ctx context.Context, customerID, page string) (AccessResult, error) {
	if !ValidCustomerID(customerID) {
		return AccessResult{}, errors.NewInvalidRequest("customer id must be 13 digits")
	}

	q := url.Values{"customer_id": {customerID}}
	if page != "" {
		q.Set("page", page)
	}

	var res AccessResult
	status, err := c.get(ctx, "/proxy/tool", q, &res)
	if err != nil {
		return AccessResult{}, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		res.OK = false
		return res, nil
	case status == http.StatusBadRequest:
		return AccessResult{}, errors.NewInvalidRequest(firstNonEmpty(res.Message, res.Reason, "invalid access request"))
	case status >= 300:
		return AccessResult{}, errors.NewUpstreamFailure("backend", fmt.Errorf("status %d: %s", status, firstNonEmpty(res.Message, res.Reason)))
	}
	return res, nil
}

// dashboardResponse is the body of /admin/dashboard.
type dashboardResponse struct {
	OK      bool         `json:"ok"`
	Users   []Subscriber `json:"users"`
	Message string       `json:"message,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// Dashboard returns every subscriber. token is the admin token.
func (c *Client) Dashboard(ctx context.Context, token string) ([]Subscriber, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.NewInvalidRequest("missing admin token")
	}

	var res dashboardResponse
	status, err := c.get(ctx, "/admin/dashboard", url.Values{"token": {token}}, &res)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, errors.NewAccessDenied(firstNonEmpty(res.Message, "invalid admin token"), "")
	}
	if status >= 300 || !res.OK {
		return nil, errors.NewUpstreamFailure("backend", fmt.Errorf("%s", firstNonEmpty(res.Message, res.Reason, "unable to load admin dashboard")))
	}
	if res.Users == nil {
		res.Users = []Subscriber{}
	}
	return res.Users, nil
}

// get issues a GET and decodes the JSON body into out whatever the status.
// Transport failures and undecodable bodies are upstream failures.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) (int, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.NewUpstreamFailure("backend", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, errors.NewUpstreamFailure("backend", err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil && resp.StatusCode < 300 {
			return 0, errors.NewUpstreamFailure("backend", fmt.Errorf("decode %s: %w", path, err))
		}
	}
	return resp.StatusCode, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
