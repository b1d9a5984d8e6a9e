package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const baseURL = "https://api.github.com"

// Client provides methods to interact with the GitHub API as an installed
// App. Every call authenticates with an installation token obtained from
// the TokenManager.
type Client struct {
	httpClient *http.Client
	tokens     *TokenManager
	baseURL    string
}

// NewClient creates a new GitHub API client on top of a token manager.
func NewClient(tokens *TokenManager) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		baseURL:    baseURL,
	}
}

// SetBaseURL overrides the API base URL for both the client and its token
// manager, primarily for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
	c.tokens.SetBaseURL(u)
}

// newRequest builds a request authenticated for the given installation.
func (c *Client) newRequest(ctx context.Context, installationID int64, method, url string, body io.Reader) (*http.Request, error) {
	token, _, err := c.tokens.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	return req, nil
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, installationID int64, owner, repo string, prNumber int) (*PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNumber)
	req, err := c.newRequest(ctx, installationID, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: "fetch pull request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &NetworkError{
			Operation: "fetch pull request",
			Err:       fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	var pr PullRequest
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &NetworkError{Operation: "decode pull request", Err: err}
	}

	return &pr, nil
}

// ListPullRequestFiles fetches the list of files changed in a pull request.
func (c *Client) ListPullRequestFiles(ctx context.Context, installationID int64, owner, repo string, prNumber int) ([]PullRequestFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files", c.baseURL, owner, repo, prNumber)
	req, err := c.newRequest(ctx, installationID, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: "fetch changed files", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &NetworkError{
			Operation: "fetch changed files",
			Err:       fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	var files []PullRequestFile
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, &NetworkError{Operation: "decode changed files", Err: err}
	}

	return files, nil
}

// FetchRawContent fetches the raw content of a changed file via the
// contents URL the files listing handed back.
func (c *Client) FetchRawContent(ctx context.Context, installationID int64, contentsURL string) (string, error) {
	req, err := c.newRequest(ctx, installationID, http.MethodGet, contentsURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Operation: "fetch file content", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &NetworkError{
			Operation: "fetch file content",
			Err:       fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Operation: "read file content", Err: err}
	}

	return string(content), nil
}

// FetchFileContent fetches a repository file by path via the contents API.
// Returns an empty string when the file does not exist.
func (c *Client) FetchFileContent(ctx context.Context, installationID int64, owner, repo, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)
	if ref != "" {
		url += "?ref=" + ref
	}
	req, err := c.newRequest(ctx, installationID, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Operation: "fetch file", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil // File doesn't exist
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &NetworkError{
			Operation: "fetch file",
			Err:       fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)),
		}
	}

	var content FileContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return "", &NetworkError{Operation: "decode file", Err: err}
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}

	decoded, err := base64.StdEncoding.DecodeString(content.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}

	return string(decoded), nil
}

// CreateReview posts a review with inline comments on a pull request.
func (c *Client) CreateReview(ctx context.Context, installationID int64, owner, repo string, prNumber int, review *ReviewRequest) (*Review, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", c.baseURL, owner, repo, prNumber)

	body, err := json.Marshal(review)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review: %w", err)
	}

	req, err := c.newRequest(ctx, installationID, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: "create review", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &NetworkError{
			Operation: "create review",
			Err:       fmt.Errorf("status %d, body: %s", resp.StatusCode, string(respBody)),
		}
	}

	var created Review
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &NetworkError{Operation: "decode review response", Err: err}
	}

	return &created, nil
}
