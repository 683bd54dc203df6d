package backup

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// RemoteOptions locates the backup file inside a hosted repository.
type RemoteOptions struct {
	APIURL        string // e.g. https://api.github.com
	RawURL        string // e.g. https://raw.githubusercontent.com
	Owner         string
	Repo          string
	Path          string
	Branch        string
	Token         string
	CommitMessage string
	Timeout       time.Duration
}

// GitHub reads and writes one file through the repository contents API.
type GitHub struct {
	opts   RemoteOptions
	client *http.Client
}

type contentsResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type contentsUpdate struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// NewGitHub builds a client that authenticates with a static bearer token.
func NewGitHub(opts RemoteOptions) *GitHub {
	base := &http.Client{Timeout: opts.Timeout}
	client := base
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
		client.Timeout = opts.Timeout
	}
	if opts.CommitMessage == "" {
		opts.CommitMessage = "Update survey responses"
	}
	return &GitHub{opts: opts, client: client}
}

func (g *GitHub) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimSuffix(g.opts.APIURL, "/"), g.opts.Owner, g.opts.Repo, strings.TrimPrefix(g.opts.Path, "/"))
}

func (g *GitHub) rawFileURL() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		strings.TrimSuffix(g.opts.RawURL, "/"), g.opts.Owner, g.opts.Repo, g.opts.Branch, strings.TrimPrefix(g.opts.Path, "/"))
}

// Fetch returns the decoded file and its revision sha, or ErrNotFound.
func (g *GitHub) Fetch(ctx context.Context) ([]byte, string, error) {
	u := g.contentsURL()
	if g.opts.Branch != "" {
		u += "?ref=" + url.QueryEscape(g.opts.Branch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch remote backup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError("fetch remote backup", resp)
	}

	var body contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", fmt.Errorf("decode remote backup metadata: %w", err)
	}
	// Files above the API size limit come back without inline content.
	if body.Encoding != "base64" {
		data, err := g.Raw(ctx)
		return data, body.SHA, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return nil, "", fmt.Errorf("decode remote backup content: %w", err)
	}
	return data, body.SHA, nil
}

// Put uploads data, conditioned on sha when the file already exists.
func (g *GitHub) Put(ctx context.Context, data []byte, sha string) error {
	payload, err := json.Marshal(contentsUpdate{
		Message: g.opts.CommitMessage,
		Content: base64.StdEncoding.EncodeToString(data),
		SHA:     sha,
		Branch:  g.opts.Branch,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, g.contentsURL(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload remote backup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("upload remote backup", resp)
	}
	return nil
}

// Raw downloads the file from the public raw-content host.
func (g *GitHub) Raw(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.rawFileURL(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch raw backup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch raw backup", resp)
	}
	return io.ReadAll(resp.Body)
}

func statusError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}
