package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/bnema/zerowrap"
)

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ListRepositories paginates GET /v2/_catalog until the server stops
// advertising a next page (spec.md §4.3, §6).
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	ctx = zerowrap.CtxWithFields(ctx, fields("ListRepositories", nil))
	log := zerowrap.FromCtx(ctx)

	var repos []string
	path := fmt.Sprintf("/v2/_catalog?n=%d", PageSize)

	for path != "" {
		var page struct {
			Repositories []string `json:"repositories"`
		}
		next, err := c.getJSON(ctx, path, &page)
		if err != nil {
			return nil, log.WrapErr(err, "failed to list repositories")
		}
		repos = append(repos, page.Repositories...)
		path = next
	}

	return repos, nil
}

// ListTags paginates GET /v2/{repo}/tags/list for one repository.
func (c *Client) ListTags(ctx context.Context, repo string) ([]string, error) {
	ctx = zerowrap.CtxWithFields(ctx, fields("ListTags", map[string]any{"repository": repo}))
	log := zerowrap.FromCtx(ctx)

	var tags []string
	path := fmt.Sprintf("/v2/%s/tags/list?n=%d", url.PathEscape(repo), PageSize)

	for path != "" {
		var page struct {
			Tags []string `json:"tags"`
		}
		next, err := c.getJSON(ctx, path, &page)
		if err != nil {
			return nil, log.WrapErr(err, "failed to list tags")
		}
		tags = append(tags, page.Tags...)
		path = next
	}

	return tags, nil
}

// getJSON issues a GET against path (relative to the registry base URL),
// decodes the JSON body into out, and returns the relative path of the next
// page, if any, parsed from the response's Link header.
func (c *Client) getJSON(ctx context.Context, path string, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	c.authenticate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", fmt.Errorf("decode response from %s: %w", path, err)
	}

	return nextPage(resp.Header.Get("Link")), nil
}

func nextPage(link string) string {
	if link == "" {
		return ""
	}
	m := linkNextPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}
