package registryclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bnema/zerowrap"

	"abwart/internal/domain"
)

// DeleteTag deletes a tag by its resolved manifest digest. A 404 is treated
// as success (the tag is already gone); a 405 marks deletes disabled for
// the remainder of this client's lifetime, per spec.md §7.
func (c *Client) DeleteTag(ctx context.Context, repo string, tag domain.Tag) error {
	ctx = zerowrap.CtxWithFields(ctx, fields("DeleteTag", map[string]any{
		"repository": repo,
		"tag":        tag.Name,
		"digest":     tag.Digest,
	}))
	log := zerowrap.FromCtx(ctx)

	if c.deletesDisabled() {
		return domain.ErrDeleteDisabled
	}

	path := fmt.Sprintf("/v2/%s/manifests/%s", url.PathEscape(repo), url.PathEscape(tag.Digest))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return log.WrapErr(err, "failed to build delete request")
	}
	c.authenticate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return log.WrapErr(err, "failed to delete manifest")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		log.Debug().Msg("tag already gone, treating as success")
		return nil
	case http.StatusMethodNotAllowed:
		c.disableDeletes()
		log.Warn().Msg("registry has manifest deletes disabled, skipping further deletes for this instance")
		return domain.ErrDeleteDisabled
	default:
		return fmt.Errorf("unexpected status %d deleting %s/%s", resp.StatusCode, repo, tag.Digest)
	}
}

func (c *Client) deletesDisabled() bool {
	c.deleteMu.Lock()
	defer c.deleteMu.Unlock()
	return c.deleteDisabled
}

func (c *Client) disableDeletes() {
	c.deleteMu.Lock()
	defer c.deleteMu.Unlock()
	c.deleteDisabled = true
}
