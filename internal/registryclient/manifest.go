package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bnema/zerowrap"
	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"abwart/internal/domain"
)

// Docker's own manifest-list media types, not present in the OCI image-spec
// package but still served by distribution/distribution registries
// alongside the OCI equivalents (original_source/src/api/manifest.rs).
const (
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
)

var manifestAccept = []string{
	v1.MediaTypeImageIndex,
	v1.MediaTypeImageManifest,
	mediaTypeDockerManifestList,
	mediaTypeDockerManifest,
}

// FetchTagMetadata resolves a tag's manifest, following one level of OCI
// image index or Docker manifest list into its per-platform manifests, and
// returns a domain.Tag with created time (when discoverable) and the total
// size of unique referenced blob digests (spec.md §4.3).
func (c *Client) FetchTagMetadata(ctx context.Context, repo, tagName string) (domain.Tag, error) {
	ctx = zerowrap.CtxWithFields(ctx, fields("FetchTagMetadata", map[string]any{
		"repository": repo,
		"tag":        tagName,
	}))
	log := zerowrap.FromCtx(ctx)

	body, mediaType, digestHdr, err := c.getManifest(ctx, repo, tagName)
	if err != nil {
		return domain.Tag{}, log.WrapErr(err, "failed to fetch manifest")
	}

	manifests, err := c.resolveManifests(ctx, repo, body, mediaType)
	if err != nil {
		return domain.Tag{}, log.WrapErr(err, "failed to resolve manifest")
	}

	blobSizes := make(map[digest.Digest]int64)
	var created time.Time
	var createdKnown bool

	for _, m := range manifests {
		blobSizes[m.Config.Digest] = m.Config.Size
		for _, l := range m.Layers {
			blobSizes[l.Digest] = l.Size
		}

		cfg, ok, err := c.fetchConfigCreated(ctx, repo, m.Config.Digest)
		if err != nil {
			log.Warn().Err(err).Str("digest", m.Config.Digest.String()).Msg("failed to read image config blob")
			continue
		}
		if ok && (!createdKnown || cfg.After(created)) {
			created = cfg
			createdKnown = true
		}
	}

	var total int64
	for _, size := range blobSizes {
		total += size
	}

	return domain.Tag{
		Name:          tagName,
		Digest:        digestHdr,
		Created:       created,
		CreatedKnown:  createdKnown,
		TotalBlobSize: total,
	}, nil
}

// getManifest performs the GET, advertising every followed media type, and
// returns the raw body, its media type, and the resolved content digest
// (preferring the Docker-Content-Digest response header, falling back to a
// digest computed over the body).
func (c *Client) getManifest(ctx context.Context, repo, ref string) ([]byte, string, string, error) {
	path := fmt.Sprintf("/v2/%s/manifests/%s", url.PathEscape(repo), url.PathEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, "", "", err
	}
	c.authenticate(req)
	for _, mt := range manifestAccept {
		req.Header.Add("Accept", mt)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", "", fmt.Errorf("unexpected status %d fetching manifest %s/%s", resp.StatusCode, repo, ref)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("read manifest body: %w", err)
	}

	contentDigest := resp.Header.Get("Docker-Content-Digest")
	if contentDigest == "" {
		contentDigest = digest.FromBytes(body).String()
	}

	return body, resp.Header.Get("Content-Type"), contentDigest, nil
}

// resolveManifests returns the set of per-platform manifests to account for:
// the manifest itself if it is already a single-platform manifest, or its
// referenced manifests if it is an index/manifest list (followed one level,
// per spec.md §4.3).
func (c *Client) resolveManifests(ctx context.Context, repo string, body []byte, mediaType string) ([]v1.Manifest, error) {
	switch mediaType {
	case v1.MediaTypeImageIndex, mediaTypeDockerManifestList:
		var idx v1.Index
		if err := json.Unmarshal(body, &idx); err != nil {
			return nil, fmt.Errorf("decode manifest index: %w", err)
		}
		manifests := make([]v1.Manifest, 0, len(idx.Manifests))
		for _, d := range idx.Manifests {
			childBody, _, _, err := c.getManifest(ctx, repo, d.Digest.String())
			if err != nil {
				return nil, fmt.Errorf("fetch platform manifest %s: %w", d.Digest, err)
			}
			var m v1.Manifest
			if err := json.Unmarshal(childBody, &m); err != nil {
				return nil, fmt.Errorf("decode platform manifest %s: %w", d.Digest, err)
			}
			manifests = append(manifests, m)
		}
		return manifests, nil

	default:
		var m v1.Manifest
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		return []v1.Manifest{m}, nil
	}
}

// fetchConfigCreated reads the image config blob and returns its Created
// timestamp, if present.
func (c *Client) fetchConfigCreated(ctx context.Context, repo string, configDigest digest.Digest) (time.Time, bool, error) {
	path := fmt.Sprintf("/v2/%s/blobs/%s", url.PathEscape(repo), configDigest.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	c.authenticate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, false, fmt.Errorf("unexpected status %d fetching config blob", resp.StatusCode)
	}

	var cfg v1.Image
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return time.Time{}, false, fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Created == nil {
		return time.Time{}, false, nil
	}
	return *cfg.Created, true, nil
}
