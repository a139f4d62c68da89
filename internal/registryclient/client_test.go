package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"abwart/internal/domain"
)

func TestListRepositories_Paginated(t *testing.T) {
	pages := [][]string{{"app/web", "app/worker"}, {"infra/db"}}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := pages[calls]
		calls++
		if calls < len(pages) {
			w.Header().Set("Link", fmt.Sprintf(`</v2/_catalog?n=%d&last=x>; rel="next"`, PageSize))
		}
		json.NewEncoder(w).Encode(map[string][]string{"repositories": page})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	repos, err := c.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("got %v, want 3 repositories across pages", repos)
	}
}

func TestListTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"tags": {"v1", "v2"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	tags, err := c.ListTags(context.Background(), "app/web")
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("got %v, want 2 tags", tags)
	}
}

func TestFetchTagMetadata_SinglePlatform(t *testing.T) {
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	configBlob, _ := json.Marshal(v1.Image{Created: &created})

	manifest := v1.Manifest{
		MediaType: v1.MediaTypeImageManifest,
		Config:    v1.Descriptor{MediaType: v1.MediaTypeImageConfig, Digest: "sha256:configdigest", Size: int64(len(configBlob))},
		Layers: []v1.Descriptor{
			{MediaType: v1.MediaTypeImageLayerGzip, Digest: "sha256:layer1", Size: 1000},
		},
	}
	manifestBody, _ := json.Marshal(manifest)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v2/app/manifests/v1":
			w.Header().Set("Content-Type", v1.MediaTypeImageManifest)
			w.Header().Set("Docker-Content-Digest", "sha256:manifestdigest")
			w.Write(manifestBody)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/app/blobs/sha256:configdigest":
			w.Write(configBlob)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	tag, err := c.FetchTagMetadata(context.Background(), "app", "v1")
	if err != nil {
		t.Fatalf("FetchTagMetadata: %v", err)
	}
	if !tag.CreatedKnown || !tag.Created.Equal(created) {
		t.Errorf("got created=%v known=%v, want %v", tag.Created, tag.CreatedKnown, created)
	}
	wantSize := int64(len(configBlob)) + 1000
	if tag.TotalBlobSize != wantSize {
		t.Errorf("got total size %d, want %d", tag.TotalBlobSize, wantSize)
	}
	if tag.Digest != "sha256:manifestdigest" {
		t.Errorf("got digest %q, want sha256:manifestdigest", tag.Digest)
	}
}

func TestDeleteTag_NotFoundTreatedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if err := c.DeleteTag(context.Background(), "app", tagWithDigest("sha256:gone")); err != nil {
		t.Errorf("expected 404 to be treated as success, got %v", err)
	}
}

func TestDeleteTag_MethodNotAllowedDisablesFurtherDeletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if err := c.DeleteTag(context.Background(), "app", tagWithDigest("sha256:a")); err == nil {
		t.Fatal("expected error on first 405")
	}
	if err := c.DeleteTag(context.Background(), "app", tagWithDigest("sha256:b")); err == nil {
		t.Fatal("expected subsequent deletes on this client to stay disabled")
	}
}

func tagWithDigest(d string) domain.Tag {
	return domain.Tag{Name: "x", Digest: d}
}
