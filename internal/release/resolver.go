// Package release picks downloadable engine assets from a GitHub style
// release feed.
package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no release or asset satisfies the request.
// It is terminal; callers should not retry.
var ErrNotFound = errors.New("release asset not found")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

const defaultTimeout = 30 * time.Second

// Asset is one downloadable file of a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
	// GitHub names the field browser_download_url.
	BrowserDownloadURL string `json:"browser_download_url"`
	// Version is the name of the release the asset was selected from.
	Version string `json:"-"`
}

// URL returns whichever download URL the feed populated.
func (a Asset) URL() string {
	if a.BrowserDownloadURL != "" {
		return a.BrowserDownloadURL
	}
	return a.DownloadURL
}

// Release is one entry of the feed.
type Release struct {
	Name    string  `json:"name"`
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Resolver fetches release manifests from BaseURL.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewResolver returns a resolver for feeds under baseURL, e.g.
// https://api.github.com/repos/janhq. A nil client gets a 30s timeout client.
func NewResolver(baseURL string, client *http.Client, log zerolog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Resolver{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client, log: log}
}

// Resolve fetches the release for engine at version ("latest" or a tag) and
// selects the asset matching every matcher.
func (r *Resolver) Resolve(ctx context.Context, engine, version string, matchers []string) (Asset, error) {
	rel, err := r.fetch(ctx, engine, version)
	if err != nil {
		return Asset{}, err
	}
	asset, ok := SelectAsset(rel.Assets, matchers)
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s %s matching %q", ErrNotFound, engine, version, compact(matchers))
	}
	asset.Version = strings.TrimPrefix(rel.Name, "v")
	if asset.Version == "" {
		asset.Version = strings.TrimPrefix(rel.TagName, "v")
	}
	r.log.Debug().Str("engine", engine).Str("version", version).Str("asset", asset.Name).Msg("release asset resolved")
	return asset, nil
}

func (r *Resolver) fetch(ctx context.Context, engine, version string) (Release, error) {
	if version == "" {
		version = "latest"
	}
	url := r.baseURL + "/" + engine + "/releases"
	if version == "latest" {
		url += "/latest"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Release{}, fmt.Errorf("%w: no releases for %s", ErrNotFound, engine)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Release{}, fmt.Errorf("release feed http error: %s: %s", resp.Status, string(b))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Release{}, fmt.Errorf("read releases: %w", err)
	}
	return decodeFeed(body, version)
}

// decodeFeed accepts either a single release object or an array, in which
// case the entry named version (without a leading "v") is chosen.
func decodeFeed(body []byte, version string) (Release, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var all []Release
		if err := json.Unmarshal(trimmed, &all); err != nil {
			return Release{}, fmt.Errorf("decode releases: %w", err)
		}
		want := strings.TrimPrefix(version, "v")
		for _, rel := range all {
			if rel.Name == want {
				return rel, nil
			}
		}
		return Release{}, fmt.Errorf("%w: no release named %s", ErrNotFound, want)
	}
	var rel Release
	if err := json.Unmarshal(trimmed, &rel); err != nil {
		return Release{}, fmt.Errorf("decode release: %w", err)
	}
	return rel, nil
}

// SelectAsset keeps assets whose name contains every non-empty matcher and
// returns the one with the shortest name, so a generic build wins over a more
// specific variant that also matches.
func SelectAsset(assets []Asset, matchers []string) (Asset, bool) {
	want := compact(matchers)
	sorted := append([]Asset(nil), assets...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Name) < len(sorted[j].Name) })
	for _, a := range sorted {
		if matchesAll(a.Name, want) {
			return a, true
		}
	}
	return Asset{}, false
}

func matchesAll(name string, matchers []string) bool {
	for _, m := range matchers {
		if !strings.Contains(name, m) {
			return false
		}
	}
	return true
}

func compact(matchers []string) []string {
	out := make([]string, 0, len(matchers))
	for _, m := range matchers {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
