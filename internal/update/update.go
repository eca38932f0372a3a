// Package update checks GitHub for a newer apiconn release.
package update

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/salmonumbrella/apiconn/internal/cache"
	"github.com/salmonumbrella/apiconn/internal/connection"
	"github.com/salmonumbrella/apiconn/internal/interceptors"
	"github.com/salmonumbrella/apiconn/internal/transport"
)

const (
	DefaultReleasesBaseURL = "https://api.github.com"
	LatestReleasePath      = "/repos/salmonumbrella/apiconn/releases/latest"
	CheckTimeout           = 5 * time.Second
	ReleaseCacheTTL        = 24 * time.Hour
)

// ReleasesBaseURL, newTransport and cacheDir can be overridden in tests.
var (
	ReleasesBaseURL = DefaultReleasesBaseURL
	newTransport    = func() connection.Transport {
		return transport.New(transport.WithTimeout(CheckTimeout))
	}
	cacheDir = cache.DefaultDir
)

type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type CheckResult struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateURL       string
	UpdateAvailable bool
}

// CheckForUpdate checks if a newer version is available.
// Returns nil if the check fails; it never blocks the CLI for long.
func CheckForUpdate(ctx context.Context, currentVersion string) *CheckResult {
	if currentVersion == "dev" || currentVersion == "" {
		return nil
	}

	release, ok := latestRelease(ctx)
	if !ok {
		return nil
	}

	current := normalizeVersion(currentVersion)
	latest := normalizeVersion(release.TagName)

	result := &CheckResult{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}
	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}
	return result
}

// latestRelease returns the cached release when it is fresh and asks GitHub
// otherwise.
func latestRelease(ctx context.Context) (Release, bool) {
	var store *cache.Store
	if dir, err := cacheDir(); err == nil {
		store = cache.NewStore(dir, "latest-release", ReleasesBaseURL+LatestReleasePath, ReleaseCacheTTL)
	}

	var release Release
	if store != nil && store.Get(&release) && release.TagName != "" {
		return release, true
	}

	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	conn := connection.New(newTransport(), connection.Config{BaseURL: ReleasesBaseURL})
	resp, err := conn.Invoke(ctx, connection.Request{
		Type:                 connection.RequestGet,
		Path:                 LatestReleasePath,
		Headers:              map[string]string{"Accept": "application/vnd.github.v3+json"},
		ResponseInterceptors: []connection.ResponseInterceptor{interceptors.Status{}},
	})
	if err != nil {
		return Release{}, false
	}
	if err := json.Unmarshal(resp.Body, &release); err != nil {
		return Release{}, false
	}

	if store != nil && release.TagName != "" {
		store.Put(release)
	}
	return release, true
}

func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}
