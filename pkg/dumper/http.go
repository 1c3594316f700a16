package dumper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundprediction/go-biohub/pkg/httpclient"
)

// GitHubConfig locates a file tracked in a GitHub repository.
type GitHubConfig struct {
	Name string
	// Repo is "owner/name".
	Repo   string
	Path   string
	Branch string
	// APIBase defaults to https://api.github.com.
	APIBase string
	// RawBase defaults to https://github.com.
	RawBase string
}

// HTTPDumper downloads one file whose release is the last commit touching it.
type HTTPDumper struct {
	cfg     GitHubConfig
	archive Archive
	client  *httpclient.Client
}

// NewHTTPDumper creates a dumper.
func NewHTTPDumper(cfg GitHubConfig, archive Archive, client *httpclient.Client) *HTTPDumper {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.github.com"
	}
	if cfg.RawBase == "" {
		cfg.RawBase = "https://github.com"
	}
	if cfg.Branch == "" {
		cfg.Branch = "master"
	}
	return &HTTPDumper{cfg: cfg, archive: archive, client: client}
}

// NewMondoDumper returns the dumper for mondo.owl.
func NewMondoDumper(repo, path string, archive Archive, client *httpclient.Client) *HTTPDumper {
	return NewHTTPDumper(GitHubConfig{Name: "mondo", Repo: repo, Path: path}, archive, client)
}

// Name implements Dumper.
func (d *HTTPDumper) Name() string { return d.cfg.Name }

type commit struct {
	SHA string `json:"sha"`
}

// LatestCommit returns the SHA of the last commit touching the file.
func (d *HTTPDumper) LatestCommit(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("path", d.cfg.Path)
	q.Set("sha", d.cfg.Branch)
	q.Set("per_page", "1")
	u := fmt.Sprintf("%s/repos/%s/commits?%s", strings.TrimRight(d.cfg.APIBase, "/"), d.cfg.Repo, q.Encode())

	var commits []commit
	if err := d.client.GetJSON(ctx, u, &commits); err != nil {
		return "", fmt.Errorf("failed to fetch commits: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == "" {
		return "", fmt.Errorf("no commit found for %s", d.cfg.Path)
	}
	return commits[0].SHA, nil
}

// RawURL is the download location of the file at a commit.
func (d *HTTPDumper) RawURL(sha string) string {
	return fmt.Sprintf("%s/%s/raw/%s/%s", strings.TrimRight(d.cfg.RawBase, "/"), d.cfg.Repo, sha, d.cfg.Path)
}

// Dump implements Dumper. It downloads when forced, when the current copy
// is missing, or when the latest commit differs from the stored release.
func (d *HTTPDumper) Dump(ctx context.Context, req Request) (*Result, error) {
	sha, err := d.LatestCommit(ctx)
	if err != nil {
		return nil, err
	}
	file := filepath.Base(d.cfg.Path)

	if !req.Force && req.Current != nil && req.Current.Release == sha && req.Current.DataFolder != "" {
		current := filepath.Join(req.Current.DataFolder, file)
		if _, err := os.Stat(current); err == nil {
			req.log().Info("skipping", "file", current, "release", sha)
			return &Result{Skipped: true}, nil
		}
	}

	folder := d.archive.Folder(d.cfg.Name, sha)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", folder, err)
	}
	n, err := d.client.Download(ctx, d.RawURL(sha), filepath.Join(folder, file))
	if err != nil {
		return nil, err
	}
	req.log().Info("downloaded", "file", file, "bytes", n, "release", sha)
	return &Result{Release: sha, DataFolder: folder, Files: []string{file}, Bytes: n}, nil
}

// MetadataDumper compares a remote metadata timestamp to the stored release.
// Nothing is downloaded: uploaders read the remote API directly.
type MetadataDumper struct {
	name   string
	url    string
	client *httpclient.Client
}

// NewMetadataDumper creates a dumper for name reading metadataURL.
func NewMetadataDumper(name, metadataURL string, client *httpclient.Client) *MetadataDumper {
	return &MetadataDumper{name: name, url: metadataURL, client: client}
}

// Name implements Dumper.
func (d *MetadataDumper) Name() string { return d.name }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and naive ISO timestamps, the latter as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Dump implements Dumper.
func (d *MetadataDumper) Dump(ctx context.Context, req Request) (*Result, error) {
	var meta struct {
		Timestamp string `json:"timestamp"`
	}
	if err := d.client.GetJSON(ctx, d.url, &meta); err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	remote, err := ParseTimestamp(meta.Timestamp)
	if err != nil {
		return nil, err
	}
	release := remote.UTC().Format(time.RFC3339Nano)

	if !req.Force && req.Current != nil && req.Current.Release != "" {
		current, err := ParseTimestamp(req.Current.Release)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("stored release of %s is invalid", d.name), err)
		}
		if !remote.After(current) {
			req.log().Info("remote is not newer than current", "remote", release, "current", req.Current.Release)
			return &Result{Skipped: true}, nil
		}
	}
	req.log().Info("remote is newer than current", "remote", release)
	return &Result{Release: release}, nil
}
