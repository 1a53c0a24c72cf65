// Package hub resolves model repository files to local paths, downloading
// into a cache directory when a file is not already present.
package hub

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v2"

	"github.com/hankgalt/textembed/pkg/domain"
)

const defaultEndpoint = "https://huggingface.co"

// Config configures a repository handle.
type Config struct {
	// repository name, e.g. "Xenova/bge-small-en-v1.5"
	RepoID string
	// local cache root; files land under CacheDir/<repo>/<name>
	CacheDir string
	// emit a progress bar while downloading
	ShowProgress bool
	// hub base URL; defaults to the Hugging Face hub
	Endpoint string
	// HTTP client; defaults to http.DefaultClient
	Client *http.Client
}

// Repo fetches named files from one model repository, cache first.
type Repo struct {
	cfg Config
}

// NewRepo returns a repository handle scoped to cfg.CacheDir.
func NewRepo(cfg Config) (*Repo, error) {
	if cfg.RepoID == "" {
		return nil, fmt.Errorf("%w: missing repo id", domain.ErrRepository)
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("%w: missing cache dir", domain.ErrRepository)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Repo{cfg: cfg}, nil
}

// WithProgress toggles download progress reporting.
func (r *Repo) WithProgress(show bool) *Repo {
	r.cfg.ShowProgress = show
	return r
}

// Get returns a local path for the named repository file, downloading it
// into the cache when not already present.
func (r *Repo) Get(name string) (string, error) {
	local := filepath.Join(r.cfg.CacheDir, repoDirName(r.cfg.RepoID), filepath.FromSlash(name))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("%w: creating cache dir for %s: %v", domain.ErrRepository, name, err)
	}
	if err := r.download(name, local); err != nil {
		return "", err
	}
	return local, nil
}

func (r *Repo) download(name, local string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", r.cfg.Endpoint, r.cfg.RepoID, name)
	resp, err := r.cfg.Client.Get(url)
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %v", domain.ErrRepository, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: fetching %s: status %d", domain.ErrRepository, name, resp.StatusCode)
	}

	// Write to a temp file first so a failed download never poisons the cache.
	tmp, err := os.CreateTemp(filepath.Dir(local), "."+filepath.Base(local)+".*")
	if err != nil {
		return fmt.Errorf("%w: staging %s: %v", domain.ErrRepository, name, err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if r.cfg.ShowProgress {
		bar := progressbar.NewOptions(int(resp.ContentLength),
			progressbar.OptionSetBytes(int(resp.ContentLength)),
			progressbar.OptionSetDescription(name),
		)
		w = io.MultiWriter(tmp, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: downloading %s: %v", domain.ErrRepository, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: writing %s: %v", domain.ErrRepository, name, err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return fmt.Errorf("%w: caching %s: %v", domain.ErrRepository, name, err)
	}
	return nil
}

// repoDirName flattens "org/name" into one cache directory segment.
func repoDirName(repoID string) string {
	return strings.ReplaceAll(repoID, "/", "--")
}
