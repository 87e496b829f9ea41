package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/refdatahq/lookupd/internal/git"
)

// DefaultPollInterval is how long a Git clone is served before the remote
// is polled again.
const DefaultPollInterval = 5 * time.Minute

// GitSource serves definition files from a directory inside a Git
// repository. The repository is cloned into memory and re-cloned when the
// poll interval elapses; between polls all reads are served from the held
// clone. The committer timestamp of HEAD doubles as the modification time
// of every file, so a new commit triggers a full re-scan of the source.
type GitSource struct {
	name         string
	client       git.Client
	cloneCfg     git.CloneConfig
	dir          string
	pollInterval time.Duration

	mu        sync.Mutex
	repoInfo  *git.RepositoryInfo
	fetchedAt time.Time
}

var _ Source = (*GitSource)(nil)

// GitOption configures a GitSource.
type GitOption func(*GitSource)

// WithGitClient overrides the Git client, mainly for tests.
func WithGitClient(client git.Client) GitOption {
	return func(g *GitSource) {
		g.client = client
	}
}

// WithPollInterval sets how often the remote is re-cloned.
func WithPollInterval(interval time.Duration) GitOption {
	return func(g *GitSource) {
		if interval > 0 {
			g.pollInterval = interval
		}
	}
}

// NewGitSource creates a Git source serving definition files from dir
// within the repository described by cloneCfg.
func NewGitSource(name string, cloneCfg git.CloneConfig, dir string, opts ...GitOption) *GitSource {
	g := &GitSource{
		name:         name,
		client:       git.NewDefaultGitClient(),
		cloneCfg:     cloneCfg,
		dir:          strings.Trim(dir, "/"),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Source.
func (g *GitSource) Name() string {
	return g.name
}

// ensureRepo returns the current clone, refreshing it when the poll
// interval has elapsed. A failed refresh keeps serving the previous clone.
func (g *GitSource) ensureRepo(ctx context.Context) (*git.RepositoryInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repoInfo != nil && time.Since(g.fetchedAt) < g.pollInterval {
		return g.repoInfo, nil
	}

	start := time.Now()
	repoInfo, err := g.client.Clone(ctx, &g.cloneCfg)
	if err != nil {
		if g.repoInfo != nil {
			slog.Warn("Failed to refresh Git definition source, serving previous clone",
				"source", g.name,
				"url", g.cloneCfg.URL,
				"error", err)
			// Back off for a full interval before the next attempt.
			g.fetchedAt = time.Now()
			return g.repoInfo, nil
		}
		return nil, fmt.Errorf("cloning %s: %w", g.cloneCfg.URL, err)
	}

	slog.Info("Cloned Git definition source",
		"source", g.name,
		"url", g.cloneCfg.URL,
		"commit", repoInfo.CommitHash,
		"duration", time.Since(start))

	if g.repoInfo != nil {
		if err := g.client.Cleanup(ctx, g.repoInfo); err != nil {
			slog.Warn("Failed to release previous Git clone", "source", g.name, "error", err)
		}
	}
	g.repoInfo = repoInfo
	g.fetchedAt = time.Now()
	return g.repoInfo, nil
}

// List implements Source. IDs are repository paths relative to the
// configured directory.
func (g *GitSource) List(ctx context.Context) ([]string, error) {
	repoInfo, err := g.ensureRepo(ctx)
	if err != nil {
		return nil, err
	}

	files, err := g.client.ListFiles(repoInfo, g.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", g.cloneCfg.URL, err)
	}

	prefix := ""
	if g.dir != "" {
		prefix = g.dir + "/"
	}
	var ids []string
	for _, file := range files {
		if !isDefinitionFile(file) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(file, prefix))
	}
	return ids, nil
}

// ModifiedAt implements Source. Git has no per-file timestamps worth
// trusting, so every file reports the committer time of HEAD.
func (g *GitSource) ModifiedAt(ctx context.Context, _ string) (time.Time, error) {
	repoInfo, err := g.ensureRepo(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return repoInfo.CommitTime, nil
}

// Read implements Source.
func (g *GitSource) Read(ctx context.Context, id string) ([]byte, error) {
	repoInfo, err := g.ensureRepo(ctx)
	if err != nil {
		return nil, err
	}
	data, err := g.client.GetFileContent(repoInfo, path.Join(g.dir, id))
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %w", id, g.cloneCfg.URL, err)
	}
	return data, nil
}

// Exists implements Source.
func (g *GitSource) Exists(ctx context.Context, id string) bool {
	repoInfo, err := g.ensureRepo(ctx)
	if err != nil {
		return false
	}
	_, err = g.client.GetFileContent(repoInfo, path.Join(g.dir, id))
	return err == nil
}

// Close releases the held clone.
func (g *GitSource) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.repoInfo == nil {
		return nil
	}
	err := g.client.Cleanup(ctx, g.repoInfo)
	g.repoInfo = nil
	return err
}
