// Package gitsource keeps local checkouts of git-hosted markdown decks.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones url into localPath if it is not there yet, or pulls the latest
// changes if it is.
func Sync(ctx context.Context, url, localPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("Cloning deck repository", "url", url, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:          url,
			Depth:        1,
			SingleBranch: true,
		})
		if err != nil {
			// Leave nothing half-cloned behind for the next run to trip on.
			os.RemoveAll(localPath)
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to check path %s: %w", localPath, err)
	}

	logger.Info("Pulling deck repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin", SingleBranch: true})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}

// LocalPath maps a git URL (https or scp-style) to a checkout directory
// under baseDir.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http" || parsed.Scheme == "ssh") {
		return checkoutPath(baseDir, parsed.Hostname(), parsed.Path)
	}

	// git@host:owner/repo.git
	user, rest, ok := strings.Cut(repoURL, "@")
	if ok && user != "" {
		host, path, ok := strings.Cut(rest, ":")
		if ok && host != "" {
			return checkoutPath(baseDir, host, path)
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

func checkoutPath(baseDir, host, repoPath string) (string, error) {
	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if repoPath == "" {
		return "", fmt.Errorf("git URL has no repository path")
	}
	dir := filepath.Join(baseDir, host, filepath.FromSlash(repoPath))
	if !strings.HasPrefix(dir, filepath.Clean(baseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("git URL escapes checkout directory")
	}
	return dir, nil
}
