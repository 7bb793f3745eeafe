package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	git "github.com/go-git/go-git/v5"
)

// Set through -ldflags at release time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// GetCommitHash returns the short HEAD hash of the repository holding the
// working directory or, failing that, the executable.
func GetCommitHash() string {
	if cwd, err := os.Getwd(); err == nil {
		if hash := shortHash(computeHashFromPath(cwd)); hash != "" {
			return hash
		}
	}

	if exePath, err := os.Executable(); err == nil {
		if hash := shortHash(computeHashFromPath(filepath.Dir(exePath))); hash != "" {
			return hash
		}
	}

	return "unknown"
}

func shortHash(hash string) string {
	if len(hash) >= 8 {
		return hash[:8]
	}
	return hash
}

func computeHashFromPath(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

func BuildVersion() string {
	return fmt.Sprintf("exslice %s (commit %s, built %s, %s/%s)", Version, GetCommitHash(), BuildTime, runtime.GOOS, runtime.GOARCH)
}
