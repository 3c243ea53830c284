package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"sayit/api/internal/store"
)

const transcriptFile = "transcript.md"

// ErrNotArchived is returned for speeches that have no archive yet.
var ErrNotArchived = errors.New("speech has no archive")

// Archive keeps every accepted revision of a speech transcript as a commit
// in a repository of its own.
type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records markdown as the newest revision. When the text equals the
// current head nothing is committed and changed is false.
func (a *Archive) Commit(filename, markdown, author, message string) (info store.CommitInfo, changed bool, err error) {
	lock := a.speechLock(filename)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.openOrInit(filename)
	if err != nil {
		return store.CommitInfo{}, false, err
	}

	if head, err := headCommit(repo); err == nil {
		current, err := readTranscript(head)
		if err != nil {
			return store.CommitInfo{}, false, err
		}
		if current == markdown {
			return toCommitInfo(head), false, nil
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return store.CommitInfo{}, false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), transcriptFile), []byte(markdown), 0o644); err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("write %s: %w", transcriptFile, err)
	}
	if _, err := worktree.Add(transcriptFile); err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("git add transcript: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.sayit", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("commit transcript: %w", err)
	}
	if err := pointMainAt(repo, hash); err != nil {
		return store.CommitInfo{}, false, err
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// Head returns the newest transcript of a speech.
func (a *Archive) Head(filename string) (string, store.CommitInfo, error) {
	lock := a.speechLock(filename)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(filename)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	commitObj, err := headCommit(repo)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	text, err := readTranscript(commitObj)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	return text, toCommitInfo(commitObj), nil
}

// ContentAt returns the transcript as of a commit; short hashes are accepted.
func (a *Archive) ContentAt(filename, hash string) (string, store.CommitInfo, error) {
	lock := a.speechLock(filename)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(filename)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return "", store.CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	text, err := readTranscript(commitObj)
	if err != nil {
		return "", store.CommitInfo{}, err
	}
	return text, toCommitInfo(commitObj), nil
}

// History lists revisions newest first.
func (a *Archive) History(filename string, limit int) ([]store.CommitInfo, error) {
	lock := a.speechLock(filename)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(filename)
	if err != nil {
		return nil, err
	}
	head, err := headCommit(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		info := toCommitInfo(commitObj)
		if stats, err := commitObj.Stats(); err == nil {
			for _, stat := range stats {
				info.Added += stat.Addition
				info.Removed += stat.Deletion
			}
		}
		items = append(items, info)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Remove deletes the archive of a speech. Missing archives are not an error.
func (a *Archive) Remove(filename string) error {
	lock := a.speechLock(filename)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(a.repoPath(filename)); err != nil {
		return fmt.Errorf("remove archive %s: %w", filename, err)
	}
	return nil
}

func (a *Archive) repoPath(filename string) string {
	return filepath.Join(a.baseDir, url.PathEscape(filename))
}

func (a *Archive) speechLock(filename string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[filename]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[filename] = lock
	return lock
}

func (a *Archive) open(filename string) (*git.Repository, error) {
	repo, err := git.PlainOpen(a.repoPath(filename))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%s: %w", filename, ErrNotArchived)
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (a *Archive) openOrInit(filename string) (*git.Repository, error) {
	path := a.repoPath(filename)
	if _, err := os.Stat(path); err == nil {
		return a.open(filename)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	// New commits land on main from the first one on.
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func pointMainAt(repo *git.Repository, hash plumbing.Hash) error {
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	return nil
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return commitObj, nil
}

func readTranscript(commitObj *object.Commit) (string, error) {
	file, err := commitObj.File(transcriptFile)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", transcriptFile, err)
	}
	text, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return text, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "editor"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
