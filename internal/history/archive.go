// Package history keeps a git repository per document with one commit for
// every save, so earlier revisions can be listed and read back.
package history

import (
	"context"
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
	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/store"
)

const (
	snapshotFile = "content.json"
	mainBranch   = "main"
)

// ErrNoHistory is returned for documents that were never archived.
var ErrNoHistory = errors.New("document has no history")

type Revision struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

type Archive struct {
	baseDir string
	log     zerolog.Logger
	now     func() time.Time
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string, log zerolog.Logger) *Archive {
	return &Archive{
		baseDir: baseDir,
		log:     log,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits a snapshot of doc.
func (a *Archive) Record(doc *document.Document, message string) (Revision, error) {
	lock := a.documentLock(doc.Ref)
	lock.Lock()
	defer lock.Unlock()

	payload, err := Encode(doc)
	if err != nil {
		return Revision{}, err
	}
	repo, err := a.openOrInit(doc.Ref)
	if err != nil {
		return Revision{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), snapshotFile), payload, 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", snapshotFile, err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return Revision{}, fmt.Errorf("git add snapshot: %w", err)
	}
	return a.commit(repo, worktree, doc.Author, message)
}

// RecordDeletion adds an empty commit marking the document as deleted. It is
// a no-op for documents without history.
func (a *Archive) RecordDeletion(ref document.Ref, message string) (Revision, error) {
	lock := a.documentLock(ref)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(ref))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Revision{}, nil
	}
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	return a.commit(repo, worktree, "", message)
}

// History lists the most recent revisions first. A limit of zero lists all.
func (a *Archive) History(ref document.Ref, limit int) ([]Revision, error) {
	lock := a.documentLock(ref)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(ref)
	if err != nil {
		return nil, err
	}
	head, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var items []Revision
	err = iter.ForEach(func(c *object.Commit) error {
		items = append(items, toRevision(c))
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

// Snapshot reads the document as it was at revision hash. Short hashes are
// accepted.
func (a *Archive) Snapshot(ref document.Ref, hash string) (Snapshot, error) {
	lock := a.documentLock(ref)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.open(ref)
	if err != nil {
		return Snapshot{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, err
	}
	c, err := repo.CommitObject(resolved)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := c.File(snapshotFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(payload)
}

// DocumentSaved archives every committed save.
func (a *Archive) DocumentSaved(_ context.Context, ev store.SaveEvent) {
	if _, err := a.Record(ev.Document, ev.Message); err != nil {
		a.log.Warn().Err(err).Str("document", ev.Document.Ref.String()).Msg("archive revision")
	}
}

func (a *Archive) DocumentDeleted(_ context.Context, ref document.Ref) {
	if _, err := a.RecordDeletion(ref, "Deleted document"); err != nil {
		a.log.Warn().Err(err).Str("document", ref.String()).Msg("archive deletion")
	}
}

func (a *Archive) commit(repo *git.Repository, worktree *git.Worktree, author, message string) (Revision, error) {
	if author == "" {
		author = "publication"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.publication", sanitizeEmail(author)),
			When:  a.now(),
		},
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit snapshot: %w", err)
	}
	c, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(c), nil
}

func (a *Archive) open(ref document.Ref) (*git.Repository, error) {
	repo, err := git.PlainOpen(a.repoPath(ref))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNoHistory)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (a *Archive) openOrInit(ref document.Ref) (*git.Repository, error) {
	path := a.repoPath(ref)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func (a *Archive) repoPath(ref document.Ref) string {
	return filepath.Join(a.baseDir, url.PathEscape(ref.Wiki), url.PathEscape(ref.Space), url.PathEscape(ref.Name))
}

func (a *Archive) documentLock(ref document.Ref) *sync.Mutex {
	key := ref.String()
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[key]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[key] = lock
	return lock
}

func toRevision(c *object.Commit) Revision {
	return Revision{
		Hash:      c.Hash.String()[:7],
		Message:   c.Message,
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
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
