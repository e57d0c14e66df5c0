package reconcile

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nahidhasan98/icon-sync/internal/changeset"
	"github.com/nahidhasan98/icon-sync/internal/gitstore"
	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// DefaultCommitMessage is used when Options.CommitMessage is empty
const DefaultCommitMessage = "Updated icons"

// Options configures a reconciliation
type Options struct {
	SourcePrefix  string
	OutputDir     string
	FileMode      string
	TargetRef     string // e.g. "heads/master"
	CommitMessage string
	Collision     CollisionPolicy
	Concurrency   int
}

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = "icons"
	}
	if o.FileMode == "" {
		o.FileMode = store.ModeExecutable
	}
	if o.TargetRef == "" {
		o.TargetRef = "heads/master"
	}
	if o.CommitMessage == "" {
		o.CommitMessage = DefaultCommitMessage
	}
	if o.Collision == "" {
		o.Collision = CollisionFail
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Request is one push to reconcile
type Request struct {
	Commits []changeset.Commit
	Source  store.Location
}

// Result describes what a reconciliation did, or would do in a dry run
type Result struct {
	ChangeSet  changeset.NetChangeSet
	NoOp       bool
	DryRun     bool
	ParentSHA  string
	TreeSHA    string
	CommitSHA  string
	Listing    []store.Entry
	Ref        *store.RefStatus
	Operations []Operation
}

// Engine runs the reduce → reconcile pipeline against a store
type Engine struct {
	store  store.Store
	source store.ContentReader
	opts   Options
	filter changeset.Filter
	log    *logger.Logger
}

// NewEngine creates a new reconciliation engine
func NewEngine(target store.Store, source store.ContentReader, opts Options, log *logger.Logger) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:  target,
		source: source,
		opts:   opts,
		filter: changeset.NewFilter(opts.SourcePrefix),
		log:    log,
	}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.opts
}

// Reduce collapses the request's commits into a net change set
func (e *Engine) Reduce(req Request) changeset.NetChangeSet {
	return changeset.Reduce(req.Commits, e.filter)
}

// Run reconciles the push into exactly one new commit on the target ref, or
// does nothing when no icon was touched. Writes happen strictly in the order
// blobs, tree, commit, ref; the ref update is the only externally visible step.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, req, false)
}

// Plan performs every read a Run would, hashes contents locally instead of
// creating blobs, and stops before any write.
func (e *Engine) Plan(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, req, true)
}

func (e *Engine) run(ctx context.Context, req Request, dryRun bool) (*Result, error) {
	cs := e.Reduce(req)
	res := &Result{ChangeSet: cs, DryRun: dryRun}

	added, removed, modified := cs.Counts()
	e.log.With("added", added).With("removed", removed).With("modified", modified).
		Info("reduced push to net change set")

	if cs.IsEmpty() {
		res.NoOp = true
		return res, nil
	}

	if err := e.checkCollisions(cs); err != nil {
		return res, err
	}

	head, err := e.store.GetRef(ctx, e.opts.TargetRef)
	if err != nil {
		return res, &StageError{Op: OpGetRef, Path: e.opts.TargetRef, Err: err}
	}
	res.record(OpGetRef, e.opts.TargetRef, head)
	res.ParentSHA = head

	commit, err := e.store.GetCommit(ctx, head)
	if err != nil {
		return res, &StageError{Op: OpGetCommit, Path: head, Err: err}
	}
	res.record(OpGetCommit, head, commit.TreeSHA)

	current, err := e.store.GetTreeRecursive(ctx, commit.TreeSHA)
	if err != nil {
		return res, &StageError{Op: OpGetTree, Path: commit.TreeSHA, Err: err}
	}
	res.record(OpGetTree, commit.TreeSHA, fmt.Sprintf("%d entries", len(current)))

	paths := ContentPaths(cs)
	contents, err := e.fetchContents(ctx, req.Source, paths)
	if err != nil {
		return res, err
	}
	for _, p := range paths {
		res.record(OpGetContent, p, fmt.Sprintf("%d bytes", len(contents[p])))
	}

	var blobs map[string]string
	if dryRun {
		blobs = make(map[string]string, len(contents))
		for p, b := range contents {
			blobs[p] = gitstore.HashBlob(b)
		}
	} else {
		blobs, err = e.createBlobs(ctx, paths, contents)
		if err != nil {
			return res, err
		}
	}
	for _, p := range paths {
		res.record(OpCreateBlob, p, blobs[p])
	}

	listing, err := BuildListing(current, cs, blobs, e.opts)
	if err != nil {
		return res, err
	}
	res.Listing = listing

	if dryRun {
		res.record(OpCreateTree, fmt.Sprintf("%d entries", len(listing)), "")
		res.record(OpCreateCommit, e.opts.CommitMessage, "")
		res.record(OpUpdateRef, e.opts.TargetRef, "")
		return res, nil
	}

	tree, err := e.store.CreateTree(ctx, listing)
	if err != nil {
		return res, &StageError{Op: OpCreateTree, Err: err}
	}
	res.record(OpCreateTree, fmt.Sprintf("%d entries", len(listing)), tree)
	res.TreeSHA = tree

	newCommit, err := e.store.CreateCommit(ctx, e.opts.CommitMessage, tree, []string{head})
	if err != nil {
		return res, &StageError{Op: OpCreateCommit, Err: err}
	}
	res.record(OpCreateCommit, e.opts.CommitMessage, newCommit)
	res.CommitSHA = newCommit

	status, err := e.store.UpdateRef(ctx, e.opts.TargetRef, newCommit)
	if err != nil {
		return res, &StageError{Op: OpUpdateRef, Path: e.opts.TargetRef, Err: err}
	}
	res.record(OpUpdateRef, e.opts.TargetRef, status.SHA)
	res.Ref = status

	e.log.With("commit", newCommit).With("ref", e.opts.TargetRef).Info("target ref updated")
	return res, nil
}

func (e *Engine) checkCollisions(cs changeset.NetChangeSet) error {
	collisions := FindCollisions(cs, e.opts.OutputDir)
	if len(collisions) == 0 {
		return nil
	}
	if e.opts.Collision == CollisionLastWriter {
		for _, c := range collisions {
			winner, removed := Winner(cs, e.opts.OutputDir, c)
			e.log.With("target", c.Target).With("paths", c.Paths).
				With("winner", winner).With("removed", removed).
				Warn("basename collision resolved by last-writer policy")
		}
		return nil
	}
	return collisions[0]
}

func (e *Engine) fetchContents(ctx context.Context, loc store.Location, paths []string) (map[string][]byte, error) {
	var mu sync.Mutex
	out := make(map[string][]byte, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, p := range paths {
		g.Go(func() error {
			b, err := e.source.GetFileContent(gctx, loc, p)
			if err != nil {
				return &StageError{Op: OpGetContent, Path: p, Err: err}
			}
			mu.Lock()
			out[p] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) createBlobs(ctx context.Context, paths []string, contents map[string][]byte) (map[string]string, error) {
	var mu sync.Mutex
	out := make(map[string]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, p := range paths {
		content := contents[p]
		g.Go(func() error {
			sha, err := e.store.CreateBlob(gctx, content)
			if err != nil {
				return &StageError{Op: OpCreateBlob, Path: p, Err: err}
			}
			mu.Lock()
			out[p] = sha
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
