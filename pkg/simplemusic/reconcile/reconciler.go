package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-music/pkg/simplemusic"
)

// DefaultGrace is how old an unreferenced object must be before it counts
// as an orphan. Younger objects may belong to an upload whose record write
// is still in flight.
const DefaultGrace = time.Hour

// ReferenceSource yields every object URL held by a record.
type ReferenceSource interface {
	ReferencedObjectURLs(ctx context.Context) ([]string, error)
}

// Store is a blob store that can enumerate its folders.
type Store interface {
	simplemusic.BlobStore
	simplemusic.ObjectLister
}

// Reconciler finds blob objects no record points at and deletes them.
type Reconciler struct {
	refs   ReferenceSource
	store  Store
	logger *slog.Logger
}

// New creates a new Reconciler instance.
func New(refs ReferenceSource, store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{refs: refs, store: store, logger: logger}
}

// Options configures a reconciliation run.
type Options struct {
	// Folders maps each folder to list onto the class of its objects
	// (default: DefaultFolders)
	Folders map[string]simplemusic.ContentClass

	// Grace skips unreferenced objects modified more recently than this
	// (default: DefaultGrace)
	Grace time.Duration

	// DryRun if true, reports orphans without deleting them
	DryRun bool

	// Concurrency bounds parallel folder listings and deletions (default: 4)
	Concurrency int

	// Now overrides the clock (optional)
	Now func() time.Time
}

// Result contains statistics about a reconciliation run.
type Result struct {
	TotalFound int64
	Referenced int64
	// Young counts unreferenced objects still inside the grace window
	Young    int64
	Orphaned int64
	Deleted  int64
	Failed   int64

	OrphanURLs []string
	FailedURLs []string
}

// DefaultFolders returns the folders the service writes to.
func DefaultFolders() map[string]simplemusic.ContentClass {
	return map[string]simplemusic.ContentClass{
		simplemusic.DefaultAudioFolder:   simplemusic.ContentClassAudio,
		simplemusic.DefaultImageFolder:   simplemusic.ContentClassImage,
		simplemusic.DefaultProfileFolder: simplemusic.ContentClassImage,
	}
}

type candidate struct {
	info  simplemusic.ObjectInfo
	class simplemusic.ContentClass
}

// Run lists every folder, compares the objects with the referenced URLs
// and deletes the orphans. A failed deletion is recorded and the run
// continues.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Folders == nil {
		opts.Folders = DefaultFolders()
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// References are read before listing; anything uploaded after this
	// point is younger than the grace window.
	urls, err := r.refs.ReferencedObjectURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load referenced urls: %w", err)
	}
	referenced := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		referenced[u] = struct{}{}
	}

	objects, err := r.listAll(ctx, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	cutoff := opts.Now().Add(-opts.Grace)
	var orphans []candidate
	for _, obj := range objects {
		result.TotalFound++
		if _, ok := referenced[obj.info.URL]; ok {
			result.Referenced++
			continue
		}
		if obj.info.ModifiedAt.After(cutoff) {
			result.Young++
			continue
		}
		result.Orphaned++
		result.OrphanURLs = append(result.OrphanURLs, obj.info.URL)
		orphans = append(orphans, obj)
	}

	if opts.DryRun {
		for _, o := range orphans {
			r.logger.Info("[DRY-RUN] would delete orphan", "url", o.info.URL, "size", o.info.Size)
		}
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, o := range orphans {
		g.Go(func() error {
			err := r.store.Delete(gctx, o.info.URL, o.class)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && !errors.Is(err, simplemusic.ErrObjectAbsent) {
				result.Failed++
				result.FailedURLs = append(result.FailedURLs, o.info.URL)
				r.logger.Error("failed to delete orphan", "url", o.info.URL, "error", err)
				return nil
			}
			result.Deleted++
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("reconciliation finished",
		"found", result.TotalFound, "referenced", result.Referenced, "young", result.Young,
		"orphaned", result.Orphaned, "deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}

func (r *Reconciler) listAll(ctx context.Context, opts Options) ([]candidate, error) {
	var mu sync.Mutex
	var all []candidate

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for folder, class := range opts.Folders {
		g.Go(func() error {
			infos, err := r.store.List(gctx, folder)
			if err != nil {
				return fmt.Errorf("failed to list folder %s: %w", folder, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, info := range infos {
				all = append(all, candidate{info: info, class: class})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}
