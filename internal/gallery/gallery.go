// Package gallery keeps a live, ordered copy of the remote item collection and
// owns the write path into it.
package gallery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stickershelf/internal/auth"
	"stickershelf/internal/domain"
	"stickershelf/internal/storage"
)

// Signer supplies the identity the store checks on writes.
type Signer interface {
	SignIn(ctx context.Context) (auth.Identity, error)
}

// Unsubscribe stops the live feed. Calling it more than once is a no-op, and
// it may be called from OnUpdate or OnError.
type Unsubscribe func()

// Options configures a Gallery. Path is required.
type Options struct {
	Path   string
	Signer Signer
	// Now stamps CreatedAt; defaults to time.Now.
	Now func() time.Time
	// OnUpdate receives every published snapshot. It runs on the feed
	// goroutine and must not block for long.
	OnUpdate func([]domain.CatalogItem)
	// OnError receives every *SubscriptionError raised while subscribed.
	OnError func(error)
}

// Gallery is the live collection sync.
type Gallery struct {
	store storage.Store
	opts  Options
	log   logrus.FieldLogger

	snapshot atomic.Pointer[[]domain.CatalogItem]

	mu         sync.Mutex
	subscribed bool
}

// New creates a Gallery over store with an empty snapshot.
func New(store storage.Store, opts Options, logger logrus.FieldLogger) *Gallery {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g := &Gallery{
		store: store,
		opts:  opts,
		log:   logger.WithFields(logrus.Fields{"component": "gallery", "path": opts.Path}),
	}
	empty := []domain.CatalogItem{}
	g.snapshot.Store(&empty)
	return g
}

// Snapshot returns a copy of the items from the last push, newest first.
func (g *Gallery) Snapshot() []domain.CatalogItem {
	cur := *g.snapshot.Load()
	out := make([]domain.CatalogItem, len(cur))
	copy(out, cur)
	return out
}

// Item looks up one item of the current snapshot.
func (g *Gallery) Item(id string) (domain.CatalogItem, bool) {
	for _, item := range *g.snapshot.Load() {
		if item.ID == id {
			return item, true
		}
	}
	return domain.CatalogItem{}, false
}

// Subscribe opens the live feed. Each push replaces the snapshot wholesale.
// Feed failures go to Options.OnError as *SubscriptionError and leave the
// snapshot untouched.
func (g *Gallery) Subscribe(ctx context.Context) (Unsubscribe, error) {
	g.mu.Lock()
	if g.subscribed {
		g.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	g.subscribed = true
	g.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	feed, err := g.store.Subscribe(subCtx, g.opts.Path)
	if err != nil {
		cancel()
		g.release()
		g.log.WithError(err).Error("Failed to open subscription")
		return nil, &SubscriptionError{Path: g.opts.Path, Err: err}
	}
	g.log.Info("Subscribed to collection")

	// inFeed is set while OnUpdate or OnError runs on the feed goroutine.
	var inFeed atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer g.release()
		for ev := range feed {
			if subCtx.Err() != nil {
				continue
			}
			inFeed.Store(true)
			if ev.Err != nil {
				g.fail(ev.Err)
			} else {
				g.apply(ev.Docs)
			}
			inFeed.Store(false)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			// From inside a callback the feed goroutine is the caller; it
			// exits once the callback returns.
			if !inFeed.Load() {
				<-done
			}
			g.log.Info("Unsubscribed from collection")
		})
	}, nil
}

// Run keeps the gallery subscribed until ctx is done.
func (g *Gallery) Run(ctx context.Context) error {
	unsubscribe, err := g.Subscribe(ctx)
	if err != nil {
		return err
	}
	<-ctx.Done()
	unsubscribe()
	return nil
}

func (g *Gallery) release() {
	g.mu.Lock()
	g.subscribed = false
	g.mu.Unlock()
}

func (g *Gallery) apply(docs []storage.Document) {
	items := make([]domain.CatalogItem, 0, len(docs))
	for _, doc := range docs {
		item, err := domain.DecodeItem(doc.ID, doc.Data)
		if err != nil {
			g.log.WithError(err).WithField("id", doc.ID).Warn("Skipping undecodable document")
			continue
		}
		items = append(items, item)
	}
	sortNewestFirst(items)

	g.snapshot.Store(&items)
	g.log.WithField("item_count", len(items)).Debug("Snapshot replaced")

	if g.opts.OnUpdate != nil {
		out := make([]domain.CatalogItem, len(items))
		copy(out, items)
		g.opts.OnUpdate(out)
	}
}

func (g *Gallery) fail(err error) {
	subErr := &SubscriptionError{Path: g.opts.Path, Err: err}
	g.log.WithError(err).Error("Subscription error, keeping last snapshot")
	if g.opts.OnError != nil {
		g.opts.OnError(subErr)
	}
}

// sortNewestFirst orders by CreatedAt descending; ties keep store order.
func sortNewestFirst(items []domain.CatalogItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})
}

// Filter returns the items of category in snapshot order, or snapshot itself
// for domain.FilterAll. Items without a category count as the default one.
func Filter(snapshot []domain.CatalogItem, category string) []domain.CatalogItem {
	if category == domain.FilterAll {
		return snapshot
	}
	out := []domain.CatalogItem{}
	for _, item := range snapshot {
		if string(item.Category.Effective()) == category {
			out = append(out, item)
		}
	}
	return out
}

// Create validates draft and appends it. CreatedAt is taken when the call
// starts. The snapshot only changes once the store pushes the new state.
func (g *Gallery) Create(ctx context.Context, draft domain.Draft) (string, error) {
	createdAt := g.opts.Now().UnixMilli()

	if err := draft.Validate(); err != nil {
		return "", &WriteError{Op: "create", Err: err}
	}
	data, err := domain.EncodeDraft(draft, createdAt)
	if err != nil {
		return "", &WriteError{Op: "create", Err: err}
	}
	ctx, err = g.withIdentity(ctx)
	if err != nil {
		return "", &WriteError{Op: "create", Err: err}
	}

	id, err := g.store.Append(ctx, g.opts.Path, data)
	if err != nil {
		g.log.WithError(err).Error("Failed to create item")
		return "", &WriteError{Op: "create", Err: err}
	}
	g.log.WithFields(logrus.Fields{"id": id, "title": draft.Title}).Info("Item created")
	return id, nil
}

// Remove deletes the item with id. There is no optimistic removal: the item
// stays in the snapshot until the next push.
func (g *Gallery) Remove(ctx context.Context, id string) error {
	ctx, err := g.withIdentity(ctx)
	if err != nil {
		return &WriteError{Op: "remove", ID: id, Err: err}
	}
	if err := g.store.Delete(ctx, g.opts.Path, id); err != nil {
		g.log.WithError(err).WithField("id", id).Error("Failed to remove item")
		return &WriteError{Op: "remove", ID: id, Err: err}
	}
	g.log.WithField("id", id).Info("Item removed")
	return nil
}

func (g *Gallery) withIdentity(ctx context.Context) (context.Context, error) {
	if g.opts.Signer == nil {
		return ctx, nil
	}
	if _, ok := auth.FromContext(ctx); ok {
		return ctx, nil
	}
	id, err := g.opts.Signer.SignIn(ctx)
	if err != nil {
		return ctx, err
	}
	return auth.WithIdentity(ctx, id), nil
}
