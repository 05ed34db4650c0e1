package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickershelf/internal/auth"
)

const testPath = "artifacts/test-app/public/data/allStickers"

// setupTestStore creates a temporary BadgerDB instance for testing.
// It returns the store instance and a cleanup function.
func setupTestStore(t *testing.T) (*BadgerStore, func()) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)
	testLogger.SetLevel(logrus.ErrorLevel)

	store, err := NewBadgerStore(t.TempDir(), testLogger)
	require.NoError(t, err, "Failed to create test BadgerDB store")

	cleanup := func() {
		err := store.Close()
		assert.NoError(t, err, "Failed to close test BadgerDB store")
	}
	return store, cleanup
}

// writerContext returns a context carrying a signed-in identity.
func writerContext(t *testing.T) context.Context {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	id, err := auth.NewAnonymousProvider(logger).SignIn(context.Background())
	require.NoError(t, err)
	return auth.WithIdentity(context.Background(), id)
}

func nextEvent(t *testing.T, feed <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-feed:
		require.True(t, ok, "feed closed unexpectedly")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return Event{}
	}
}

func ids(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestBadgerStore_AppendListDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := writerContext(t)

	id1, err := store.Append(ctx, testPath, []byte(`{"title":"one"}`))
	require.NoError(t, err)
	id2, err := store.Append(ctx, testPath, []byte(`{"title":"two"}`))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// A sibling collection must not leak into the listing.
	_, err = store.Append(ctx, testPath+"Other", []byte(`{}`))
	require.NoError(t, err)

	docs, err := store.List(ctx, testPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{id1, id2}, ids(docs))

	require.NoError(t, store.Delete(ctx, testPath, id1))
	docs, err = store.List(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, []string{id2}, ids(docs))
	assert.JSONEq(t, `{"title":"two"}`, string(docs[0].Data))
}

func TestBadgerStore_DeleteMissing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.Delete(writerContext(t), testPath, "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_WritesNeedIdentity(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.Append(context.Background(), testPath, []byte(`{}`))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	id, err := store.Append(writerContext(t), testPath, []byte(`{}`))
	require.NoError(t, err)
	err = store.Delete(context.Background(), testPath, id)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestBadgerStore_SubscribePushesFullState(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := writerContext(t)
	existing, err := store.Append(ctx, testPath, []byte(`{"title":"existing"}`))
	require.NoError(t, err)

	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := store.Subscribe(subCtx, testPath)
	require.NoError(t, err)

	initial := nextEvent(t, feed)
	require.NoError(t, initial.Err)
	assert.Equal(t, []string{existing}, ids(initial.Docs))

	added, err := store.Append(ctx, testPath, []byte(`{"title":"added"}`))
	require.NoError(t, err)

	// Pushes may coalesce, but the feed settles on the full state.
	waitForDocs(t, feed, func(docs []Document) bool {
		return assert.ObjectsAreEqual(map[string]bool{existing: true, added: true}, idSet(docs))
	})

	require.NoError(t, store.Delete(ctx, testPath, existing))
	waitForDocs(t, feed, func(docs []Document) bool {
		return len(docs) == 1 && docs[0].ID == added
	})

	cancel()
	for range feed {
	}
}

// waitForDocs reads the feed until an event satisfies match.
func waitForDocs(t *testing.T, feed <-chan Event, match func([]Document) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-feed:
			require.True(t, ok, "feed closed unexpectedly")
			require.NoError(t, ev.Err)
			if match(ev.Docs) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching push")
		}
	}
}

func idSet(docs []Document) map[string]bool {
	out := map[string]bool{}
	for _, d := range docs {
		out[d.ID] = true
	}
	return out
}

func TestBadgerStore_SubscribeIgnoresOtherCollections(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := writerContext(t)
	subCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed, err := store.Subscribe(subCtx, testPath)
	require.NoError(t, err)
	assert.Empty(t, nextEvent(t, feed).Docs)

	_, err = store.Append(ctx, "artifacts/other/public/data/allStickers", []byte(`{}`))
	require.NoError(t, err)

	select {
	case ev := <-feed:
		t.Fatalf("unexpected push %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBadgerStore_SubscribeInvalidPath(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.Subscribe(context.Background(), "")
	assert.Error(t, err)
}

func TestCollectionPath(t *testing.T) {
	assert.Equal(t, "artifacts/linegarden/public/data/allStickers", CollectionPath("linegarden", "allStickers"))
}

func TestBadgerStore_RunGC(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	// A non-positive interval returns at once instead of panicking.
	for _, interval := range []time.Duration{0, -time.Second} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			store.RunGC(context.Background(), interval)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("RunGC(%v) did not return", interval)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.RunGC(ctx, 10*time.Millisecond)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunGC did not stop on cancel")
	}
}
