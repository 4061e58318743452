package artifacts

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/types"
)

var (
	run1 = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	run2 = uuid.MustParse("22222222-2222-4222-8222-222222222222")
)

func TestKey(t *testing.T) {
	assert.Equal(t, "projects/p1/runs/11111111-1111-4111-8111-111111111111/document", Key("p1", run1, types.ArtifactDocument))
	assert.Equal(t, "projects/a%2Fb/runs/11111111-1111-4111-8111-111111111111/video", Key("a/b", run1, types.ArtifactVideo))
	assert.NotEqual(t, Key("p1", run1, types.ArtifactDocument), Key("p1", run2, types.ArtifactDocument))
}

func TestParseLocator(t *testing.T) {
	loc, err := ParseLocator("s3://bucket/projects/p1/document")
	require.NoError(t, err)
	assert.Equal(t, Locator{Scheme: "s3", Bucket: "bucket", Key: "projects/p1/document"}, loc)
	assert.Equal(t, "s3://bucket/projects/p1/document", loc.String())

	for _, bad := range []string{"", "bucket/key", "s3://bucket", "s3:///key", "://b/k"} {
		_, err := ParseLocator(bad)
		assert.ErrorIs(t, err, ErrInvalidLocator, bad)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data := []byte("# Design doc")
	art, err := store.Put(ctx, "p1", run1, types.ArtifactDocument, data, "text/markdown")
	require.NoError(t, err)

	assert.Equal(t, types.ArtifactDocument, art.Kind)
	assert.Equal(t, "mem://local/"+Key("p1", run1, types.ArtifactDocument), art.Locator)
	assert.Equal(t, int64(len(data)), art.Size)
	assert.Equal(t, types.Checksum(data), art.Checksum)
	assert.Equal(t, "text/markdown", art.ContentType)

	// caller mutations must not leak into the store
	data[0] = 'X'
	got, err := store.Get(ctx, art.Locator)
	require.NoError(t, err)
	assert.Equal(t, "# Design doc", string(got))
}

func TestMemoryStore_OverwriteKeepsOneObject(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Put(ctx, "p1", run1, types.ArtifactWireframe, []byte("v1"), "text/html")
	require.NoError(t, err)
	second, err := store.Put(ctx, "p1", run1, types.ArtifactWireframe, []byte("v2"), "text/html")
	require.NoError(t, err)

	assert.Equal(t, first.Locator, second.Locator)
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(ctx, second.Locator)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))
}

func TestMemoryStore_RunsOfOneProjectDoNotShareObjects(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Put(ctx, "p1", run1, types.ArtifactDocument, []byte("content of run 1"), "text/markdown")
	require.NoError(t, err)
	second, err := store.Put(ctx, "p1", run2, types.ArtifactDocument, []byte("content of run 2"), "text/markdown")
	require.NoError(t, err)

	assert.NotEqual(t, first.Locator, second.Locator)
	assert.Equal(t, 2, store.Len())

	got, err := store.Get(ctx, first.Locator)
	require.NoError(t, err)
	assert.Equal(t, "content of run 1", string(got))
	assert.Equal(t, first.Checksum, types.Checksum(got))
}

func TestMemoryStore_ConcurrentOverwrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	payloads := []string{"aaaa", "bbbb", "cccc", "dddd"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Put(ctx, "p1", run1, types.ArtifactReport, []byte(payloads[i%len(payloads)]), "application/json")
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, "mem://local/"+Key("p1", run1, types.ArtifactReport))
	require.NoError(t, err)
	assert.Contains(t, payloads, string(got))
}

func TestMemoryStore_Errors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "mem://local/projects/none/document")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "s3://bucket/projects/p1/document")
	assert.ErrorIs(t, err, ErrInvalidLocator)

	_, err = store.Put(ctx, "", run1, types.ArtifactDocument, nil, "")
	var fatal *types.FatalError
	assert.ErrorAs(t, err, &fatal)

	_, err = store.Put(ctx, "p1", uuid.Nil, types.ArtifactDocument, nil, "")
	assert.ErrorAs(t, err, &fatal)

	_, err = store.Put(ctx, "p1", run1, types.ArtifactKind("bogus"), nil, "")
	assert.ErrorAs(t, err, &fatal)
}
