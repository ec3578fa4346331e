package modules

import (
	"context"
	"testing"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(statestore.NewMemoryStore())
}

func TestUploadAndFetch(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	meta, err := reg.Upload(ctx, "lobby", "1.0.0", "lobby module", "lobby.wasm", "alice", []byte("hello world"))
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ContentHash)

	found, err := reg.FindByNameAndVersion(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, meta.ContentHash, found.ContentHash)

	data, err := reg.Open(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)
}

func TestUploadSameBytesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	_, err := reg.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("hello world"))
	require.NoError(t, err)

	meta2, err := reg.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", meta2.Version)
}

func TestUploadDifferentBytesIsConflict(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	_, err := reg.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("hello world"))
	require.NoError(t, err)

	_, err = reg.Upload(ctx, "lobby", "1.0.0", "", "lobby.wasm", "alice", []byte("different bytes"))
	require.Error(t, err)
	se := apierrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, apierrors.CodeConflict, se.Code)
}

func TestFindByNameReturnsAllVersions(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	_, err := reg.Upload(ctx, "lobby", "1.0.0", "", "a", "alice", []byte("a"))
	require.NoError(t, err)
	_, err = reg.Upload(ctx, "lobby", "2.0.0", "", "b", "alice", []byte("b"))
	require.NoError(t, err)
	_, err = reg.Upload(ctx, "arena", "1.0.0", "", "c", "alice", []byte("c"))
	require.NoError(t, err)

	versions, err := reg.FindByName(ctx, "lobby")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	ok, err := reg.Exists(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.Upload(ctx, "lobby", "1.0.0", "", "a", "alice", []byte("a"))
	require.NoError(t, err)

	ok, err = reg.Exists(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, reg.Delete(ctx, "lobby", "1.0.0"))
	ok, err = reg.Exists(ctx, "lobby", "1.0.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyHash(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	meta, err := reg.Upload(ctx, "lobby", "1.0.0", "", "a", "alice", []byte("hello"))
	require.NoError(t, err)

	assert.True(t, VerifyHash(meta, []byte("hello")))
	assert.False(t, VerifyHash(meta, []byte("goodbye")))
}
