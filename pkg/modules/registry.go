// Package modules implements the Module Registry (§4.D): a content-addressed
// artifact store keyed by (name, version), with the artifact bytes
// deduplicated across versions by their sha256 content hash.
package modules

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/stormstack/control-plane/pkg/apierrors"
	"github.com/stormstack/control-plane/pkg/statestore"
	"github.com/stormstack/control-plane/pkg/types"
)

const (
	metaPrefix = "module:"
	blobPrefix = "module-blob:"
)

func metaKey(name, version string) string {
	return metaPrefix + name + ":" + version
}

func blobKey(hash string) string {
	return blobPrefix + hash
}

// Registry is the Module Registry component.
type Registry struct {
	store statestore.Store
}

// NewRegistry constructs a Registry against store.
func NewRegistry(store statestore.Store) *Registry {
	return &Registry{store: store}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload stores a module artifact. Re-uploading the same (name, version)
// with identical bytes is a no-op that returns the existing metadata;
// re-uploading with different bytes is rejected as a conflict, since a
// version must be immutable once published.
func (r *Registry) Upload(ctx context.Context, name, version, description, fileName, uploader string, data []byte) (*types.ModuleMetadata, error) {
	if name == "" || version == "" {
		return nil, apierrors.Validation("name/version", "must not be empty")
	}

	hash := contentHash(data)

	existing, err := r.FindByNameAndVersion(ctx, name, version)
	if err == nil {
		if existing.ContentHash == hash {
			return existing, nil // identical re-upload, idempotent
		}
		return nil, apierrors.Conflict("module version already exists with different content")
	} else if se := apierrors.As(err); se == nil || se.Code != apierrors.CodeNotFound {
		return nil, err
	}

	if putErr := r.store.PutIfAbsent(ctx, blobKey(hash), data, 0); putErr != nil && putErr != statestore.ErrAlreadyExists {
		return nil, apierrors.StoreUnavailable(putErr)
	}

	meta := &types.ModuleMetadata{
		Name:        name,
		Version:     version,
		Description: description,
		FileName:    fileName,
		FileSize:    int64(len(data)),
		ContentHash: hash,
		Uploader:    uploader,
		UploadedAt:  time.Now(),
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, apierrors.Internal("failed to marshal module metadata", err)
	}
	if err := r.store.PutIfAbsent(ctx, metaKey(name, version), payload, 0); err != nil {
		if err == statestore.ErrAlreadyExists {
			return nil, apierrors.Conflict("module version already exists with different content")
		}
		return nil, apierrors.StoreUnavailable(err)
	}
	return meta, nil
}

// FindByNameAndVersion returns a single module's metadata.
func (r *Registry) FindByNameAndVersion(ctx context.Context, name, version string) (*types.ModuleMetadata, error) {
	raw, err := r.store.Get(ctx, metaKey(name, version))
	if err == statestore.ErrNotFound {
		return nil, apierrors.NotFound("module", name+":"+version)
	}
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	var meta types.ModuleMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, apierrors.Internal("failed to unmarshal module metadata", err)
	}
	return &meta, nil
}

// FindByName returns every version of the named module, sorted by version string.
func (r *Registry) FindByName(ctx context.Context, name string) ([]*types.ModuleMetadata, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.ModuleMetadata, 0)
	for _, m := range all {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindAll returns every module version's metadata.
func (r *Registry) FindAll(ctx context.Context) ([]*types.ModuleMetadata, error) {
	entries, err := r.store.ListByPrefix(ctx, metaPrefix)
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	out := make([]*types.ModuleMetadata, 0, len(entries))
	for _, raw := range entries {
		var meta types.ModuleMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		out = append(out, &meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// Exists reports whether a module version is present, without fetching bytes.
func (r *Registry) Exists(ctx context.Context, name, version string) (bool, error) {
	_, err := r.FindByNameAndVersion(ctx, name, version)
	if err == nil {
		return true, nil
	}
	if se := apierrors.As(err); se != nil && se.Code == apierrors.CodeNotFound {
		return false, nil
	}
	return false, err
}

// Open returns the artifact bytes for a module version.
func (r *Registry) Open(ctx context.Context, name, version string) ([]byte, error) {
	meta, err := r.FindByNameAndVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	data, err := r.store.Get(ctx, blobKey(meta.ContentHash))
	if err == statestore.ErrNotFound {
		return nil, apierrors.Internal("module blob missing for known metadata", nil)
	}
	if err != nil {
		return nil, apierrors.StoreUnavailable(err)
	}
	return data, nil
}

// Delete removes a module version's metadata. The blob itself is left in
// place: it may still be referenced by another version with the same
// content hash, and the store has no reference counting.
func (r *Registry) Delete(ctx context.Context, name, version string) error {
	if err := r.store.Delete(ctx, metaKey(name, version)); err != nil {
		return apierrors.StoreUnavailable(err)
	}
	return nil
}

// VerifyHash recomputes the content hash of data and compares it against
// the stored metadata.
func VerifyHash(meta *types.ModuleMetadata, data []byte) bool {
	return bytes.Equal([]byte(contentHash(data)), []byte(meta.ContentHash))
}
