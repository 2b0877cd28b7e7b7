package profile

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	encerr "github.com/syborg2290/video-encoder/internal/modules/encodermodule/errors"
	"github.com/syborg2290/video-encoder/internal/modules/encodermodule/types"
)

// Registry resolves profile ids to plan builders. It is read-only once
// built and safe for concurrent use.
type Registry struct {
	builders map[string]PlanBuilder
	ids      []string
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Init builds the process-wide registry with argument builders logging to
// logger. Only the first call, or the first Default, takes effect.
func Init(logger hclog.Logger) *Registry {
	defaultOnce.Do(func() {
		if logger == nil {
			defaultRegistry = NewRegistry(X265, VP9, X264)
			return
		}
		defaultRegistry = NewRegistry(
			X265.WithLogger(logger),
			VP9.WithLogger(logger),
			X264.WithLogger(logger),
		)
	})
	return defaultRegistry
}

// Default returns the process-wide registry holding the reference profiles.
func Default() *Registry {
	return Init(nil)
}

// NewRegistry builds an isolated registry. A later builder with the same id
// replaces an earlier one.
func NewRegistry(builders ...PlanBuilder) *Registry {
	r := &Registry{builders: make(map[string]PlanBuilder, len(builders))}
	for _, b := range builders {
		r.builders[b.ID()] = b
	}
	for id := range r.builders {
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)
	return r
}

// Resolve returns the builder registered under profileID.
func (r *Registry) Resolve(profileID string) (PlanBuilder, error) {
	b, ok := r.builders[profileID]
	if !ok {
		return nil, encerr.ProfileError("resolve_profile", profileID)
	}
	return b, nil
}

// IDs lists registered profile ids in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Profiles describes every registered profile.
func (r *Registry) Profiles() []types.ProfileInfo {
	infos := make([]types.ProfileInfo, 0, len(r.ids))
	for _, id := range r.ids {
		b := r.builders[id]
		infos = append(infos, types.ProfileInfo{
			ID:            id,
			Encoder:       b.Encoder(),
			RichReporting: b.RichReporting(),
		})
	}
	return infos
}
