package maps

import (
	"context"
	"errors"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/assets"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resolver turns a reference to uploaded content into the full state a
// session should adopt when it switches to that content.
type Resolver struct {
	content ContentStore
	configs ConfigStore
	repo    *state.Repository
}

func NewResolver(content ContentStore, configs ConfigStore, repo *state.Repository) *Resolver {
	return &Resolver{
		content: content,
		configs: configs,
		repo:    repo,
	}
}

func (r *Resolver) Logger() zerolog.Logger {
	return log.With().Str("service", "resolver").Logger()
}

// Valid reports whether name refers to existing content of an allowed type.
func (r *Resolver) Valid(name string) bool {
	return r.content.HasAllowedExtension(name) && r.content.Exists(name)
}

// Resolve returns the saved state for name with every filter default
// backfilled, or a fresh default anchored at name when nothing was saved.
// It is None when name is not valid content.
func (r *Resolver) Resolve(ctx context.Context, name string) opt.Option[state.State] {
	logger := r.Logger().With().Str("map", name).Logger()

	config, err := r.configs.Read(ctx, name)
	if err != nil && !errors.Is(err, assets.Missing) {
		logger.Error().Err(err).Msg("failed to read map config")
	}

	if err == nil && config != nil {
		resolved := config.Clone()
		resolved.FilterParams = r.repo.Backfill(resolved.FilterParams)
		resolved.DisplayType = state.DISPLAY_TYPE_IMAGE
		return opt.Some(resolved)
	}

	if !r.Valid(name) {
		logger.Warn().Msg("map file not found or not allowed")
		return opt.None[state.State]()
	}

	logger.Debug().Msg("generating default state for map")
	return opt.Some(r.repo.DefaultStateFor(ContentPath(name)))
}

// ResolvePath is Resolve for a full content reference such as
// "maps/dungeon.png". The reference must point at valid content even when a
// config for it exists.
func (r *Resolver) ResolvePath(ctx context.Context, reference string) opt.Option[state.State] {
	name := BaseName(reference)
	if !r.Valid(name) {
		logger := r.Logger()
		logger.Warn().Str("reference", reference).Msg("new content path invalid")
		return opt.None[state.State]()
	}

	return r.Resolve(ctx, name)
}
