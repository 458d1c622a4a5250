package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/assets"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/filters"
	"github.com/FrunkQ/dynamic-map-renderer/pkg/state"
)

const (
	CONFIG_SUFFIX = "_config.json"

	// Written by old versions of the GM page.
	LEGACY_IMAGE_PATH = "map_image_path"
)

// ConfigStore persists the saved state of each map. Read returns
// assets.Missing when a map has no usable config.
type ConfigStore interface {
	Read(ctx context.Context, name string) (*state.State, error)
	Write(ctx context.Context, name string, config state.State) error
}

func ConfigKey(name string) string {
	return SecureFilename(name) + CONFIG_SUFFIX
}

func stripReserved(document map[string]any) {
	params, ok := document[state.KEY_FILTER_PARAMS].(map[string]any)
	if !ok {
		return
	}

	for _, raw := range params {
		filterParams, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, reserved := range filters.RESERVED_PARAMS {
			delete(filterParams, reserved)
		}
	}
}

// DecodeConfig parses a stored config, migrating legacy keys. A config with
// no content reference is treated as missing.
func DecodeConfig(data []byte) (*state.State, error) {
	var document map[string]any
	err := json.Unmarshal(data, &document)
	if err != nil {
		return nil, err
	}

	if legacy, ok := document[LEGACY_IMAGE_PATH]; ok {
		if _, ok := document[state.KEY_MAP_CONTENT_PATH]; !ok {
			document[state.KEY_MAP_CONTENT_PATH] = legacy
		}
		delete(document, LEGACY_IMAGE_PATH)
	}

	if _, ok := document[state.KEY_MAP_CONTENT_PATH]; !ok {
		return nil, assets.Missing
	}

	stripReserved(document)

	config, err := state.FromDocument(document)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// EncodeConfig serializes config for name. The content reference is always
// rewritten to point at name.
func EncodeConfig(name string, config state.State) ([]byte, error) {
	document := config.Document()
	stripReserved(document)
	document[state.KEY_MAP_CONTENT_PATH] = ContentPath(name)
	document[state.KEY_DISPLAY_TYPE] = state.DISPLAY_TYPE_IMAGE

	return json.MarshalIndent(document, "", "  ")
}

// BlobConfigs keeps configs as JSON documents in an assets.Store, one key
// per map.
type BlobConfigs struct {
	store assets.Store
}

func NewBlobConfigs(store assets.Store) *BlobConfigs {
	return &BlobConfigs{store: store}
}

func (b *BlobConfigs) Read(ctx context.Context, name string) (*state.State, error) {
	if SecureFilename(name) == "" {
		return nil, assets.Missing
	}

	data, err := b.store.Get(ctx, ConfigKey(name))
	if err != nil {
		return nil, err
	}

	config, err := DecodeConfig(data)
	if err != nil && !errors.Is(err, assets.Missing) {
		return nil, fmt.Errorf("invalid config for %s: %w", name, err)
	}

	return config, err
}

func (b *BlobConfigs) Write(ctx context.Context, name string, config state.State) error {
	if SecureFilename(name) == "" {
		return fmt.Errorf("invalid map name: %s", name)
	}

	data, err := EncodeConfig(name, config)
	if err != nil {
		return err
	}

	return b.store.Set(ctx, ConfigKey(name), data)
}

var _ ConfigStore = (*BlobConfigs)(nil)
