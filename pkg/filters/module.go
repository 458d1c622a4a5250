package filters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	CONFIG_FILE     = "config.json"
	VERTEX_SHADER   = "vertex.glsl"
	FRAGMENT_SHADER = "fragment.glsl"
)

// Parameters that belong to text and background rendering rather than to the
// shader itself. They never reach session state or the public listing.
var RESERVED_PARAMS = []string{
	"backgroundImageFilename",
	"defaultFontFamily",
	"defaultTextSpeed",
	"fontSize",
}

func IsReserved(name string) bool {
	for _, reserved := range RESERVED_PARAMS {
		if name == reserved {
			return true
		}
	}
	return false
}

// Param is the declared metadata of a single shader parameter. The "value"
// key holds its default.
type Param map[string]any

func (p Param) Default() (any, bool) {
	value, ok := p["value"]
	return value, ok
}

type Descriptor struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Params map[string]Param `json:"params"`

	// Everything else the descriptor declares (description, author...)
	Extra map[string]any `json:"-"`

	VertexShaderPath   string `json:"vertex_shader_path,omitempty"`
	FragmentShaderPath string `json:"fragment_shader_path,omitempty"`
}

// Public returns the descriptor as served to clients: shader paths removed,
// reserved params removed.
func (d Descriptor) Public() map[string]any {
	out := make(map[string]any, len(d.Extra)+3)
	for key, value := range d.Extra {
		out[key] = value
	}

	params := make(map[string]Param, len(d.Params))
	for name, param := range d.Params {
		if IsReserved(name) {
			continue
		}
		params[name] = param
	}

	out["id"] = d.ID
	out["name"] = d.Name
	out["params"] = params
	return out
}

// Catalog is the ordered set of filters discovered on disk.
type Catalog struct {
	root        string
	descriptors []Descriptor
}

func NewCatalog(descriptors ...Descriptor) *Catalog {
	return &Catalog{descriptors: descriptors}
}

func (c *Catalog) Root() string {
	return c.root
}

// List returns the descriptors in discovery order. The first entry is the
// fallback filter for new sessions when there is no "none" filter.
func (c *Catalog) List() []Descriptor {
	return c.descriptors
}

func (c *Catalog) Find(id string) (Descriptor, bool) {
	for _, descriptor := range c.descriptors {
		if descriptor.ID == id {
			return descriptor, true
		}
	}
	return Descriptor{}, false
}

func readDescriptor(root string, id string) (*Descriptor, error) {
	dir := filepath.Join(root, id)
	configPath := filepath.Join(dir, CONFIG_FILE)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for _, key := range []string{"id", "name", "params"} {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("invalid filter config structure: missing %s", key)
		}
	}

	descriptorId, ok := raw["id"].(string)
	if !ok || descriptorId != id {
		return nil, fmt.Errorf("filter ID mismatch for '%s'", id)
	}

	name, _ := raw["name"].(string)

	rawParams, ok := raw["params"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("params for '%s' is not an object", id)
	}

	params := make(map[string]Param, len(rawParams))
	for key, value := range rawParams {
		if IsReserved(key) {
			continue
		}

		param, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("param '%s' of '%s' is not an object", key, id)
		}
		params[key] = Param(param)
	}

	extra := make(map[string]any)
	for key, value := range raw {
		switch key {
		case "id", "name", "params":
			continue
		}
		extra[key] = value
	}

	descriptor := Descriptor{
		ID:     id,
		Name:   name,
		Params: params,
		Extra:  extra,
	}

	if _, err := os.Stat(filepath.Join(dir, VERTEX_SHADER)); err == nil {
		descriptor.VertexShaderPath = filepath.ToSlash(filepath.Join("filters", id, VERTEX_SHADER))
	}
	if _, err := os.Stat(filepath.Join(dir, FRAGMENT_SHADER)); err == nil {
		descriptor.FragmentShaderPath = filepath.ToSlash(filepath.Join("filters", id, FRAGMENT_SHADER))
	}

	return &descriptor, nil
}

// Load scans root for filters/<id>/config.json. Broken filters are logged and
// skipped; a missing root yields an empty catalog.
func Load(root string) (*Catalog, error) {
	catalog := &Catalog{root: root}

	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		log.Warn().Str("dir", root).Msg("filters directory not found")
		return catalog, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if _, err := os.Stat(filepath.Join(root, id, CONFIG_FILE)); err != nil {
			continue
		}

		descriptor, err := readDescriptor(root, id)
		if err != nil {
			log.Error().Err(err).Str("filter", id).Msg("failed to load filter")
			continue
		}

		log.Info().Str("filter", id).Str("name", descriptor.Name).Msg("loaded filter")
		catalog.descriptors = append(catalog.descriptors, *descriptor)
	}

	log.Info().Msgf("loaded %d filters", len(catalog.descriptors))
	return catalog, nil
}
