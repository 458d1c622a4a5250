package state

import (
	"github.com/FrunkQ/dynamic-map-renderer/pkg/filters"
)

const DEFAULT_FILTER = "none"

// Catalog provides the filters known to the process, in a stable order.
type Catalog interface {
	List() []filters.Descriptor
}

// Repository derives default session state from the filter catalog and
// applies GM patches.
type Repository struct {
	catalog Catalog
}

func NewRepository(catalog Catalog) *Repository {
	return &Repository{catalog: catalog}
}

// DefaultFilterParams collects the declared default of every non-reserved
// parameter of every known filter.
func (r *Repository) DefaultFilterParams() FilterParams {
	out := make(FilterParams)
	for _, descriptor := range r.catalog.List() {
		params := make(Params, len(descriptor.Params))
		for name, param := range descriptor.Params {
			if filters.IsReserved(name) {
				continue
			}

			value, ok := param.Default()
			if !ok {
				continue
			}
			params[name] = cloneValue(value)
		}
		out[descriptor.ID] = params
	}
	return out
}

// DefaultFilter is "none" when such a filter exists, otherwise the first
// filter of the catalog, otherwise empty.
func (r *Repository) DefaultFilter() string {
	descriptors := r.catalog.List()
	for _, descriptor := range descriptors {
		if descriptor.ID == DEFAULT_FILTER {
			return DEFAULT_FILTER
		}
	}

	if len(descriptors) > 0 {
		return descriptors[0].ID
	}

	return ""
}

func (r *Repository) DefaultState() State {
	return State{
		MapContentPath: nil,
		DisplayType:    DISPLAY_TYPE_IMAGE,
		CurrentFilter:  r.DefaultFilter(),
		ViewState:      DefaultViewState(),
		FilterParams:   r.DefaultFilterParams(),
	}
}

// DefaultStateFor is the default state anchored at a content path.
func (r *Repository) DefaultStateFor(path string) State {
	out := r.DefaultState()
	out.MapContentPath = &path
	return out
}

// Backfill returns params extended with every filter and parameter default
// it lacks. Existing values win.
func (r *Repository) Backfill(params FilterParams) FilterParams {
	out := params.Clone()
	if out == nil {
		out = make(FilterParams)
	}

	for id, defaults := range r.DefaultFilterParams() {
		existing, ok := out[id]
		if !ok || existing == nil {
			out[id] = defaults
			continue
		}

		for name, value := range defaults {
			if _, ok := existing[name]; !ok {
				existing[name] = value
			}
		}
	}

	return out
}

// Apply deep merges patch on top of current and forces the display type.
func (r *Repository) Apply(current State, patch Patch) (State, error) {
	merged := MergeDeep(current.Document(), patch.Document())

	next, err := FromDocument(merged)
	if err != nil {
		return State{}, err
	}

	next.DisplayType = DISPLAY_TYPE_IMAGE
	return next, nil
}
