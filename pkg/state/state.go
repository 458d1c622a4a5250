package state

import (
	"fmt"
	"math"
)

const DISPLAY_TYPE_IMAGE = "image"

const (
	KEY_MAP_CONTENT_PATH = "map_content_path"
	KEY_DISPLAY_TYPE     = "display_type"
	KEY_CURRENT_FILTER   = "current_filter"
	KEY_VIEW_STATE       = "view_state"
	KEY_FILTER_PARAMS    = "filter_params"

	KEY_CENTER_X = "center_x"
	KEY_CENTER_Y = "center_y"
	KEY_SCALE    = "scale"
)

// Pan/zoom camera. Centers are nominally in [0, 1].
type ViewState struct {
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Scale   float64 `json:"scale"`
}

func DefaultViewState() ViewState {
	return ViewState{
		CenterX: 0.5,
		CenterY: 0.5,
		Scale:   1.0,
	}
}

// Params maps a parameter name to its current value.
type Params map[string]any

// FilterParams maps a filter id to the values of all of its parameters.
type FilterParams map[string]Params

func (f FilterParams) Clone() FilterParams {
	if f == nil {
		return nil
	}

	out := make(FilterParams, len(f))
	for id, params := range f {
		out[id] = Params(CloneDocument(params))
	}
	return out
}

func (f FilterParams) document() map[string]any {
	out := make(map[string]any, len(f))
	for id, params := range f {
		out[id] = CloneDocument(params)
	}
	return out
}

// State is everything a player needs to render a session.
type State struct {
	MapContentPath *string      `json:"map_content_path"`
	DisplayType    string       `json:"display_type"`
	CurrentFilter  string       `json:"current_filter"`
	ViewState      ViewState    `json:"view_state"`
	FilterParams   FilterParams `json:"filter_params"`
}

func (s State) Clone() State {
	out := s
	if s.MapContentPath != nil {
		path := *s.MapContentPath
		out.MapContentPath = &path
	}
	out.FilterParams = s.FilterParams.Clone()
	return out
}

// HasContent reports whether path is the currently selected content.
func (s State) HasContent(path string) bool {
	return s.MapContentPath != nil && *s.MapContentPath == path
}

// Document returns the state as a generic document suitable for MergeDeep.
func (s State) Document() map[string]any {
	var path any
	if s.MapContentPath != nil {
		path = *s.MapContentPath
	}

	return map[string]any{
		KEY_MAP_CONTENT_PATH: path,
		KEY_DISPLAY_TYPE:     s.DisplayType,
		KEY_CURRENT_FILTER:   s.CurrentFilter,
		KEY_VIEW_STATE: map[string]any{
			KEY_CENTER_X: s.ViewState.CenterX,
			KEY_CENTER_Y: s.ViewState.CenterY,
			KEY_SCALE:    s.ViewState.Scale,
		},
		KEY_FILTER_PARAMS: s.FilterParams.document(),
	}
}

func finite(number float64) bool {
	return !math.IsNaN(number) && !math.IsInf(number, 0)
}

// toFloat accepts any finite number. NaN and infinities cannot be sent to
// JSON clients.
func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, finite(typed)
	case float32:
		return float64(typed), finite(float64(typed))
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	}
	return 0, false
}

func parseViewState(value any, base ViewState) (ViewState, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return base, fmt.Errorf("%s must be an object", KEY_VIEW_STATE)
	}

	out := base
	targets := map[string]*float64{
		KEY_CENTER_X: &out.CenterX,
		KEY_CENTER_Y: &out.CenterY,
		KEY_SCALE:    &out.Scale,
	}
	for key, target := range targets {
		raw, ok := fields[key]
		if !ok {
			continue
		}

		number, ok := toFloat(raw)
		if !ok {
			return base, fmt.Errorf("%s.%s must be a finite number", KEY_VIEW_STATE, key)
		}
		*target = number
	}

	if out.Scale <= 0 {
		return base, fmt.Errorf("%s.%s must be positive", KEY_VIEW_STATE, KEY_SCALE)
	}

	return out, nil
}

func parseFilterParams(value any) (FilterParams, error) {
	filters, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", KEY_FILTER_PARAMS)
	}

	out := make(FilterParams, len(filters))
	for id, raw := range filters {
		params, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be an object", KEY_FILTER_PARAMS, id)
		}

		err := checkFinite(params, KEY_FILTER_PARAMS+"."+id)
		if err != nil {
			return nil, err
		}
		out[id] = Params(CloneDocument(params))
	}
	return out, nil
}

// checkFinite walks a generic value and fails on the first NaN or infinity.
func checkFinite(value any, path string) error {
	switch typed := value.(type) {
	case float64:
		if !finite(typed) {
			return fmt.Errorf("%s must be a finite number", path)
		}
	case float32:
		if !finite(float64(typed)) {
			return fmt.Errorf("%s must be a finite number", path)
		}
	case map[string]any:
		for key, child := range typed {
			err := checkFinite(child, path+"."+key)
			if err != nil {
				return err
			}
		}
	case []any:
		for i, child := range typed {
			err := checkFinite(child, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func parseContentPath(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}

	path, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string or null", KEY_MAP_CONTENT_PATH)
	}
	return &path, nil
}

// FromDocument builds a State from a generic document. Unknown keys are
// dropped and display_type is always forced to "image".
func FromDocument(document map[string]any) (State, error) {
	out := State{
		DisplayType:  DISPLAY_TYPE_IMAGE,
		ViewState:    DefaultViewState(),
		FilterParams: make(FilterParams),
	}

	if raw, ok := document[KEY_MAP_CONTENT_PATH]; ok {
		path, err := parseContentPath(raw)
		if err != nil {
			return State{}, err
		}
		out.MapContentPath = path
	}

	if raw, ok := document[KEY_CURRENT_FILTER]; ok && raw != nil {
		filter, ok := raw.(string)
		if !ok {
			return State{}, fmt.Errorf("%s must be a string", KEY_CURRENT_FILTER)
		}
		out.CurrentFilter = filter
	}

	if raw, ok := document[KEY_VIEW_STATE]; ok && raw != nil {
		view, err := parseViewState(raw, DefaultViewState())
		if err != nil {
			return State{}, err
		}
		out.ViewState = view
	}

	if raw, ok := document[KEY_FILTER_PARAMS]; ok && raw != nil {
		params, err := parseFilterParams(raw)
		if err != nil {
			return State{}, err
		}
		out.FilterParams = params
	}

	return out, nil
}
