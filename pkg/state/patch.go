package state

import (
	"fmt"

	"github.com/repeale/fp-go/option"
)

// Patch is a validated partial State sent by the GM.
type Patch struct {
	document map[string]any

	// None when the patch does not mention the content path at all,
	// Some(nil) when it explicitly clears it.
	MapContentPath opt.Option[*string]

	// Top-level keys that are not part of State and were dropped.
	Ignored []string
}

// Document returns a copy of the validated patch fields.
func (p Patch) Document() map[string]any {
	return CloneDocument(p.document)
}

func (p Patch) IsEmpty() bool {
	return len(p.document) == 0
}

// ParsePatch checks the shape of an update payload. Known fields must carry
// the right types; filter parameter values may be anything.
func ParsePatch(raw any) (Patch, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return Patch{}, fmt.Errorf("update must be an object")
	}

	patch := Patch{
		document:       make(map[string]any, len(fields)),
		MapContentPath: opt.None[*string](),
	}

	for key, value := range fields {
		switch key {
		case KEY_MAP_CONTENT_PATH:
			path, err := parseContentPath(value)
			if err != nil {
				return Patch{}, err
			}
			patch.MapContentPath = opt.Some[*string](path)
			patch.document[key] = value
		case KEY_DISPLAY_TYPE:
			// Whatever was sent, the display type is always an image
			patch.document[key] = DISPLAY_TYPE_IMAGE
		case KEY_CURRENT_FILTER:
			if value == nil {
				patch.Ignored = append(patch.Ignored, key)
				continue
			}
			if _, ok := value.(string); !ok {
				return Patch{}, fmt.Errorf("%s must be a string", key)
			}
			patch.document[key] = value
		case KEY_VIEW_STATE:
			view, ok := value.(map[string]any)
			if !ok {
				return Patch{}, fmt.Errorf("%s must be an object", key)
			}

			normalized := make(map[string]any, len(view))
			for field, raw := range view {
				switch field {
				case KEY_CENTER_X, KEY_CENTER_Y, KEY_SCALE:
				default:
					continue
				}

				number, ok := toFloat(raw)
				if !ok {
					return Patch{}, fmt.Errorf("%s.%s must be a finite number", key, field)
				}
				if field == KEY_SCALE && number <= 0 {
					return Patch{}, fmt.Errorf("%s.%s must be positive", key, field)
				}
				normalized[field] = number
			}
			patch.document[key] = normalized
		case KEY_FILTER_PARAMS:
			params, err := parseFilterParams(value)
			if err != nil {
				return Patch{}, err
			}
			patch.document[key] = params.document()
		default:
			patch.Ignored = append(patch.Ignored, key)
		}
	}

	return patch, nil
}
