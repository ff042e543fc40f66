package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/coachverse/recall/pkg/event"
)

// profilesKey is the top-level key holding profiles in a scene file.
const profilesKey = "scenes"

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return event.Type(fl.Field().String()).Known()
	})
}

// Validate checks a single profile.
func Validate(p Profile) error {
	return validate.Struct(p)
}

// LoadFile reads profiles from a YAML or JSON file of the form
//
//	scenes:
//	  kitchen:
//	    weights: {recency: 0.4, emotional: 0.2, conflict: 0.2, comedy: 0.6}
//	    priority_categories: [kitchen_argument]
//	    max_memories: 8
//
// Profile ids default to their map key.
func LoadFile(path string) (map[string]Profile, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported scene file format: %s", filepath.Ext(path))
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("scene file not found: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load scene file: %w", err)
	}

	var raw map[string]Profile
	if err := k.UnmarshalWithConf(profilesKey, &raw, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to decode scene profiles: %w", err)
	}

	profiles := make(map[string]Profile, len(raw))
	for id, p := range raw {
		if p.ID == "" {
			p.ID = id
		}
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("scene %s: %w", id, err)
		}
		profiles[id] = p.normalized()
	}
	return profiles, nil
}
