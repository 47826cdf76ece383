package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	errs "github.com/matzehuels/optisource/pkg/errors"
)

// FromMap decodes plugin-style options into a Config with defaults applied.
//
// Endpoints may be given as a list of {nodeName, endpoint, schema} objects
// or as an object mapping node names to endpoint paths. The object form is
// ordered by node name.
func FromMap(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       endpointsHook,
		WeaklyTypedInput: true,
		Result:           &cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInternal, err, "create decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "decode options")
	}
	if _, ok := raw["request_retries"]; ok {
		cfg.retriesSet = true
	}
	return cfg.WithDefaults(), nil
}

// Load reads a configuration file. The format follows the extension:
// .toml, .yaml/.yml, or .json/.jsonc (comments and trailing commas allowed).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "read %s", path)
	}
	raw, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return Config{}, errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	return FromMap(raw)
}

// Parse decodes config file contents in the format named by ext.
func Parse(ext string, data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case "json", "jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return raw, nil
}

var endpointsType = reflect.TypeOf([]Endpoint(nil))

// endpointsHook converts the {nodeName: endpoint} object form into a list.
// Values may be a bare path or an object with endpoint and schema keys.
func endpointsHook(from, to reflect.Type, data any) (any, error) {
	if to != endpointsType || from.Kind() != reflect.Map {
		return data, nil
	}

	v := reflect.ValueOf(data)
	names := make([]string, 0, v.Len())
	values := make(map[string]any, v.Len())
	for _, k := range v.MapKeys() {
		name := fmt.Sprint(k.Interface())
		names = append(names, name)
		values[name] = v.MapIndex(k).Interface()
	}
	sort.Strings(names)

	list := make([]any, 0, len(names))
	for _, name := range names {
		switch val := values[name].(type) {
		case string:
			list = append(list, map[string]any{"nodeName": name, "endpoint": val})
		case map[string]any:
			entry := map[string]any{"nodeName": name}
			for k, x := range val {
				entry[k] = x
			}
			list = append(list, entry)
		default:
			return nil, fmt.Errorf("endpoint %q: expected a path or an object, got %T", name, val)
		}
	}
	return list, nil
}
