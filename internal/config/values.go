package config

import (
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// LoadValuesFile reads sensitive values from a YAML file. Three shapes
// are accepted:
//
//	# a list
//	- hunter22
//	- s3cr3t-token
//
//	# a "values" key holding a list
//	values:
//	  - hunter22
//
//	# a map of variable names to values; only the values are used
//	DatabasePassword: hunter22
//	ApiToken: s3cr3t-token
//
// Map values come back ordered by key.
func LoadValuesFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading values file %s", path)
	}
	values, err := parseValues(b)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing values file %s", path)
	}
	return values, nil
}

func parseValues(b []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.SequenceNode:
		var values []string
		if err := root.Decode(&values); err != nil {
			return nil, err
		}
		return values, nil

	case yaml.MappingNode:
		var wrapped struct {
			Values []string `yaml:"values"`
		}
		if len(root.Content) == 2 && root.Content[0].Value == "values" && root.Content[1].Kind == yaml.SequenceNode {
			if err := root.Decode(&wrapped); err != nil {
				return nil, err
			}
			return wrapped.Values, nil
		}

		var vars map[string]string
		if err := root.Decode(&vars); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, 0, len(keys))
		for _, k := range keys {
			values = append(values, vars[k])
		}
		return values, nil

	default:
		return nil, errors.Newf("expected a list or a map at line %d", root.Line)
	}
}
