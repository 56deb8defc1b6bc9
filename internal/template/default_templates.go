package template

import _ "embed"

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// LoadDefault parses the built-in template set shipped with the binary.
// Deployments that need tenant-specific copy can still call Load with an
// operator-supplied YAML document instead.
func LoadDefault() (*Set, error) {
	return Load(defaultTemplatesYAML)
}
