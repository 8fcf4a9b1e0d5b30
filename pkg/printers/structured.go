package printers

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// Format names a machine readable output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Structured writes v to w in the given format.
func Structured(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("printers: unknown output format %q", format)
	}
}
