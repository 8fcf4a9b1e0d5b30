package options

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tableflip.dev/taskpad/pkg/printers"
)

type OutputOptions struct {
	JSON   bool
	Output string
}

func AddOutputArg(cmd *cobra.Command, po *OutputOptions) {
	cmd.Flags().BoolVar(&po.JSON, "json", false,
		"Output as JSON.")
	cmd.Flags().StringVarP(&po.Output, "output", "o", "",
		"Output format, one of json or yaml.")
}

// Format reports the structured format requested, or "" for pretty output.
func (o *OutputOptions) Format() printers.Format {
	if o.JSON {
		return printers.FormatJSON
	}
	return printers.Format(o.Output)
}

func (o *OutputOptions) Structured() bool {
	return o.Format() != ""
}

func (o *OutputOptions) Validate() error {
	switch o.Format() {
	case "", printers.FormatJSON, printers.FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q", o.Output)
}

// Print writes v in the requested structured format.
func (o *OutputOptions) Print(v any) error {
	return printers.Structured(color.Output, o.Format(), v)
}

func (o *OutputOptions) HandleError(err error) error {
	if o.Structured() && err != nil {
		if perr := o.Print(map[string]string{"error": err.Error()}); perr != nil {
			return perr
		}
		return nil
	}
	return err
}
