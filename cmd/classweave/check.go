package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	parser "github.com/wreulicke/classfile-parser"

	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/frames"
)

var checkCmd = &cobra.Command{
	Use:     "check <file.class>...",
	Short:   "Verify that class files decode cleanly",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		for _, path := range args {
			var res checkResult
			data, err := os.ReadFile(path)
			if err == nil {
				res, err = checkClass(data, parseOptions(viper.GetViper())...)
			}
			if err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", red("FAIL"), path, describeError(err))
				continue
			}
			if res.Skipped != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", green("ok"), path, yellow("cross-check skipped: "+res.Skipped))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("ok"), path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d classes failed", failed, len(args))
		}
		return nil
	},
}

// checkResult describes a class that passed the check.
type checkResult struct {
	// Skipped is set when the reference parser could not read the class
	// for a reason the JVM tolerates, such as an attribute it does not
	// know.
	Skipped string
}

// checkClass decodes every method body of the class, checks its labels and
// frame sizes, and confirms an independent parser reads the same class.
func checkClass(data []byte, opts ...classfile.ParseOption) (checkResult, error) {
	c, err := classfile.Parse(data, opts...)
	if err != nil {
		return checkResult{}, err
	}
	for _, m := range c.Methods {
		if !m.HasCode() {
			continue
		}
		body, err := c.Body(m)
		if err != nil {
			return checkResult{}, fmt.Errorf("method %s: %w", m.Key(), err)
		}
		if err := body.Validate(); err != nil {
			return checkResult{}, fmt.Errorf("method %s: %w", m.Key(), err)
		}
		if _, err := frames.Default().Compute(body); err != nil {
			return checkResult{}, fmt.Errorf("method %s: %w", m.Key(), err)
		}
	}

	cf, err := parser.New(bytes.NewReader(data)).Parse()
	if err != nil {
		// Attributes outside the JVM specification are legal.
		if strings.HasPrefix(err.Error(), unknownAttribute) {
			return checkResult{Skipped: err.Error()}, nil
		}
		return checkResult{}, fmt.Errorf("reference parser: %w", err)
	}
	name, err := c.Name()
	if err != nil {
		return checkResult{}, err
	}
	other, err := cf.ThisClassName()
	if err != nil {
		return checkResult{}, fmt.Errorf("reference parser: %w", err)
	}
	if name != other {
		return checkResult{}, fmt.Errorf("class name %s, reference parser read %s", name, other)
	}
	if len(cf.Methods) != len(c.Methods) || len(cf.Fields) != len(c.Fields) {
		return checkResult{}, fmt.Errorf("member counts differ from reference parser")
	}
	return checkResult{}, nil
}

// unknownAttribute prefixes the reference parser's error for attributes
// outside the JVM specification.
const unknownAttribute = "Unknown attributes:"
