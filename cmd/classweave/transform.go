package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deepnoodle-ai/classweave"
)

var transformCmd = &cobra.Command{
	Use:     "transform <file.class>",
	Short:   "Transform a single class file",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(viper.GetViper())
		if err != nil {
			return err
		}
		source, closeSources, err := openClassPath(viper.GetStringSlice("cp"))
		if err != nil {
			return err
		}
		defer closeSources()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var report classweave.Report
		opts := append(transformOptions(viper.GetViper(), source), classweave.WithReport(&report))
		out, err := classweave.Transform(data, req, opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		path := viper.GetString("output")
		if path == "" {
			path = args[0]
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d call sites inlined, %d stages, %d bytes\n",
			green("wrote"), path, len(report.Sites), len(report.Stages), len(out))
		return nil
	},
}

func init() {
	addWeaveFlags(transformCmd.Flags())
}
