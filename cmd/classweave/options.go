package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/deepnoodle-ai/classweave"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/inline"
	"github.com/deepnoodle-ai/classweave/visit"
)

// addWeaveFlags registers the flags shared by transform and jar.
func addWeaveFlags(fs *pflag.FlagSet) {
	fs.StringSlice("inline", nil, "Method to inline, as owner.name(descriptor); repeatable")
	fs.StringSlice("host", nil, "Only inline into these methods (name or name+descriptor)")
	fs.String("mode", "preserve", "Receiver handling: preserve or same-instance")
	fs.StringSlice("remap", nil, "Rename old=new in inlined code; repeatable")
	fs.StringSlice("rename", nil, "Rename old=new in every method body; repeatable")
	fs.String("merge", "", "Replacement class whose methods are merged over the input")
	fs.StringSlice("merge-method", nil, "Only merge these methods (name+descriptor)")
	fs.StringSlice("cp", nil, "Directories and jars to load target classes from")
	fs.StringP("output", "o", "", "Output file")
}

// bindFlags makes the command's flags visible through viper, so they can
// also be set from the config file or environment.
func bindFlags(cmd *cobra.Command, args []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid mapping %q: expected old=new", p)
		}
		m[from] = to
	}
	return m, nil
}

func parseMode(s string) (inline.Mode, error) {
	switch strings.ToLower(s) {
	case "", "preserve":
		return inline.Preserve, nil
	case "same-instance", "same":
		return inline.SameInstance, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// buildRequest assembles a request from viper settings.
func buildRequest(v *viper.Viper) (classweave.Request, error) {
	var req classweave.Request
	mode, err := parseMode(v.GetString("mode"))
	if err != nil {
		return req, err
	}
	remap, err := parsePairs(v.GetStringSlice("remap"))
	if err != nil {
		return req, err
	}
	for _, s := range v.GetStringSlice("inline") {
		t, err := inline.ParseTarget(s)
		if err != nil {
			return req, err
		}
		req.Inline = append(req.Inline, classweave.InlineRequest{
			Target: t,
			Hosts:  v.GetStringSlice("host"),
			Mode:   mode,
			Remap:  remap,
		})
	}
	if m := v.GetString("merge"); m != "" {
		req.Merge = &classweave.MergeRequest{Class: m, Methods: v.GetStringSlice("merge-method")}
	}
	rename, err := parsePairs(v.GetStringSlice("rename"))
	if err != nil {
		return req, err
	}
	if len(rename) > 0 {
		req.Passes = append(req.Passes, visit.NewRemapper(rename))
	}
	if len(req.Inline) == 0 && req.Merge == nil && len(req.Passes) == 0 {
		return req, fmt.Errorf("nothing to do: give --inline, --merge or --rename")
	}
	return req, nil
}

// openClassPath opens each class-path entry. The returned function closes
// any archives.
func openClassPath(paths []string) (classweave.ChainSource, func(), error) {
	var sources classweave.ChainSource
	var zips []*classweave.ZipSource
	closeAll := func() {
		for _, z := range zips {
			z.Close()
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		if info.IsDir() {
			sources = append(sources, classweave.DirSource(p))
			continue
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".jar", ".zip":
			z, err := classweave.OpenZipSource(p)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			zips = append(zips, z)
			sources = append(sources, z)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("class path entry %s is not a directory or jar", p)
		}
	}
	return sources, closeAll, nil
}

func parseOptions(v *viper.Viper) []classfile.ParseOption {
	if major := v.GetInt("max-major"); major > 0 {
		return []classfile.ParseOption{classfile.WithMaxVersion(classfile.Version{Major: uint16(major), Minor: 0xFFFF})}
	}
	return nil
}

func transformOptions(v *viper.Viper, source classweave.ClassSource) []classweave.Option {
	opts := []classweave.Option{
		classweave.WithLogger(newLogger()),
		classweave.WithClassSource(source),
	}
	if major := v.GetInt("max-major"); major > 0 {
		opts = append(opts, classweave.WithMaxVersion(classfile.Version{Major: uint16(major), Minor: 0xFFFF}))
	}
	return opts
}
