package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/deepnoodle-ai/classweave"
)

var jarCmd = &cobra.Command{
	Use:     "jar <in.jar>",
	Short:   "Transform every class in a jar",
	Args:    cobra.ExactArgs(1),
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(viper.GetViper())
		if err != nil {
			return err
		}
		outPath := viper.GetString("output")
		if outPath == "" {
			return fmt.Errorf("--output is required")
		}
		in, err := zip.OpenReader(args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		// The jar itself comes first on the class path.
		self, err := classweave.OpenZipSource(args[0])
		if err != nil {
			return err
		}
		defer self.Close()
		extra, closeSources, err := openClassPath(viper.GetStringSlice("cp"))
		if err != nil {
			return err
		}
		defer closeSources()
		source := append(classweave.ChainSource{self}, extra...)

		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		stats, err := weaveJar(&in.Reader, f, req, transformOptions(viper.GetViper(), source), viper.GetInt("workers"))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outPath)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d classes, %d changed, %d call sites inlined\n",
			green("wrote"), outPath, stats.Classes, stats.Changed, stats.Sites)
		return nil
	},
}

func init() {
	addWeaveFlags(jarCmd.Flags())
	jarCmd.Flags().Int("workers", runtime.NumCPU(), "Classes transformed in parallel")
}

type jarStats struct {
	Classes int
	Changed int
	Sites   int
}

// weaveJar transforms every class of in and writes the archive to w. Entries
// keep their order; other entries are copied unchanged. Classes are
// transformed in parallel, each in its own pipeline.
func weaveJar(in *zip.Reader, w io.Writer, req classweave.Request, opts []classweave.Option, workers int) (jarStats, error) {
	if workers < 1 {
		workers = 1
	}
	type result struct {
		data    []byte
		changed bool
	}
	results := make([]result, len(in.File))
	var (
		mu    sync.Mutex
		stats jarStats
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, f := range in.File {
		if !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		i, f := i, f
		g.Go(func() error {
			original, err := readEntry(f)
			if err != nil {
				return err
			}
			var report classweave.Report
			classOpts := append(append([]classweave.Option(nil), opts...), classweave.WithReport(&report))
			out, err := classweave.Transform(original, req, classOpts...)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			changed := !bytes.Equal(out, original)
			results[i] = result{data: out, changed: changed}
			mu.Lock()
			stats.Classes++
			stats.Sites += len(report.Sites)
			if changed {
				stats.Changed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	zw := zip.NewWriter(w)
	for i, f := range in.File {
		r := results[i]
		if r.data == nil || !r.changed {
			if err := zw.Copy(f); err != nil {
				return stats, err
			}
			continue
		}
		hdr := f.FileHeader
		hdr.Method = zip.Deflate
		hdr.CRC32 = 0
		hdr.CompressedSize64 = 0
		hdr.UncompressedSize64 = 0
		ew, err := zw.CreateHeader(&hdr)
		if err != nil {
			return stats, err
		}
		if _, err := ew.Write(r.data); err != nil {
			return stats, err
		}
	}
	return stats, zw.Close()
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
