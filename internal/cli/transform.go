package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/iro/internal/model"
	"github.com/raysh454/iro/internal/selection"
)

type transformFlags struct {
	ops      []string
	images   []string
	format   string
	mode     string
	download string
	quiet    bool
}

func newTransformCommand(rt *runtime) *cobra.Command {
	var f transformFlags
	cmd := &cobra.Command{
		Use:   "transform [flags] FILE|DIR...",
		Short: "Upload images, apply transformations and optionally download the result",
		Long: strings.TrimSpace(`
Operations are written id[:key=value,...], for example blur:radius=4 or
watermark:text=draft. Batch mode applies every --op to all images. Individual
mode applies --op to every image and each --image name=op;op to one image.
Passing --image selects individual mode unless --mode says otherwise.
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, rt, f, args)
		},
	}
	cmd.Flags().StringArrayVarP(&f.ops, "op", "o", nil, "operation id[:key=value,...] (repeatable)")
	cmd.Flags().StringArrayVarP(&f.images, "image", "i", nil, "per-image operations name=op;op (repeatable)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "original", "output format: original, jpg, png or tif")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "batch or individual")
	cmd.Flags().StringVarP(&f.download, "download", "d", "", "save the result archive into this directory")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not report progress")
	return cmd
}

func runTransform(cmd *cobra.Command, rt *runtime, f transformFlags, args []string) error {
	ctx := cmd.Context()
	images := rt.app.Images

	mode := selection.ModeBatch
	if len(f.images) > 0 {
		mode = selection.ModeIndividual
	}
	if f.mode != "" {
		m, ok := selection.ParseMode(f.mode)
		if !ok {
			return usagef("unknown mode %q", f.mode)
		}
		mode = m
	}
	if mode == selection.ModeBatch && len(f.images) > 0 {
		return usagef("--image needs individual mode")
	}
	format, ok := model.ParseOutputFormat(f.format)
	if !ok {
		return usagef("unknown output format %q", f.format)
	}
	common, err := parseOps(strings.Join(f.ops, ";"))
	if err != nil {
		return err
	}

	res := images.AddFiles(args)
	if len(res.Invalid) > 0 {
		fmt.Fprintf(rt.errOut, "Skipping unsupported files: %s\n", strings.Join(res.Invalid, ", "))
	}
	if len(res.Valid) == 0 {
		return usagef("none of the arguments is a supported image")
	}
	if err := images.Upload(ctx); err != nil {
		return err
	}

	sel := images.NewSelection()
	sel.SetMode(mode)
	if err := configure(sel, mode, common, f.images, format); err != nil {
		return err
	}

	if !f.quiet {
		unsubscribe := images.Progress.Subscribe(func(p model.TransformationProgress) {
			if p.Status == model.ProgressProcessing && p.Processed > 0 {
				fmt.Fprintf(rt.errOut, "Processing %d/%d (%d%%)\n", p.Processed, p.Total, p.Percentage)
			}
		})
		defer unsubscribe()
	}

	result, err := images.Apply(ctx, sel)
	if err != nil {
		return err
	}
	printBatch(cmd, result)

	if f.download != "" {
		return saveDownload(cmd, f.download, func(buf *bytes.Buffer) (string, error) {
			return images.Download(ctx, "", buf)
		})
	}
	return nil
}

// configure fills sel from the parsed flags.
func configure(sel *selection.Model, mode selection.Mode, common []opSpec, perImage []string, format model.OutputFormat) error {
	if mode == selection.ModeBatch {
		if err := applyOps(sel, "", common); err != nil {
			return err
		}
		return setFormat(sel, "", format)
	}

	byName := map[string]string{}
	for _, img := range sel.Images() {
		byName[img.Name] = img.ID
		if err := applyOps(sel, img.ID, common); err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
	}
	for _, spec := range perImage {
		name, ops, err := parseImageOps(spec)
		if err != nil {
			return err
		}
		id, ok := byName[name]
		if !ok {
			return usagef("--image %s does not match any uploaded image", name)
		}
		if err := applyOps(sel, id, ops); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, img := range sel.Images() {
		if err := setFormat(sel, img.ID, format); err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
	}
	return nil
}

func setFormat(sel *selection.Model, target string, format model.OutputFormat) error {
	if sel.OutputFormat(target) == format {
		return nil
	}
	if !sel.SetOutputFormat(format, target) {
		return usagef("no slot left for output format %s (at most %d operations)", format, selection.MaxSlots)
	}
	return nil
}

func printBatch(cmd *cobra.Command, b *model.BatchResult) {
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORIGINAL\tOUTPUT\tFORMAT\tSIZE")
	for _, img := range b.Images {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", img.ID, img.OriginalName, img.TransformedName, img.Format, humanize.Bytes(uint64(max(img.Size, 0))))
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "Batch %s: %d images, %s\n", b.BatchID, b.ImageCount, humanize.Bytes(uint64(max(b.TotalSize, 0))))
}

// saveDownload runs fetch into memory and writes the file under dir.
func saveDownload(cmd *cobra.Command, dir string, fetch func(*bytes.Buffer) (string, error)) error {
	var buf bytes.Buffer
	name, err := fetch(&buf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", path, humanize.Bytes(uint64(buf.Len())))
	return nil
}
