package cli

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/iro/internal/history"
	"github.com/raysh454/iro/internal/model"
)

func newHistoryCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and prune the transformation history",
	}
	cmd.AddCommand(
		newHistoryListCommand(rt),
		newHistoryShowCommand(rt),
		newHistoryDeleteCommand(rt),
		newHistoryDeleteImageCommand(rt),
	)
	return cmd
}

func newHistoryListCommand(rt *runtime) *cobra.Command {
	var imageID int64
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transformations grouped by image, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hist := rt.app.History
			if err := hist.Load(cmd.Context()); err != nil {
				return err
			}
			groups := hist.Aggregator().Groups()
			if imageID != 0 {
				g, ok := hist.Aggregator().Group(imageID)
				if !ok {
					return fmt.Errorf("image %d: %w", imageID, history.ErrRecordNotFound)
				}
				groups = []history.Group{g}
			}

			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No transformations yet")
				return nil
			}
			for i, g := range groups {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "Image %d: %s, last %s\n", g.ImageID, plural(len(g.Records), "transformation"), when(g.MostRecentCreatedAt))
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, r := range g.Records {
					fmt.Fprintf(tw, "  #%d\t%d\t%s\t%s\n", r.Order, r.TransformationID, r.Kind, history.ParametersOf(r).Display())
				}
				_ = tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&imageID, "image", 0, "only show this image")
	return cmd
}

func newHistoryShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show TRANSFORMATION_ID",
		Short: "Show one transformation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := rt.app.History.Detail(cmd.Context(), id)
			if err != nil {
				return err
			}
			printRecord(cmd, *rec)
			return nil
		},
	}
}

func newHistoryDeleteCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TRANSFORMATION_ID",
		Short: "Delete one transformation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.app.History.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transformation %d\n", id)
			return nil
		},
	}
}

func newHistoryDeleteImageCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-image IMAGE_ID",
		Short: "Delete every transformation record of one image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageID, err := parseID(args[0])
			if err != nil {
				return err
			}
			hist := rt.app.History
			if err := hist.Load(cmd.Context()); err != nil {
				return err
			}
			report, err := hist.DeleteImage(cmd.Context(), imageID)
			total := len(report.Deleted) + len(report.Failed)
			out := cmd.OutOrStdout()
			if total > 0 {
				fmt.Fprintf(out, "Deleted %d of %s of image %d\n", len(report.Deleted), plural(total, "record"), imageID)
			}
			failed := make([]int64, 0, len(report.Failed))
			for id := range report.Failed {
				failed = append(failed, id)
			}
			sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
			for _, id := range failed {
				fmt.Fprintf(out, "  %d: %s\n", id, describe(report.Failed[id]))
			}
			return err
		},
	}
}

func printRecord(cmd *cobra.Command, r model.TransformationHistoryRecord) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transformation\t%d\n", r.TransformationID)
	fmt.Fprintf(tw, "Image\t%d\n", r.ImageID)
	fmt.Fprintf(tw, "Type\t%s\n", r.Kind)
	fmt.Fprintf(tw, "Step\t%d\n", r.Order)
	fmt.Fprintf(tw, "Parameters\t%s\n", history.ParametersOf(r).Display())
	created := r.CreatedAt.Raw
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.Format(time.RFC3339) + " (" + humanize.Time(r.CreatedAt.Time) + ")"
	}
	fmt.Fprintf(tw, "Created\t%s\n", created)
	_ = tw.Flush()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, usagef("%q is not a valid id", s)
	}
	return id, nil
}

func when(t time.Time) string {
	if t.IsZero() {
		return "at an unknown time"
	}
	return humanize.Time(t)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
