package cli

import (
	"bytes"

	"github.com/spf13/cobra"
)

func newDownloadCommand(rt *runtime) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download processed batches or single images",
	}
	cmd.PersistentFlags().StringVarP(&dir, "out", "O", ".", "target directory")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "batch BATCH_ID",
			Short: "Download the archive of a processed batch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return saveDownload(cmd, dir, func(buf *bytes.Buffer) (string, error) {
					return rt.app.Images.Download(cmd.Context(), args[0], buf)
				})
			},
		},
		&cobra.Command{
			Use:   "image IMAGE_ID",
			Short: "Download one transformed image",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return saveDownload(cmd, dir, func(buf *bytes.Buffer) (string, error) {
					return rt.app.Images.DownloadImage(cmd.Context(), args[0], buf)
				})
			},
		},
	)
	return cmd
}
