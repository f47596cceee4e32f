package cmd

import (
	"github.com/spf13/cobra"

	"github.com/synaptica-ai/automl/pkg/common/models"
	"github.com/synaptica-ai/automl/pkg/export"
)

var exportOpts struct {
	trainOptions
	model         string
	format        string
	allowFallback bool
	out           string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "train, then export the chosen model with its preprocessing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sessions, sess, err := exportOpts.run(cmd.Context())
		if err != nil {
			return err
		}
		art, err := export.NewExporter(exportOpts.out, sessions).Export(cmd.Context(), models.DownloadRequest{
			SessionID:     sess.ID,
			ModelName:     exportOpts.model,
			Format:        exportOpts.format,
			AllowFallback: exportOpts.allowFallback,
		})
		if err != nil {
			return err
		}
		return printJSON(art)
	},
}

func init() {
	flags := exportCmd.Flags()
	exportOpts.bind(flags)
	flags.StringVarP(&exportOpts.model, "model", "m", "", "model to export; the best model when empty")
	flags.StringVar(&exportOpts.format, "format", export.FormatONNX, "onnx or native")
	flags.BoolVar(&exportOpts.allowFallback, "allow-fallback", false, "write a native bundle when ONNX conversion fails")
	flags.StringVarP(&exportOpts.out, "out", "o", cfg.ModelDir, "output directory")
}
