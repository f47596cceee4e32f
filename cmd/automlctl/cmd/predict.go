package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synaptica-ai/automl/pkg/serving/predictor"
)

var predictOpts struct {
	dir     string
	session string
	model   string
	inputs  string
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "score one row against an exported native bundle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var inputs map[string]interface{}
		if err := json.Unmarshal([]byte(predictOpts.inputs), &inputs); err != nil {
			return fmt.Errorf("--inputs must be a JSON object: %w", err)
		}
		pred, err := predictor.NewPredictor(predictOpts.dir).Predict(predictOpts.session, predictOpts.model, inputs)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"prediction":     pred.Value,
			"probabilities":  pred.Probabilities,
			"missing_inputs": pred.MissingInputs,
		})
	},
}

func init() {
	flags := predictCmd.Flags()
	flags.StringVar(&predictOpts.dir, "dir", cfg.ModelDir, "directory holding exported bundles")
	flags.StringVarP(&predictOpts.session, "session", "s", "", "session id of the export")
	flags.StringVarP(&predictOpts.model, "model", "m", "", "model name of the export")
	flags.StringVarP(&predictOpts.inputs, "inputs", "i", "{}", "raw feature values as a JSON object")
	_ = predictCmd.MarkFlagRequired("session")
	_ = predictCmd.MarkFlagRequired("model")
}
