package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/synaptica-ai/automl/pkg/dataset"
	"github.com/synaptica-ai/automl/pkg/registry"
	"github.com/synaptica-ai/automl/pkg/session"
	"github.com/synaptica-ai/automl/pkg/training"
)

// trainOptions are the flags shared by train and export.
type trainOptions struct {
	file        string
	target      string
	problemType string
	algorithms  []string
	features    []string
	testSize    float64
	seed        int64
	cvFolds     int
	defaults    string
}

func (o *trainOptions) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&o.file, "file", "f", "", "CSV dataset to train on")
	flags.StringVarP(&o.target, "target", "t", "", "target column; omit for clustering")
	flags.StringVar(&o.problemType, "problem-type", "", "regression, classification or clustering; detected when empty")
	flags.StringSliceVarP(&o.algorithms, "algorithms", "a", nil, "algorithms to train, in order; every registered algorithm when empty")
	flags.StringSliceVar(&o.features, "features", nil, "restrict raw feature columns")
	flags.Float64Var(&o.testSize, "test-size", cfg.TestSize, "held-out fraction")
	flags.Int64Var(&o.seed, "seed", cfg.RandomState, "random seed for splits and folds")
	flags.IntVar(&o.cvFolds, "cv-folds", cfg.CVFolds, "cross-validation folds")
	flags.StringVar(&o.defaults, "registry-defaults", cfg.RegistryDefaultsFile, "YAML file overriding default hyperparameters")
}

// run loads the CSV and trains synchronously. The returned store holds the
// finished session.
func (o *trainOptions) run(ctx context.Context) (session.Store, *session.Session, error) {
	if o.file == "" {
		return nil, nil, fmt.Errorf("--file is required")
	}
	f, err := os.Open(o.file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	table, err := dataset.ReadCSV(f)
	if err != nil {
		return nil, nil, err
	}

	var regOpts []registry.Option
	if o.defaults != "" {
		opt, err := registry.LoadDefaults(o.defaults)
		if err != nil {
			return nil, nil, err
		}
		regOpts = append(regOpts, opt)
	}
	reg := registry.New(regOpts...)

	datasets := dataset.NewMemoryStore()
	entry := &dataset.Entry{ID: "cli", FileName: filepath.Base(o.file), Table: table, UploadedAt: time.Now().UTC()}
	if err := datasets.Put(ctx, entry); err != nil {
		return nil, nil, err
	}

	req := session.DefaultRequest(o.testSize, o.seed, o.cvFolds)
	req.DatasetID = entry.ID
	req.TargetColumn = o.target
	req.SelectedFeatures = o.features
	req.SelectedAlgorithms = o.algorithms
	if o.problemType != "" {
		pt, err := dataset.ParseProblemType(o.problemType)
		if err != nil {
			return nil, nil, err
		}
		req.ProblemType = pt
	}
	if len(req.SelectedAlgorithms) == 0 {
		pt := req.ProblemType
		if pt == "" {
			if pt, err = dataset.DetectProblemType(table, o.target); err != nil {
				return nil, nil, err
			}
		}
		req.SelectedAlgorithms = reg.Names(pt)
	}

	sessions := session.NewMemoryStore()
	svc := training.NewService(datasets, sessions, reg, training.NewProgressBoard(nil), 1)
	sess, err := svc.Run(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return sessions, sess, nil
}

var trainOpts trainOptions

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train algorithms on a CSV and print the evaluation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, sess, err := trainOpts.run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(sess.Summary())
	},
}

func init() {
	trainOpts.bind(trainCmd.Flags())
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
