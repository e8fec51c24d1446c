// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/base/log"
	"github.com/gorse-io/mfrec/base/progress"
	"github.com/gorse-io/mfrec/cmd/version"
	"github.com/gorse-io/mfrec/config"
	"github.com/gorse-io/mfrec/dataset"
	"github.com/gorse-io/mfrec/model/mf"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "mfrec",
	Short: "Train a matrix factorization recommender on MovieLens and evaluate its top-N lists.",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.BuildInfo())
			return
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		log.AddFields(zap.String("run_id", uuid.NewString()))

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, root := progress.Start(ctx, "mfrec", 1)
		err = run(progress.WithWriter(ctx, cmd.ErrOrStderr()), conf, cmd.OutOrStdout())
		logStages(root)
		if err != nil {
			log.Logger().Fatal("failed to run", zap.Error(err))
		}
		root.End()
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().BoolP("version", "v", false, "mfrec version")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

// logStages logs the outcome of every stage started under root.
func logStages(root *progress.Span) {
	for _, stage := range root.Children() {
		fields := []zap.Field{
			zap.String("stage", stage.Name()),
			zap.String("status", string(stage.Status())),
			zap.Int("count", stage.Count()),
			zap.Int("total", stage.Total()),
			zap.Duration("elapsed", stage.Elapsed()),
		}
		if stage.Status() == progress.StatusFailed {
			log.Logger().Warn("stage failed", append(fields, zap.Error(stage.Err()))...)
		} else {
			log.Logger().Info("stage finished", fields...)
		}
	}
}

// run loads the dataset, trains factors, prints recommendations of the example
// user and the evaluation metrics to out.
func run(ctx context.Context, conf *config.Config, out io.Writer) error {
	data, err := dataset.LoadMovieLens(conf.Dataset.Dir, conf.Dataset.Catalog, conf.Dataset.Train, conf.Dataset.Test)
	if err != nil {
		return errors.Trace(err)
	}
	if maxUser, maxItem := data.Train.MaxUser(), data.Train.MaxItem(); maxUser > conf.Dataset.UserCount || maxItem > conf.Dataset.ItemCount {
		return base.Configurationf("train set needs user_count >= %d and item_count >= %d, got %d and %d",
			maxUser, maxItem, conf.Dataset.UserCount, conf.Dataset.ItemCount)
	}
	matrix, err := dataset.NewRatingMatrix(data.Train, conf.Dataset.UserCount, conf.Dataset.ItemCount)
	if err != nil {
		return errors.Trace(err)
	}

	// train
	fitCtx := ctx
	if conf.Model.Timeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, conf.Model.Timeout)
		defer cancel()
	}
	sgd := mf.NewSGD(conf.Model.Params())
	fitConfig := mf.NewFitConfig().
		SetVerbose(conf.Model.Verbose).
		SetCheckDivergence(conf.Model.CheckDivergence)
	factors, err := sgd.Fit(fitCtx, matrix, fitConfig)
	if err != nil {
		return errors.Trace(err)
	}

	// recommend
	recommendations, err := mf.Recommend(matrix, factors, conf.Evaluate.ExampleUser, conf.Evaluate.TopK)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = fmt.Fprintf(out, "Top %d recommendations for user %d\n", conf.Evaluate.TopK, conf.Evaluate.ExampleUser); err != nil {
		return errors.Trace(err)
	}
	table := tablewriter.NewWriter(out)
	table.Header("Item", "Title", "Score")
	for _, recommendation := range recommendations {
		item := recommendation.Item + 1
		if err = table.Append([]string{
			strconv.Itoa(item),
			data.Titles[item],
			strconv.FormatFloat(recommendation.Score, 'f', 6, 64),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	if err = table.Render(); err != nil {
		return errors.Trace(err)
	}

	// evaluate
	score, err := mf.NewEvaluator(data.Train, data.Test, matrix, factors, conf.Evaluate.TopK, conf.Evaluate.NJobs).Evaluate(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = fmt.Fprintf(out, "Evaluation at top %d\n", conf.Evaluate.TopK); err != nil {
		return errors.Trace(err)
	}
	table = tablewriter.NewWriter(out)
	table.Header("Metric", "Value")
	for _, metric := range []struct {
		name  string
		value float64
	}{
		{"recall", score.Recall},
		{"precision", score.Precision},
		{"popularity", score.Popularity},
		{"coverage", score.Coverage},
	} {
		if err = table.Append([]string{metric.name, strconv.FormatFloat(metric.value, 'f', 6, 64)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
