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

package mf

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/base/log"
	"github.com/gorse-io/mfrec/base/progress"
	"github.com/gorse-io/mfrec/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type FitConfig struct {
	// Verbose is the period (in epochs) of debug logs.
	Verbose int
	// CheckDivergence stops training once the loss is no longer finite.
	CheckDivergence bool
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetCheckDivergence(check bool) *FitConfig {
	config.CheckDivergence = check
	return config
}

// Factors are the outputs of matrix factorization. The product P·Q approximates
// the observed cells of the rating matrix.
type Factors struct {
	P *mat.Dense // userCount x k, p_u
	Q *mat.Dense // k x itemCount, q_i
	// Loss is the regularized squared error after the last epoch.
	Loss float64
}

// Dims returns the number of users, latent factors and items.
func (f *Factors) Dims() (users, factors, items int) {
	users, factors = f.P.Dims()
	_, items = f.Q.Dims()
	return
}

// Predict returns the score of a user for an item, both zero-based.
//
//	\hat{r}_{ui} = p_u^T q_i
func (f *Factors) Predict(userIndex, itemIndex int) float64 {
	return mat.Dot(f.P.RowView(userIndex), f.Q.ColView(itemIndex))
}

var _ model.Model = (*SGD)(nil)

// SGD factorizes a rating matrix D into P and Q by stochastic gradient descent
// over the observed (non-zero) cells. For each observed cell the error
// e_{ui} = r_{ui} - p_u^T q_i moves every latent dimension f by:
//
//	p_{uf} <- p_{uf} + \alpha (2 e_{ui} q_{fi} - \lambda p_{uf})
//	q_{fi} <- q_{fi} + \alpha (2 e_{ui} p_{uf} - \lambda q_{fi})
//
// Hyper-parameters:
//
//	 NFactors	- The number of latent factors (k). Default is 5.
//	 Lr 		- The learning rate (alpha). Default is 0.001.
//	 Reg 		- The L2 regularization strength (lambda). Default is 0.01.
//	 NEpochs	- The number of passes over the observed cells. Default is 50.
//	 InitLow	- The lower bound of uniform initial factors. Default is 0.
//	 InitHigh	- The upper bound of uniform initial factors. Default is 1.
//	 RandomState	- The seed of initial factors. Default is 0.
type SGD struct {
	model.BaseModel
	// Hyper parameters
	nFactors int
	nEpochs  int
	lr       float64
	reg      float64
	initLow  float64
	initHigh float64
}

// NewSGD creates a SGD model.
func NewSGD(params model.Params) *SGD {
	sgd := new(SGD)
	sgd.SetParams(params)
	return sgd
}

// SetParams sets hyper-parameters of the SGD model.
func (sgd *SGD) SetParams(params model.Params) {
	sgd.BaseModel.SetParams(params)
	sgd.nFactors = sgd.Params.GetInt(model.NFactors, 5)
	sgd.nEpochs = sgd.Params.GetInt(model.NEpochs, 50)
	sgd.lr = sgd.Params.GetFloat64(model.Lr, 0.001)
	sgd.reg = sgd.Params.GetFloat64(model.Reg, 0.01)
	sgd.initLow = sgd.Params.GetFloat64(model.InitLow, 0)
	sgd.initHigh = sgd.Params.GetFloat64(model.InitHigh, 1)
}

// Validate checks hyper-parameters. Zero epochs is allowed and leaves the initial factors untouched.
func (sgd *SGD) Validate() error {
	switch {
	case sgd.nFactors <= 0:
		return base.Configurationf("number of factors must be positive, got %d", sgd.nFactors)
	case sgd.lr <= 0:
		return base.Configurationf("learning rate must be positive, got %v", sgd.lr)
	case sgd.reg < 0:
		return base.Configurationf("regularization must not be negative, got %v", sgd.reg)
	case sgd.nEpochs < 0:
		return base.Configurationf("number of epochs must not be negative, got %d", sgd.nEpochs)
	case sgd.initHigh <= sgd.initLow:
		return base.Configurationf("empty initial range [%v, %v)", sgd.initLow, sgd.initHigh)
	}
	return nil
}

// Init creates factors for a userCount x itemCount matrix, filled with uniform random values.
func (sgd *SGD) Init(userCount, itemCount int) *Factors {
	rng := sgd.GetRandomGenerator()
	return &Factors{
		P: rng.UniformMatrix(userCount, sgd.nFactors, sgd.initLow, sgd.initHigh),
		Q: rng.UniformMatrix(sgd.nFactors, itemCount, sgd.initLow, sgd.initHigh),
	}
}

// Fit factorizes the rating matrix. Its task complexity is O(nEpochs * nObserved * nFactors).
func (sgd *SGD) Fit(ctx context.Context, matrix mat.Matrix, config *FitConfig) (*Factors, error) {
	if err := sgd.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	userCount, itemCount := matrix.Dims()
	factors := sgd.Init(userCount, itemCount)
	if err := sgd.FitFactors(ctx, matrix, factors, config); err != nil {
		return nil, errors.Trace(err)
	}
	return factors, nil
}

// FitFactors runs exactly nEpochs passes of SGD over given factors, updating them in place.
func (sgd *SGD) FitFactors(ctx context.Context, matrix mat.Matrix, factors *Factors, config *FitConfig) error {
	if err := sgd.Validate(); err != nil {
		return errors.Trace(err)
	}
	if config == nil {
		config = NewFitConfig()
	}
	userCount, itemCount := matrix.Dims()
	if u, k, i := factors.Dims(); u != userCount || i != itemCount || k != sgd.nFactors {
		return base.Configurationf("factors %dx%d·%dx%d do not fit a %dx%d matrix with %d factors",
			u, k, k, i, userCount, itemCount, sgd.nFactors)
	}
	cells := observedCells(matrix)
	log.Logger().Info("fit sgd",
		zap.Int("n_users", userCount),
		zap.Int("n_items", itemCount),
		zap.Int("n_observed", len(cells)),
		zap.Any("params", sgd.GetParams()),
		zap.Any("config", config))

	// Create buffers
	p := make([]float64, sgd.nFactors)
	q := make([]float64, sgd.nFactors)
	_, span := progress.Start(ctx, "SGD.Fit", sgd.nEpochs)
	for epoch := 1; epoch <= sgd.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		fitStart := time.Now()
		for _, cell := range cells {
			i, j := cell[0], cell[1]
			e := matrix.At(i, j) - factors.Predict(i, j)
			// read both factors before writing either
			mat.Row(p, i, factors.P)
			mat.Col(q, j, factors.Q)
			for f := 0; f < sgd.nFactors; f++ {
				factors.P.Set(i, f, p[f]+sgd.lr*(2*e*q[f]-sgd.reg*p[f]))
				factors.Q.Set(f, j, q[f]+sgd.lr*(2*e*p[f]-sgd.reg*q[f]))
			}
		}
		factors.Loss = sgd.loss(matrix, factors, cells)
		fitTime := time.Since(fitStart)
		if config.CheckDivergence && (math.IsNaN(factors.Loss) || math.IsInf(factors.Loss, 0)) {
			err := base.NumericalInstabilityf("loss is %v after epoch %d", factors.Loss, epoch)
			span.Fail(err)
			return err
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == sgd.nEpochs) {
			log.Logger().Debug(fmt.Sprintf("fit sgd %v/%v", epoch, sgd.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.Float64("loss", factors.Loss))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit sgd complete",
		zap.Float64("loss", factors.Loss),
		zap.String("elapsed", span.Elapsed().String()))
	return nil
}

// loss returns the regularized squared error over observed cells:
//
//	\sum_{(u,i)} (r_{ui} - p_u^T q_i)^2 + \lambda/2 \sum_f (p_{uf}^2 + q_{fi}^2)
func (sgd *SGD) loss(matrix mat.Matrix, factors *Factors, cells [][2]int) float64 {
	loss := 0.0
	for _, cell := range cells {
		i, j := cell[0], cell[1]
		e := matrix.At(i, j) - factors.Predict(i, j)
		loss += e * e
		for f := 0; f < sgd.nFactors; f++ {
			p, q := factors.P.At(i, f), factors.Q.At(f, j)
			loss += sgd.reg * (p*p + q*q) / 2
		}
	}
	return loss
}

// observedCells lists cells with positive ratings in row-major order.
func observedCells(matrix mat.Matrix) [][2]int {
	userCount, itemCount := matrix.Dims()
	var cells [][2]int
	for i := 0; i < userCount; i++ {
		for j := 0; j < itemCount; j++ {
			if matrix.At(i, j) > 0 {
				cells = append(cells, [2]int{i, j})
			}
		}
	}
	return cells
}
