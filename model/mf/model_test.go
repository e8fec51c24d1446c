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
	"math"
	"testing"

	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/base/progress"
	"github.com/gorse-io/mfrec/dataset"
	"github.com/gorse-io/mfrec/model"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

const fitDelta = 0.1

func newTwoCellMatrix(t *testing.T) *mat.Dense {
	train := dataset.NewRatingTable()
	train.Add(1, 1, 5)
	train.Add(3, 4, 3)
	matrix, err := dataset.NewRatingMatrix(train, 3, 4)
	assert.NoError(t, err)
	return matrix
}

func TestSGD_Fit(t *testing.T) {
	matrix := newTwoCellMatrix(t)
	for seed := int64(0); seed < 10; seed++ {
		m := NewSGD(model.Params{
			model.NFactors:    2,
			model.Lr:          0.01,
			model.Reg:         0.0,
			model.NEpochs:     100,
			model.RandomState: seed,
		})
		factors, err := m.Fit(context.Background(), matrix, NewFitConfig().SetVerbose(10))
		assert.NoError(t, err)
		users, k, items := factors.Dims()
		assert.Equal(t, 3, users)
		assert.Equal(t, 2, k)
		assert.Equal(t, 4, items)
		// observed cells are reconstructed
		assert.InDelta(t, 5, factors.Predict(0, 0), fitDelta)
		assert.InDelta(t, 3, factors.Predict(2, 3), fitDelta)
		assert.InDelta(t, 0, factors.Loss, fitDelta)
		// unobserved cells stay eligible for recommendation
		for user := 1; user <= 3; user++ {
			predictions, err := Predict(matrix, factors, user)
			assert.NoError(t, err)
			for j := 0; j < 4; j++ {
				_, exist := predictions[j]
				assert.Equal(t, matrix.At(user-1, j) == 0, exist)
			}
		}
	}
}

func TestSGD_ZeroEpochs(t *testing.T) {
	matrix := newTwoCellMatrix(t)
	params := model.Params{
		model.NFactors:    3,
		model.NEpochs:     0,
		model.RandomState: 42,
	}
	m := NewSGD(params)
	factors := m.Init(3, 4)
	initP, initQ := mat.DenseCopyOf(factors.P), mat.DenseCopyOf(factors.Q)
	assert.NoError(t, m.FitFactors(context.Background(), matrix, factors, nil))
	assert.True(t, mat.Equal(initP, factors.P))
	assert.True(t, mat.Equal(initQ, factors.Q))

	// Fit with the same seed starts from the same random factors
	fitted, err := NewSGD(params).Fit(context.Background(), matrix, nil)
	assert.NoError(t, err)
	assert.True(t, mat.Equal(initP, fitted.P))
	assert.True(t, mat.Equal(initQ, fitted.Q))
	// initial factors are uniform in [0, 1)
	assert.GreaterOrEqual(t, mat.Min(fitted.P), 0.0)
	assert.Less(t, mat.Max(fitted.Q), 1.0)
}

func TestSGD_SingleUpdate(t *testing.T) {
	// one observed cell, one epoch: both factors move from their pre-update values
	matrix := mat.NewDense(1, 1, []float64{4})
	m := NewSGD(model.Params{model.NFactors: 1, model.NEpochs: 1, model.Lr: 0.1, model.Reg: 0.5})
	factors := &Factors{P: mat.NewDense(1, 1, []float64{1}), Q: mat.NewDense(1, 1, []float64{2})}
	assert.NoError(t, m.FitFactors(context.Background(), matrix, factors, nil))
	// e = 4 - 2 = 2
	// p = 1 + 0.1 * (2*2*2 - 0.5*1) = 1.75
	// q = 2 + 0.1 * (2*2*1 - 0.5*2) = 2.3
	assert.InDelta(t, 1.75, factors.P.At(0, 0), 1e-12)
	assert.InDelta(t, 2.3, factors.Q.At(0, 0), 1e-12)
	// loss = (4 - 1.75*2.3)^2 + 0.5*(1.75^2 + 2.3^2)/2
	expected := math.Pow(4-1.75*2.3, 2) + 0.5*(1.75*1.75+2.3*2.3)/2
	assert.InDelta(t, expected, factors.Loss, 1e-12)
}

func TestSGD_Validate(t *testing.T) {
	matrix := newTwoCellMatrix(t)
	for _, params := range []model.Params{
		{model.NFactors: 0},
		{model.Lr: 0.0},
		{model.Lr: -0.1},
		{model.Reg: -1.0},
		{model.NEpochs: -1},
		{model.InitLow: 1.0, model.InitHigh: 1.0},
	} {
		_, err := NewSGD(params).Fit(context.Background(), matrix, nil)
		assert.ErrorIs(t, err, base.ErrConfiguration, params.ToString())
	}
	// factors must match the matrix
	m := NewSGD(model.Params{model.NFactors: 2})
	err := m.FitFactors(context.Background(), matrix, m.Init(2, 4), nil)
	assert.ErrorIs(t, err, base.ErrConfiguration)
}

func TestSGD_Divergence(t *testing.T) {
	matrix := newTwoCellMatrix(t)
	params := model.Params{
		model.NFactors: 2,
		model.Lr:       10.0,
		model.NEpochs:  50,
	}
	// divergence is accepted unless checked
	factors, err := NewSGD(params).Fit(context.Background(), matrix, NewFitConfig())
	assert.NoError(t, err)
	assert.False(t, math.Abs(factors.Loss) < 1e6)
	// checked divergence aborts the run
	_, err = NewSGD(params).Fit(context.Background(), matrix, NewFitConfig().SetCheckDivergence(true))
	assert.ErrorIs(t, err, base.ErrNumericalInstability)
}

func TestSGD_Cancel(t *testing.T) {
	ctx, root := progress.Start(context.Background(), "root", 1)
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := NewSGD(model.Params{model.NEpochs: 10}).Fit(ctx, newTwoCellMatrix(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
	// the training span is closed as failed
	children := root.Children()
	if assert.Len(t, children, 1) {
		assert.Equal(t, progress.StatusFailed, children[0].Status())
		assert.ErrorIs(t, children[0].Err(), context.Canceled)
		assert.Zero(t, children[0].Count())
	}
}

func TestSGD_DivergenceSpan(t *testing.T) {
	ctx, root := progress.Start(context.Background(), "root", 1)
	params := model.Params{model.NFactors: 2, model.Lr: 10.0, model.NEpochs: 50}
	_, err := NewSGD(params).Fit(ctx, newTwoCellMatrix(t), NewFitConfig().SetCheckDivergence(true))
	assert.ErrorIs(t, err, base.ErrNumericalInstability)
	children := root.Children()
	if assert.Len(t, children, 1) {
		assert.Equal(t, progress.StatusFailed, children[0].Status())
		assert.ErrorIs(t, children[0].Err(), base.ErrNumericalInstability)
		assert.Less(t, children[0].Count(), 50)
	}
}

func TestSGD_Progress(t *testing.T) {
	ctx, root := progress.Start(context.Background(), "root", 1)
	_, err := NewSGD(model.Params{model.NEpochs: 3}).Fit(ctx, newTwoCellMatrix(t), nil)
	assert.NoError(t, err)
	root.End()
	assert.Equal(t, progress.StatusComplete, root.Status())
	children := root.Children()
	if assert.Len(t, children, 1) {
		assert.Equal(t, "SGD.Fit", children[0].Name())
		assert.Equal(t, progress.StatusComplete, children[0].Status())
		assert.Equal(t, 3, children[0].Count())
	}
}
