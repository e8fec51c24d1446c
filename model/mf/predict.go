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
	"slices"

	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/common/heap"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Predictions maps a zero-based item index to its predicted score.
type Predictions map[int]float64

// Recommendation is an item index (zero-based) and its predicted score.
type Recommendation struct {
	Item  int
	Score float64
}

// Predict scores every item the user has not rated. The user id is 1-based. Items
// with a non-zero cell in the rating matrix never appear in the result.
func Predict(matrix mat.Matrix, factors *Factors, user int) (Predictions, error) {
	userCount, itemCount := matrix.Dims()
	if u, _, i := factors.Dims(); u != userCount || i != itemCount {
		return nil, base.Configurationf("factors cover %d users and %d items, but the rating matrix is %dx%d",
			u, i, userCount, itemCount)
	}
	if user < 1 || user > userCount {
		return nil, base.Configurationf("user %d is out of range [1, %d]", user, userCount)
	}
	userIndex := user - 1
	predictions := make(Predictions)
	for itemIndex := 0; itemIndex < itemCount; itemIndex++ {
		if matrix.At(userIndex, itemIndex) == 0 {
			predictions[itemIndex] = factors.Predict(userIndex, itemIndex)
		}
	}
	return predictions, nil
}

// TopK sorts predictions by score in descending order and keeps the first n.
// Equal scores are ordered by item index. A negative n keeps nothing.
func TopK(predictions Predictions, n int) []Recommendation {
	n = max(n, 0)
	items := lo.Keys(predictions)
	slices.Sort(items)
	filter := heap.NewTopKFilter[int, float64](n)
	for _, item := range items {
		filter.Push(item, predictions[item])
	}
	return lo.Map(filter.PopAll(), func(elem heap.Elem[int, float64], _ int) Recommendation {
		return Recommendation{Item: elem.Value, Score: elem.Weight}
	})
}

// Recommend returns the top n unrated items of a user (1-based).
func Recommend(matrix mat.Matrix, factors *Factors, user, n int) ([]Recommendation, error) {
	if err := checkTopK(n); err != nil {
		return nil, errors.Trace(err)
	}
	predictions, err := Predict(matrix, factors, user)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return TopK(predictions, n), nil
}

func checkTopK(n int) error {
	if n < 0 {
		return base.Configurationf("length of recommendation lists must not be negative, got %d", n)
	}
	return nil
}
