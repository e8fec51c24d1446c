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

package dataset

import (
	"math"

	"github.com/gorse-io/mfrec/base"
	"gonum.org/v1/gonum/mat"
)

// NewRatingMatrix converts a rating table into a dense userCount x itemCount
// matrix. Cell (u-1, i-1) holds the rating of user u for item i truncated to a
// whole number; every other cell is zero, which means unobserved.
func NewRatingMatrix(table RatingTable, userCount, itemCount int) (*mat.Dense, error) {
	if userCount <= 0 || itemCount <= 0 {
		return nil, base.Configurationf("rating matrix must not be empty, got %dx%d", userCount, itemCount)
	}
	matrix := mat.NewDense(userCount, itemCount, nil)
	for user, ratings := range table {
		if user < 1 || user > userCount {
			return nil, base.Configurationf("user %d is out of range [1, %d]", user, userCount)
		}
		for item, rating := range ratings {
			if item < 1 || item > itemCount {
				return nil, base.Configurationf("item %d is out of range [1, %d]", item, itemCount)
			}
			matrix.Set(user-1, item-1, math.Trunc(rating))
		}
	}
	return matrix, nil
}
