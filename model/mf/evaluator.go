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

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/base/log"
	"github.com/gorse-io/mfrec/common/parallel"
	"github.com/gorse-io/mfrec/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

/* Evaluate Item Ranking */

// Only users in the train set are evaluated, in ascending order of their ids.
// Every train user must also have an entry in the test set.

// rankFunc returns the recommendation list of a user (1-based).
type rankFunc func(user int) ([]Recommendation, error)

func directRanker(matrix mat.Matrix, factors *Factors, n int) rankFunc {
	return func(user int) ([]Recommendation, error) {
		return Recommend(matrix, factors, user, n)
	}
}

// Recall is the number of recommended items found in the test set over the total
// number of test interactions of train users.
func Recall(train, test dataset.RatingTable, matrix mat.Matrix, factors *Factors, n int) (float64, error) {
	if err := checkTopK(n); err != nil {
		return 0, errors.Trace(err)
	}
	return recall(train, test, directRanker(matrix, factors, n))
}

// Precision is the number of recommended items found in the test set over n times
// the number of train users. The denominator counts n slots per user even when a
// user has fewer than n unrated items.
func Precision(train, test dataset.RatingTable, matrix mat.Matrix, factors *Factors, n int) (float64, error) {
	if err := checkTopK(n); err != nil {
		return 0, errors.Trace(err)
	}
	return precision(train, test, n, directRanker(matrix, factors, n))
}

// Coverage is the number of distinct recommended items over the number of distinct
// items in the train set.
func Coverage(train dataset.RatingTable, matrix mat.Matrix, factors *Factors, n int) (float64, error) {
	if err := checkTopK(n); err != nil {
		return 0, errors.Trace(err)
	}
	_, itemCount := matrix.Dims()
	return coverage(train, itemCount, directRanker(matrix, factors, n))
}

// Popularity is the mean of log(1 + 1/popularity) over all recommended items, where
// popularity is the number of train users who rated the item. Recommending an item
// nobody rated in the train set is an error.
func Popularity(train dataset.RatingTable, matrix mat.Matrix, factors *Factors, n int) (float64, error) {
	if err := checkTopK(n); err != nil {
		return 0, errors.Trace(err)
	}
	return popularity(train, n, directRanker(matrix, factors, n))
}

func countHits(user int, test dataset.RatingTable, rank rankFunc) (hit, relevant int, err error) {
	testItems, exist := test[user]
	if !exist {
		return 0, 0, base.DataConsistencyf("user %d of the train set is missing from the test set", user)
	}
	recommendations, err := rank(user)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	for _, recommendation := range recommendations {
		if _, ok := testItems[recommendation.Item+1]; ok {
			hit++
		}
	}
	return hit, len(testItems), nil
}

func recall(train, test dataset.RatingTable, rank rankFunc) (float64, error) {
	hit, all := 0, 0
	for _, user := range train.Users() {
		userHit, relevant, err := countHits(user, test, rank)
		if err != nil {
			return 0, errors.Trace(err)
		}
		hit += userHit
		all += relevant
	}
	if all == 0 {
		return 0, base.DataConsistencyf("recall is undefined without test interactions")
	}
	return float64(hit) / float64(all), nil
}

func precision(train, test dataset.RatingTable, n int, rank rankFunc) (float64, error) {
	if len(train) == 0 {
		return 0, base.DataConsistencyf("precision is undefined for an empty train set")
	}
	if n <= 0 {
		return 0, base.Configurationf("precision is undefined for n = %d", n)
	}
	hit, all := 0, 0
	for _, user := range train.Users() {
		userHit, _, err := countHits(user, test, rank)
		if err != nil {
			return 0, errors.Trace(err)
		}
		hit += userHit
		all += n
	}
	return float64(hit) / float64(all), nil
}

func coverage(train dataset.RatingTable, itemCount int, rank rankFunc) (float64, error) {
	recommended := bitset.New(uint(itemCount))
	for _, user := range train.Users() {
		recommendations, err := rank(user)
		if err != nil {
			return 0, errors.Trace(err)
		}
		for _, recommendation := range recommendations {
			recommended.Set(uint(recommendation.Item))
		}
	}
	allItems := train.Items().Cardinality()
	if allItems == 0 {
		return 0, base.DataConsistencyf("coverage is undefined for an empty train set")
	}
	return float64(recommended.Count()) / float64(allItems), nil
}

func popularity(train dataset.RatingTable, n int, rank rankFunc) (float64, error) {
	if len(train) == 0 {
		return 0, base.DataConsistencyf("popularity is undefined for an empty train set")
	}
	if n <= 0 {
		return 0, base.Configurationf("popularity is undefined for n = %d", n)
	}
	itemPopularity := train.ItemPopularity()
	ret, count := 0.0, 0
	for _, user := range train.Users() {
		recommendations, err := rank(user)
		if err != nil {
			return 0, errors.Trace(err)
		}
		for _, recommendation := range recommendations {
			users, exist := itemPopularity[recommendation.Item+1]
			if !exist {
				return 0, base.DataConsistencyf("recommended item %d was never rated in the train set", recommendation.Item+1)
			}
			ret += math.Log1p(1 / float64(users))
			count++
		}
	}
	if count == 0 {
		return 0, base.DataConsistencyf("popularity is undefined: every train user has rated every item")
	}
	return ret / float64(count), nil
}

type Score struct {
	Recall     float64
	Precision  float64
	Coverage   float64
	Popularity float64
}

// Evaluator computes all metrics from one recommendation list per train user.
// Lists are computed once and shared by every metric.
type Evaluator struct {
	train   dataset.RatingTable
	test    dataset.RatingTable
	matrix  mat.Matrix
	factors *Factors
	topK    int
	jobs    int
	ranks   map[int][]Recommendation
}

func NewEvaluator(train, test dataset.RatingTable, matrix mat.Matrix, factors *Factors, topK, jobs int) *Evaluator {
	return &Evaluator{
		train:   train,
		test:    test,
		matrix:  matrix,
		factors: factors,
		topK:    topK,
		jobs:    jobs,
	}
}

// Rank computes recommendation lists of all train users. It is called by Evaluate
// when lists have not been computed yet.
func (e *Evaluator) Rank(ctx context.Context) error {
	users := e.train.Users()
	lists := make([][]Recommendation, len(users))
	err := parallel.Parallel(ctx, len(users), e.jobs, func(_, jobId int) error {
		var err error
		lists[jobId], err = Recommend(e.matrix, e.factors, users[jobId], e.topK)
		return errors.Trace(err)
	})
	if err != nil {
		return errors.Trace(err)
	}
	e.ranks = make(map[int][]Recommendation, len(users))
	for i, user := range users {
		e.ranks[user] = lists[i]
	}
	return nil
}

func (e *Evaluator) cachedRanker(user int) ([]Recommendation, error) {
	recommendations, exist := e.ranks[user]
	if !exist {
		return Recommend(e.matrix, e.factors, user, e.topK)
	}
	return recommendations, nil
}

// Evaluate computes recall, precision, coverage and popularity.
func (e *Evaluator) Evaluate(ctx context.Context) (Score, error) {
	if err := checkTopK(e.topK); err != nil {
		return Score{}, errors.Trace(err)
	}
	if e.ranks == nil {
		if err := e.Rank(ctx); err != nil {
			return Score{}, errors.Trace(err)
		}
	}
	var (
		score Score
		err   error
	)
	if score.Recall, err = recall(e.train, e.test, e.cachedRanker); err != nil {
		return Score{}, errors.Trace(err)
	}
	if score.Precision, err = precision(e.train, e.test, e.topK, e.cachedRanker); err != nil {
		return Score{}, errors.Trace(err)
	}
	_, itemCount := e.matrix.Dims()
	if score.Coverage, err = coverage(e.train, itemCount, e.cachedRanker); err != nil {
		return Score{}, errors.Trace(err)
	}
	if score.Popularity, err = popularity(e.train, e.topK, e.cachedRanker); err != nil {
		return Score{}, errors.Trace(err)
	}
	log.Logger().Info("evaluate complete",
		zap.Int("top_k", e.topK),
		zap.Int("n_users", len(e.train)),
		zap.Float64("recall", score.Recall),
		zap.Float64("precision", score.Precision),
		zap.Float64("coverage", score.Coverage),
		zap.Float64("popularity", score.Popularity))
	return score, nil
}
