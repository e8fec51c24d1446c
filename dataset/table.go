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
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// RatingTable maps a user id to the ratings the user gave, keyed by item id.
// Ids are the 1-based identifiers found in the rating logs. A table is not
// modified after it is loaded.
type RatingTable map[int]map[int]float64

func NewRatingTable() RatingTable {
	return make(RatingTable)
}

// Add records a rating. A later rating for the same pair replaces the earlier one.
func (t RatingTable) Add(user, item int, rating float64) {
	if _, exist := t[user]; !exist {
		t[user] = make(map[int]float64)
	}
	t[user][item] = rating
}

// Users returns user ids in ascending order.
func (t RatingTable) Users() []int {
	users := lo.Keys(t)
	slices.Sort(users)
	return users
}

// Count returns the number of (user, item) ratings.
func (t RatingTable) Count() int {
	return lo.SumBy(lo.Values(t), func(items map[int]float64) int {
		return len(items)
	})
}

func (t RatingTable) MaxUser() int {
	return lo.Max(lo.Keys(t))
}

func (t RatingTable) MaxItem() int {
	maxItem := 0
	for _, items := range t {
		maxItem = max(maxItem, lo.Max(lo.Keys(items)))
	}
	return maxItem
}

// Items returns the set of items rated by any user.
func (t RatingTable) Items() mapset.Set[int] {
	items := mapset.NewThreadUnsafeSet[int]()
	for _, ratings := range t {
		for item := range ratings {
			items.Add(item)
		}
	}
	return items
}

// ItemPopularity counts, for each item, the number of distinct users who rated it.
func (t RatingTable) ItemPopularity() map[int]int {
	popularity := make(map[int]int)
	for _, ratings := range t {
		for item := range ratings {
			popularity[item]++
		}
	}
	return popularity
}
