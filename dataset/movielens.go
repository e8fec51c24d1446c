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
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/mfrec/base"
	"github.com/gorse-io/mfrec/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// Dataset is a MovieLens style dataset split into train and test ratings.
type Dataset struct {
	Train  RatingTable
	Test   RatingTable
	Titles map[int]string
	// Timestamp is the time of the latest rating in either split.
	Timestamp time.Time
}

// CountItems returns the number of items in the catalog.
func (d *Dataset) CountItems() int {
	return len(d.Titles)
}

// LoadMovieLens loads the item catalog and the train/test rating logs found in dir.
func LoadMovieLens(dir, catalog, train, test string) (*Dataset, error) {
	titles, err := LoadCatalog(filepath.Join(dir, catalog))
	if err != nil {
		return nil, errors.Trace(err)
	}
	trainSet, trainTime, err := LoadRatings(filepath.Join(dir, train))
	if err != nil {
		return nil, errors.Trace(err)
	}
	testSet, testTime, err := LoadRatings(filepath.Join(dir, test))
	if err != nil {
		return nil, errors.Trace(err)
	}
	d := &Dataset{
		Train:     trainSet,
		Test:      testSet,
		Titles:    titles,
		Timestamp: trainTime,
	}
	if testTime.After(d.Timestamp) {
		d.Timestamp = testTime
	}
	log.Logger().Info("load movielens",
		zap.String("dir", dir),
		zap.Int("n_items", d.CountItems()),
		zap.Int("n_train_users", len(trainSet)),
		zap.Int("n_train_ratings", trainSet.Count()),
		zap.Int("n_test_users", len(testSet)),
		zap.Int("n_test_ratings", testSet.Count()),
		zap.Time("timestamp", d.Timestamp))
	return d, nil
}

// LoadCatalog reads a latin-1 encoded, pipe delimited item catalog (id|title|...).
func LoadCatalog(path string) (map[int]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return parseCatalog(path, charmap.ISO8859_1.NewDecoder().Reader(file))
}

func parseCatalog(name string, r io.Reader) (map[int]string, error) {
	titles := make(map[int]string)
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			return nil, base.DataConsistencyf("%s:%d: expect at least 2 fields, got %d", name, lineNumber, len(fields))
		}
		itemId, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, base.DataConsistencyf("%s:%d: invalid item id %q", name, lineNumber, fields[0])
		}
		titles[itemId] = fields[1]
	}
	return titles, errors.Trace(scanner.Err())
}

// LoadRatings reads a tab delimited rating log (user, item, rating, timestamp).
// It returns the ratings and the latest timestamp.
func LoadRatings(path string) (RatingTable, time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, errors.Trace(err)
	}
	defer file.Close()
	return parseRatings(path, file)
}

func parseRatings(name string, r io.Reader) (RatingTable, time.Time, error) {
	table := NewRatingTable()
	var latest time.Time
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, time.Time{}, base.DataConsistencyf("%s:%d: expect 4 fields, got %d", name, lineNumber, len(fields))
		}
		userId, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, time.Time{}, base.DataConsistencyf("%s:%d: invalid user id %q", name, lineNumber, fields[0])
		}
		itemId, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, time.Time{}, base.DataConsistencyf("%s:%d: invalid item id %q", name, lineNumber, fields[1])
		}
		rating, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, time.Time{}, base.DataConsistencyf("%s:%d: invalid rating %q", name, lineNumber, fields[2])
		}
		timestamp, err := parseTimestamp(fields[3])
		if err != nil {
			return nil, time.Time{}, base.DataConsistencyf("%s:%d: invalid timestamp %q", name, lineNumber, fields[3])
		}
		if timestamp.After(latest) {
			latest = timestamp
		}
		table.Add(userId, itemId, rating)
	}
	if err := scanner.Err(); err != nil {
		return nil, time.Time{}, errors.Trace(err)
	}
	return table, latest, nil
}

// parseTimestamp accepts unix seconds, as written by MovieLens, or any layout
// dateparse understands.
func parseTimestamp(s string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(seconds, 0), nil
	}
	return dateparse.ParseAny(s)
}
