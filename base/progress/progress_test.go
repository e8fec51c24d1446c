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

package progress

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpan(t *testing.T) {
	ctx, root := Start(context.Background(), "root", 2)
	assert.Equal(t, "root", root.Name())
	assert.Equal(t, StatusRunning, root.Status())
	assert.Nil(t, root.Parent())

	_, child := Start(ctx, "child", 10)
	assert.Equal(t, root, child.Parent())
	child.Add(3)
	assert.Equal(t, 3, child.Count())
	assert.Equal(t, 10, child.Total())
	child.End()
	assert.Equal(t, 10, child.Count())
	assert.Equal(t, StatusComplete, child.Status())
	assert.GreaterOrEqual(t, child.Elapsed().Nanoseconds(), int64(0))
}

func TestSpanFail(t *testing.T) {
	ctx, root := Start(context.Background(), "root", 1)
	_, first := Start(ctx, "first", 3)
	_, second := Start(ctx, "second", 3)
	assert.Equal(t, []*Span{first, second}, root.Children())

	first.End()
	second.Add(1)
	second.Fail(context.Canceled)
	assert.Equal(t, StatusFailed, second.Status())
	assert.ErrorIs(t, second.Err(), context.Canceled)
	assert.Equal(t, 1, second.Count())
	// a finished span keeps its outcome
	second.End()
	assert.Equal(t, StatusFailed, second.Status())
	elapsed := second.Elapsed()
	assert.Equal(t, elapsed, second.Elapsed())
	first.Fail(context.Canceled)
	assert.Equal(t, StatusComplete, first.Status())
	assert.NoError(t, first.Err())
}

func TestSpanWithWriter(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	ctx := WithWriter(context.Background(), buf)
	_, span := Start(ctx, "SGD.Fit", 5)
	for i := 0; i < 5; i++ {
		span.Add(1)
	}
	span.End()
	assert.Contains(t, buf.String(), "SGD.Fit")

	_, failed := Start(ctx, "Evaluator.Rank", 5)
	failed.Fail(context.Canceled)
	assert.Equal(t, StatusFailed, failed.Status())
}

func TestSpanWithoutContext(t *testing.T) {
	ctx, span := Start(nil, "orphan", 1)
	assert.Nil(t, ctx)
	span.Add(1)
	assert.Equal(t, 1, span.Count())
}
