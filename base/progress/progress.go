// Copyright 2023 gorse Project Authors
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
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

type spanKeyType string

var (
	spanKeyName   = spanKeyType(uuid.New().String())
	writerKeyName = spanKeyType(uuid.New().String())
)

type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// WithWriter returns a context in which spans render a progress bar to w.
func WithWriter(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, writerKeyName, w)
}

type Span struct {
	name     string
	status   Status
	total    int
	count    int
	err      error
	start    time.Time
	finish   time.Time
	parent   *Span
	children []*Span
	bar      *progressbar.ProgressBar
	mu       sync.Mutex
}

// Start creates a span. The span becomes a child of the span carried by ctx, if any.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := &Span{
		name:   name,
		status: StatusRunning,
		total:  total,
		start:  time.Now(),
	}
	if ctx == nil {
		return nil, span
	}
	if parent, ok := ctx.Value(spanKeyName).(*Span); ok {
		span.parent = parent
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	}
	if w, ok := ctx.Value(writerKeyName).(io.Writer); ok && w != nil {
		span.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(name),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish())
	}
	return context.WithValue(ctx, spanKeyName, span), span
}

func (s *Span) Add(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count += n
	if s.bar != nil {
		_ = s.bar.Add(n)
	}
}

// End marks the span complete. It has no effect on a span that already ended.
func (s *Span) End() {
	s.finishWith(StatusComplete, nil)
}

// Fail marks the span failed with err. It has no effect on a span that already ended.
func (s *Span) Fail(err error) {
	s.finishWith(StatusFailed, err)
}

func (s *Span) finishWith(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	if status == StatusComplete {
		s.count = s.total
	}
	s.status = status
	s.err = err
	s.finish = time.Now()
	if s.bar != nil {
		if status == StatusComplete {
			_ = s.bar.Finish()
		} else {
			_ = s.bar.Exit()
		}
	}
}

func (s *Span) Name() string {
	return s.name
}

func (s *Span) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error the span failed with.
func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Span) Total() int {
	return s.total
}

func (s *Span) Parent() *Span {
	return s.parent
}

// Children returns spans started under this span, in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Elapsed returns the running time of the span, or its total time once ended.
func (s *Span) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return s.finish.Sub(s.start)
	}
	return time.Since(s.start)
}
