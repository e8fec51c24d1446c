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

package base

import (
	"github.com/juju/errors"
)

// Error classes. Callers attach details with errors.Annotatef and test the class with errors.Is.
var (
	// ErrConfiguration means the run was set up with values that cannot describe the data,
	// e.g. a rating matrix smaller than the identifier range or a non-positive latent rank.
	ErrConfiguration = errors.New("configuration error")
	// ErrDataConsistency means the train and test tables disagree with each other.
	ErrDataConsistency = errors.New("data consistency error")
	// ErrNumericalInstability means the training loss is no longer finite.
	ErrNumericalInstability = errors.New("numerical instability")
)

// Configurationf returns an ErrConfiguration annotated with a formatted message.
func Configurationf(format string, args ...any) error {
	return errors.Annotatef(ErrConfiguration, format, args...)
}

// DataConsistencyf returns an ErrDataConsistency annotated with a formatted message.
func DataConsistencyf(format string, args ...any) error {
	return errors.Annotatef(ErrDataConsistency, format, args...)
}

// NumericalInstabilityf returns an ErrNumericalInstability annotated with a formatted message.
func NumericalInstabilityf(format string, args ...any) error {
	return errors.Annotatef(ErrNumericalInstability, format, args...)
}
