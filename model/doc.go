// Package model holds the hyper-parameter container and the base type shared
// by recommendation models. Concrete models live in sub-packages.
package model
