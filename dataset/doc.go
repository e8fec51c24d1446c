// Package dataset loads MovieLens style rating logs into rating tables and
// converts them into dense rating matrices.
package dataset
