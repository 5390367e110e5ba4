package lna

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BroadcastParams overwrites the leading len(params) columns of every row
// of the parameter table with params. The trailing columns (constants,
// time-varying covariates, compartment volumes) are left untouched.
func BroadcastParams(table *mat.Dense, params []float64) error {
	rows, cols := table.Dims()
	if len(params) > cols {
		return fmt.Errorf("broadcast %d parameters into %d columns: %w", len(params), cols, ErrDimension)
	}
	for i := 0; i < rows; i++ {
		copy(table.RawRowView(i)[:len(params)], params)
	}
	return nil
}
