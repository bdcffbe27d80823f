package gonumExtensions

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ones returns a (m by n) matrix filled with ones
func Ones(m, n int) *mat.Dense {
	return Full(m, n, 1.)
}

// Full returns a (m by n) matrix filled with value
func Full(m, n int, value float64) *mat.Dense {
	data := make([]float64, m*n)
	for index := range data {
		data[index] = value
	}
	return mat.NewDense(m, n, data)
}

// Eye returns a (m by n) band matrix with ones on the k-th diagonal. k = 0 is
// the main diagonal, k > 0 above and k < 0 below it.
func Eye(m, n, k int) *mat.Dense {
	res := mat.NewDense(m, n, nil)
	for row := 0; row < m; row++ {
		col := row + k
		if col >= 0 && col < n {
			res.Set(row, col, 1.)
		}
	}
	return res
}

// Identity is Eye(n, n, 0).
func Identity(n int) *mat.Dense {
	return Eye(n, n, 0)
}

// NANORINF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// IsLowerTriangular reports whether every entry above the main diagonal is
// exactly zero.
func IsLowerTriangular(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := row + 1; col < n; col++ {
			if matrix.At(row, col) != 0 {
				return false
			}
		}
	}
	return true
}

// LowerTriangle copies the lower triangle (diagonal included) of a square
// matrix into a TriDense. Entries above the diagonal are ignored.
func LowerTriangle(matrix mat.Matrix) *mat.TriDense {
	n, c := matrix.Dims()
	if n != c {
		panic(errors.New("LowerTriangle requires a square matrix"))
	}
	res := mat.NewTriDense(n, mat.Lower, nil)
	for row := 0; row < n; row++ {
		for col := 0; col <= row; col++ {
			res.SetTri(row, col, matrix.At(row, col))
		}
	}
	return res
}

// Column reshapes a (batch by size) matrix into a (batch*size by 1) column,
// row major. The result does not share memory with u.
func Column(u mat.Matrix) *mat.Dense {
	r, c := u.Dims()
	res := mat.NewDense(r*c, 1, nil)
	for row := 0; row < r; row++ {
		for col := 0; col < c; col++ {
			res.Set(row*c+col, 0, u.At(row, col))
		}
	}
	return res
}

// PadFirst places every entry of u (batch by size) in coordinate 0 of a
// vector of length order, giving a (batch*size by order) matrix with zeros
// elsewhere.
func PadFirst(u mat.Matrix, order int) *mat.Dense {
	r, c := u.Dims()
	res := mat.NewDense(r*c, order, nil)
	for row := 0; row < r; row++ {
		for col := 0; col < c; col++ {
			res.Set(row*c+col, 0, u.At(row, col))
		}
	}
	return res
}

// Flatten reshapes a (batch*size by order) matrix into (batch by size*order).
func Flatten(m mat.Matrix, batch int) *mat.Dense {
	r, c := m.Dims()
	if batch <= 0 || r%batch != 0 {
		panic(errors.New("Flatten: rows not divisible by batch"))
	}
	size := r / batch
	res := mat.NewDense(batch, size*c, nil)
	for row := 0; row < r; row++ {
		b, i := row/size, row%size
		for col := 0; col < c; col++ {
			res.Set(b, i*c+col, m.At(row, col))
		}
	}
	return res
}

// Columns copies the columns [from, to) of m.
func Columns(m mat.Matrix, from, to int) *mat.Dense {
	r, _ := m.Dims()
	res := mat.NewDense(r, to-from, nil)
	for row := 0; row < r; row++ {
		for col := from; col < to; col++ {
			res.Set(row, col-from, m.At(row, col))
		}
	}
	return res
}

// Concat stacks matrices with equal row counts side by side. Nil entries and
// entries without columns are skipped, which is how optional pathways are
// left out of a pre-activation. Returns nil if nothing remains.
func Concat(parts ...mat.Matrix) *mat.Dense {
	rows, cols := -1, 0
	for _, part := range parts {
		if part == nil {
			continue
		}
		r, c := part.Dims()
		if c == 0 {
			continue
		}
		if rows >= 0 && r != rows {
			panic(errors.New("Concat: row counts don't match"))
		}
		rows = r
		cols += c
	}
	if rows < 0 {
		return nil
	}
	res := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, part := range parts {
		if part == nil {
			continue
		}
		_, c := part.Dims()
		if c == 0 {
			continue
		}
		res.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(part)
		offset += c
	}
	return res
}

// Linear returns x w^T, the batched application of the operator w to every
// row of x.
func Linear(x, w mat.Matrix) *mat.Dense {
	var res mat.Dense
	res.Mul(x, w.T())
	return &res
}
