package survey

import "math"

// AffineMatrix is a 2D affine transform:
//
//	x' = A*x + B*y + Tx
//	y' = C*x + D*y + Ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// singularDet is the determinant below which a matrix is treated as singular
const singularDet = 1e-12

// Identity leaves points unchanged
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, D: 1}
}

// Translate moves points by (tx, ty)
func Translate(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, D: 1, Tx: tx, Ty: ty}
}

// Scale stretches points away from the origin
func Scale(sx, sy float64) AffineMatrix {
	return AffineMatrix{A: sx, D: sy}
}

// Apply maps p through m
func (m AffineMatrix) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// Mul returns m composed with n: the result applies n first, then m.
func (m AffineMatrix) Mul(n AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m.A*n.A + m.B*n.C,
		B:  m.A*n.B + m.B*n.D,
		Tx: m.A*n.Tx + m.B*n.Ty + m.Tx,
		C:  m.C*n.A + m.D*n.C,
		D:  m.C*n.B + m.D*n.D,
		Ty: m.C*n.Tx + m.D*n.Ty + m.Ty,
	}
}

// Determinant of the linear part
func (m AffineMatrix) Determinant() float64 {
	return m.A*m.D - m.B*m.C
}

// Inverse returns the transform undoing m. ok is false for a singular m,
// e.g. a viewport scaled to zero.
func (m AffineMatrix) Inverse() (inv AffineMatrix, ok bool) {
	det := m.Determinant()
	if math.Abs(det) < singularDet {
		return Identity(), false
	}

	return AffineMatrix{
		A:  m.D / det,
		B:  -m.B / det,
		Tx: (m.B*m.Ty - m.D*m.Tx) / det,
		C:  -m.C / det,
		D:  m.A / det,
		Ty: (m.C*m.Tx - m.A*m.Ty) / det,
	}, true
}
