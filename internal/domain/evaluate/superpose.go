package evaluate

import (
	"math"

	"github.com/okian/foldboard/internal/domain/structure"
)

type vec = structure.Vec3

// Transform is a rigid motion: p -> R*p + T.
type Transform struct {
	R [3][3]float64
	T vec
}

// Identity is the transform that leaves points unchanged.
var Identity = Transform{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// Apply moves p.
func (t Transform) Apply(p vec) vec {
	return vec{
		t.R[0][0]*p[0] + t.R[0][1]*p[1] + t.R[0][2]*p[2] + t.T[0],
		t.R[1][0]*p[0] + t.R[1][1]*p[1] + t.R[1][2]*p[2] + t.T[1],
		t.R[2][0]*p[0] + t.R[2][1]*p[1] + t.R[2][2]*p[2] + t.T[2],
	}
}

// ApplyAll moves every point.
func (t Transform) ApplyAll(ps []vec) []vec {
	out := make([]vec, len(ps))
	for i, p := range ps {
		out[i] = t.Apply(p)
	}
	return out
}

func centroid(ps []vec) vec {
	var c vec
	for _, p := range ps {
		c = c.Add(p)
	}
	return c.Scale(1 / float64(len(ps)))
}

// Superpose returns the proper rotation and translation minimizing the RMSD of
// mobile onto target (Horn's quaternion method, so reflections never occur).
// Both slices must have the same non-zero length.
func Superpose(mobile, target []vec) Transform {
	if len(mobile) == 0 || len(mobile) != len(target) {
		return Identity
	}
	cm, ct := centroid(mobile), centroid(target)

	var s [3][3]float64
	for i := range mobile {
		a := mobile[i].Sub(cm)
		b := target[i].Sub(ct)
		for x := 0; x < 3; x++ {
			for y := 0; y < 3; y++ {
				s[x][y] += a[x] * b[y]
			}
		}
	}
	sxx, sxy, sxz := s[0][0], s[0][1], s[0][2]
	syx, syy, syz := s[1][0], s[1][1], s[1][2]
	szx, szy, szz := s[2][0], s[2][1], s[2][2]

	n := [4][4]float64{
		{sxx + syy + szz, syz - szy, szx - sxz, sxy - syx},
		{syz - szy, sxx - syy - szz, sxy + syx, szx + sxz},
		{szx - sxz, sxy + syx, -sxx + syy - szz, syz + szy},
		{sxy - syx, szx + sxz, syz + szy, -sxx - syy + szz},
	}
	vals, vecs := jacobi4(n)
	best := 0
	for i := 1; i < 4; i++ {
		if vals[i] > vals[best] {
			best = i
		}
	}
	q0, q1, q2, q3 := vecs[0][best], vecs[1][best], vecs[2][best], vecs[3][best]

	var t Transform
	t.R = [3][3]float64{
		{q0*q0 + q1*q1 - q2*q2 - q3*q3, 2 * (q1*q2 - q0*q3), 2 * (q1*q3 + q0*q2)},
		{2 * (q1*q2 + q0*q3), q0*q0 - q1*q1 + q2*q2 - q3*q3, 2 * (q2*q3 - q0*q1)},
		{2 * (q1*q3 - q0*q2), 2 * (q2*q3 + q0*q1), q0*q0 - q1*q1 - q2*q2 + q3*q3},
	}
	rc := Transform{R: t.R}.Apply(cm)
	t.T = ct.Sub(rc)
	return t
}

// jacobi4 diagonalizes a symmetric 4x4 matrix. Eigenvectors are the columns of vecs.
func jacobi4(a [4][4]float64) ([4]float64, [4][4]float64) {
	var v [4][4]float64
	for i := 0; i < 4; i++ {
		v[i][i] = 1
	}
	for sweep := 0; sweep < 64; sweep++ {
		off := 0.0
		for p := 0; p < 4; p++ {
			for q := p + 1; q < 4; q++ {
				off += a[p][q] * a[p][q]
			}
		}
		if off < 1e-22 {
			break
		}
		for p := 0; p < 4; p++ {
			for q := p + 1; q < 4; q++ {
				if math.Abs(a[p][q]) < 1e-300 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c
				for k := 0; k < 4; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < 4; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < 4; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}
	return [4]float64{a[0][0], a[1][1], a[2][2], a[3][3]}, v
}

// RMSD is the root mean square distance between paired points.
func RMSD(a, b []vec) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i].Dist2(b[i])
	}
	return math.Sqrt(sum / float64(n))
}
