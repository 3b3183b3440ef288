package infill

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Method is one member of the closed interpolation set. Fitting state lives
// in the predictor a call to newPredictor returns, so Method values are
// stateless and shareable.
type Method struct {
	name         string
	minPoints    int
	newPredictor func() interp.FittablePredictor
}

// Name returns the method's registry name.
func (m Method) Name() string { return m.name }

// MinPoints returns the fewest valid observations the method can fit.
func (m Method) MinPoints() int { return m.minPoints }

// Linear interpolates straight lines between bounding observations.
func Linear() Method {
	return Method{
		name:         "linear",
		minPoints:    2,
		newPredictor: func() interp.FittablePredictor { return &interp.PiecewiseLinear{} },
	}
}

// Akima fits an Akima spline, which resists the oscillations plain cubic
// splines develop near outliers. Needs a decent number of support points.
func Akima() Method {
	return Method{
		name:         "akima",
		minPoints:    5,
		newPredictor: func() interp.FittablePredictor { return &interp.AkimaSpline{} },
	}
}

// Pchip fits a monotonicity-preserving piecewise cubic (Fritsch-Butland),
// which never overshoots the bounding observations.
func Pchip() Method {
	return Method{
		name:         "pchip",
		minPoints:    2,
		newPredictor: func() interp.FittablePredictor { return &interp.FritschButland{} },
	}
}

// ByName resolves a configured method name. The set is closed; unknown names
// are an error.
func ByName(name string) (Method, error) {
	switch name {
	case "linear":
		return Linear(), nil
	case "akima":
		return Akima(), nil
	case "pchip":
		return Pchip(), nil
	default:
		return Method{}, fmt.Errorf("unknown infill method %q", name)
	}
}
