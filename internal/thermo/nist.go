package thermo

import "math"

// NIST ITS-90 type K reference functions, see
// https://srdata.nist.gov/its90/download/type_k.tab. The tables are kept
// literal so readings stay identical to historical data.

// coldJunctionNegative converts -270 °C..0 °C to mV.
var coldJunctionNegative = [...]float64{
	0.000000000000e+00,
	0.394501280250e-01,
	0.236223735980e-04,
	-0.328589067840e-06,
	-0.499048287770e-08,
	-0.675090591730e-10,
	-0.574103274280e-12,
	-0.310888728940e-14,
	-0.104516093650e-16,
	-0.198892668780e-19,
	-0.163226974860e-22,
}

// coldJunctionPositive converts 0 °C..1372 °C to mV.
var coldJunctionPositive = [...]float64{
	-0.176004136860e-01,
	0.389212049750e-01,
	0.185587700320e-04,
	-0.994575928740e-07,
	0.318409457190e-09,
	-0.560728448890e-12,
	0.560750590590e-15,
	-0.320207200030e-18,
	0.971511471520e-22,
	-0.121047212750e-25,
}

// coldJunctionExponential holds a0, a1, a2 of the a0·exp(a1·(T−a2)²) term.
var coldJunctionExponential = [...]float64{
	0.118597600000e+00,
	-0.118343200000e-03,
	0.126968600000e+03,
}

// inverseNegative converts -5.891 mV..0 mV to °C.
var inverseNegative = [...]float64{
	0.0000000e+00,
	2.5173462e+01,
	-1.1662878e+00,
	-1.0833638e+00,
	-8.9773540e-01,
	-3.7342377e-01,
	-8.6632643e-02,
	-1.0450598e-02,
	-5.1920577e-04,
}

// inverseLow converts 0 mV..20.644 mV to °C.
var inverseLow = [...]float64{
	0.000000e+00,
	2.508355e+01,
	7.860106e-02,
	-2.503131e-01,
	8.315270e-02,
	-1.228034e-02,
	9.804036e-04,
	-4.413030e-05,
	1.057734e-06,
	-1.052755e-08,
}

// inverseHigh converts 20.644 mV..54.886 mV to °C.
var inverseHigh = [...]float64{
	-1.318058e+02,
	4.830222e+01,
	-1.646031e+00,
	5.464731e-02,
	-9.650715e-04,
	8.802193e-06,
	-3.110810e-08,
}

// inverseBreakpoint is the mV boundary between inverseLow and inverseHigh.
const inverseBreakpoint = 20.644

// polynomial sums c[i]·x^i term by term in ascending order.
func polynomial(c []float64, x float64) float64 {
	sum := 0.0
	for i := range c {
		sum += c[i] * math.Pow(x, float64(i))
	}
	return sum
}

// ColdJunctionVoltage returns the type K EMF in mV equivalent to a
// reference junction at t °C.
func ColdJunctionVoltage(t float64) float64 {
	if t < 0 {
		return polynomial(coldJunctionNegative[:], t)
	}
	v := polynomial(coldJunctionPositive[:], t)
	a := coldJunctionExponential
	v += a[0] * math.Exp(a[1]*math.Pow(t-a[2], 2))
	return v
}

// VoltageToTemperature applies the inverse type K polynomial to v mV.
func VoltageToTemperature(v float64) float64 {
	switch {
	case v < 0:
		return polynomial(inverseNegative[:], v)
	case v < inverseBreakpoint:
		return polynomial(inverseLow[:], v)
	default:
		return polynomial(inverseHigh[:], v)
	}
}
