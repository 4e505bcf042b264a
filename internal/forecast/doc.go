// Package forecast projects a body-weight history forward with honest
// uncertainty bounds.
//
// The model is chosen from the number of observations n:
//
//	n >= 30   ARIMA(1,1,1), conditional sum of squares fit
//	14..29    Holt exponential smoothing with additive trend
//	7..13     ordinary least squares against elapsed days
//	n < 7     straight line through the first and last points
//
// A tier that cannot be fitted hands over to the next simpler one. The
// tier actually used is reported in Result.ModelUsed.
package forecast
