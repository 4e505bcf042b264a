// Package tdee estimates a person's Total Daily Energy Expenditure with a
// scalar Kalman filter.
//
// The hidden state is the TDEE in kcal/day. Each observation is a daily
// weight plus the calories consumed since the previous weigh-in; the
// filter compares the observed weight change against the change implied
// by (consumed − TDEE) / 7700 kg and corrects the TDEE in kcal-space.
//
// Key types: Estimator, KalmanState, Config.
//
// An Estimator is owned by one profile. It performs no locking; callers
// must serialize Update calls on a given instance.
package tdee
