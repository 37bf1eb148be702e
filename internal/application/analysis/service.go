// Package analysis scores a driving trip for eco-efficiency.
package analysis

import (
	"errors"
	"math"
	"time"

	ozzo "github.com/go-ozzo/ozzo-validation"
)

// DrivingData is one trip's sampled telemetry: speed in km/h, acceleration and braking in m/s².
type DrivingData struct {
	Speed        []float64 `json:"speed"`
	Acceleration []float64 `json:"acceleration"`
	Braking      []float64 `json:"braking"`
	Timestamp    time.Time `json:"timestamp"`
	TripID       string    `json:"trip_id"`
}

func (d *DrivingData) Validate() error {
	return ozzo.ValidateStruct(d,
		ozzo.Field(&d.Speed, ozzo.Required, ozzo.By(nonNegativeSeries)),
		ozzo.Field(&d.Acceleration, ozzo.Required, ozzo.By(finiteSeries)),
		ozzo.Field(&d.Braking, ozzo.Required, ozzo.By(nonNegativeSeries)),
		ozzo.Field(&d.TripID, ozzo.Required, ozzo.Length(1, 64)),
	)
}

// maxSample bounds every reading so sums and squared deviations stay finite.
const maxSample = 1e6

var (
	errNotFinite = errors.New("must contain only finite numbers")
	errTooLarge  = errors.New("must not contain values larger than 1e6 in magnitude")
	errNegative  = errors.New("must not contain negative values")
)

func finiteSeries(value interface{}) error {
	xs, _ := value.([]float64)
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errNotFinite
		}
		if math.Abs(x) > maxSample {
			return errTooLarge
		}
	}
	return nil
}

func nonNegativeSeries(value interface{}) error {
	if err := finiteSeries(value); err != nil {
		return err
	}
	xs, _ := value.([]float64)
	for _, x := range xs {
		if x < 0 {
			return errNegative
		}
	}
	return nil
}

type Analysis struct {
	AverageSpeed            float64  `json:"average_speed"`
	AverageAcceleration     float64  `json:"average_acceleration"`
	AverageBraking          float64  `json:"average_braking"`
	SpeedVariability        float64  `json:"speed_variability"`
	AccelerationVariability float64  `json:"acceleration_variability"`
	BrakingVariability      float64  `json:"braking_variability"`
	Recommendations         []string `json:"recommendations"`
}

type EcoScore struct {
	EcoScore  float64   `json:"eco_score"`
	TripID    string    `json:"trip_id"`
	Timestamp time.Time `json:"timestamp"`
	Analysis  Analysis  `json:"analysis"`
}

// Scoring bounds. The score starts at maxScore and loses points for speed outside the efficient
// band, jerky speed, hard acceleration and hard braking; it never leaves [minScore, maxScore].
const (
	minScore          = 40.0
	maxScore          = 90.0
	efficientSpeedLow = 45.0
	efficientSpeedMax = 55.0
	hardAcceleration  = 2.5
	hardBraking       = 3.0
)

const (
	tipSteadySpeed  = "Maintain steady speed between 45-55 km/h"
	tipRegenBraking = "Use regenerative braking more effectively"
	tipAcceleration = "Avoid sudden acceleration"
	tipKeepItUp     = "Great trip, keep driving this smoothly"
)

type Service struct {
	Now func() time.Time
}

// Analyze is deterministic: the same telemetry always yields the same score.
func (s *Service) Analyze(d DrivingData) (*EcoScore, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	avgSpeed := mean(d.Speed)
	avgAccel := mean(d.Acceleration)
	avgBrake := mean(d.Braking)
	speedVar := variability(d.Speed)
	accelVar := variability(d.Acceleration)
	brakeVar := variability(d.Braking)

	score := maxScore
	var tips []string
	if avgSpeed < efficientSpeedLow || avgSpeed > efficientSpeedMax || speedVar > 0.25 {
		gap := math.Max(efficientSpeedLow-avgSpeed, avgSpeed-efficientSpeedMax)
		score -= math.Max(gap, 0)*0.4 + speedVar*20
		tips = append(tips, tipSteadySpeed)
	}
	if peak := maxAbs(d.Acceleration); peak > hardAcceleration || accelVar > 0.5 {
		score -= math.Max(peak-hardAcceleration, 0)*4 + accelVar*5
		tips = append(tips, tipAcceleration)
	}
	if peak := maxAbs(d.Braking); peak > hardBraking || brakeVar > 0.5 {
		score -= math.Max(peak-hardBraking, 0)*4 + brakeVar*5
		tips = append(tips, tipRegenBraking)
	}
	if len(tips) == 0 {
		tips = append(tips, tipKeepItUp)
	}
	score = math.Min(maxScore, math.Max(minScore, score))

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return &EcoScore{
		EcoScore:  round2(score),
		TripID:    d.TripID,
		Timestamp: now().UTC(),
		Analysis: Analysis{
			AverageSpeed:            round2(avgSpeed),
			AverageAcceleration:     round2(avgAccel),
			AverageBraking:          round2(avgBrake),
			SpeedVariability:        round2(speedVar),
			AccelerationVariability: round2(accelVar),
			BrakingVariability:      round2(brakeVar),
			Recommendations:         tips,
		},
	}, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// variability is the coefficient of variation (stddev / |mean|), 0 for a constant or zero-mean series.
// A mean within 1e-9 of zero counts as zero.
func variability(xs []float64) float64 {
	m := mean(xs)
	if math.Abs(m) < 1e-9 {
		return 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss/float64(len(xs))) / math.Abs(m)
}

func maxAbs(xs []float64) float64 {
	out := 0.0
	for _, x := range xs {
		out = math.Max(out, math.Abs(x))
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
