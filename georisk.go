package riskgate

import (
	"math"
	"time"
)

const (
	earthRadiusKM = 6371.0

	// Elapsed time is floored before computing speed so a near-simultaneous
	// pair of samples cannot divide by zero.
	minElapsedHours = 0.01

	impossibleSpeedKMH    = 900.0
	impossibleDistanceKM  = 500.0
	locationChangeMinKM   = 50.0
	impossibleLikelihood  = 5
	impossibleImpact      = 5
	locationChangeMinLike = 3
	locationChangeMinImp  = 2
)

// TravelClass is the classification of movement between two login samples.
type TravelClass uint8

const (
	// TravelNone means the samples carry no geographic signal.
	TravelNone TravelClass = iota
	// TravelLocationChange means a significant but physically plausible move.
	TravelLocationChange
	// TravelImpossible means the implied speed and distance cannot be real.
	TravelImpossible
)

// TravelAssessment is the result of comparing two location+time samples.
type TravelAssessment struct {
	Class        TravelClass
	DistanceKM   float64
	SpeedKMH     float64
	ElapsedHours float64
}

// HaversineKM returns the great-circle distance in kilometers between two
// coordinates. Symmetric in its arguments; zero for identical points.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// AssessTravel compares the previous and current login samples and
// classifies the implied movement. Both thresholds are strict: exactly
// 900 km/h or exactly 500 km is still plausible.
func AssessTravel(prevLat, prevLon float64, prevAt time.Time, curLat, curLon float64, curAt time.Time) TravelAssessment {
	distance := HaversineKM(prevLat, prevLon, curLat, curLon)

	elapsed := curAt.Sub(prevAt).Hours()
	if elapsed < minElapsedHours {
		elapsed = minElapsedHours
	}
	speed := distance / elapsed

	return TravelAssessment{
		Class:        classifyTravel(distance, speed),
		DistanceKM:   distance,
		SpeedKMH:     speed,
		ElapsedHours: elapsed,
	}
}

func classifyTravel(distanceKM, speedKMH float64) TravelClass {
	if speedKMH > impossibleSpeedKMH && distanceKM > impossibleDistanceKM {
		return TravelImpossible
	}
	if distanceKM > locationChangeMinKM {
		return TravelLocationChange
	}
	return TravelNone
}
