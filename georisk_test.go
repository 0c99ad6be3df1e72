package riskgate

import (
	"math"
	"testing"
	"time"
)

func TestHaversineZeroForIdenticalPoints(t *testing.T) {
	if d := HaversineKM(52.52, 13.405, 52.52, 13.405); d != 0 {
		t.Fatalf("distance between identical points = %f, want 0", d)
	}
}

func TestHaversineSymmetry(t *testing.T) {
	// Berlin and Tokyo.
	ab := HaversineKM(52.52, 13.405, 35.6762, 139.6503)
	ba := HaversineKM(35.6762, 139.6503, 52.52, 13.405)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("asymmetric distance: %f vs %f", ab, ba)
	}
	// Sanity: roughly 8900 km apart.
	if ab < 8800 || ab > 9100 {
		t.Fatalf("Berlin-Tokyo distance = %f km, expected ~8900", ab)
	}
}

func TestAssessTravelImpossible(t *testing.T) {
	// Berlin then Tokyo half an hour later implies far over 900 km/h.
	prev := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cur := prev.Add(30 * time.Minute)

	a := AssessTravel(52.52, 13.405, prev, 35.6762, 139.6503, cur)
	if a.Class != TravelImpossible {
		t.Fatalf("class = %d, want TravelImpossible (%+v)", a.Class, a)
	}
	if a.SpeedKMH <= 900 || a.DistanceKM <= 500 {
		t.Fatalf("impossible classification requires both thresholds exceeded: %+v", a)
	}
}

func TestAssessTravelFastButShortIsNotImpossible(t *testing.T) {
	// ~278 km in 10 minutes is over 900 km/h but under the 500 km floor.
	prev := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cur := prev.Add(10 * time.Minute)

	a := AssessTravel(48.8566, 2.3522, prev, 51.5074, -0.1278, cur)
	if a.SpeedKMH <= 900 {
		t.Fatalf("test setup: speed = %f, expected over 900", a.SpeedKMH)
	}
	if a.Class == TravelImpossible {
		t.Fatalf("short hop must not classify impossible: %+v", a)
	}
	if a.Class != TravelLocationChange {
		t.Fatalf("class = %d, want TravelLocationChange", a.Class)
	}
}

func TestAssessTravelSlowLongHaulIsLocationChange(t *testing.T) {
	// Berlin to Tokyo over twelve hours is a plausible flight.
	prev := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	cur := prev.Add(12 * time.Hour)

	a := AssessTravel(52.52, 13.405, prev, 35.6762, 139.6503, cur)
	if a.Class != TravelLocationChange {
		t.Fatalf("class = %d, want TravelLocationChange (%+v)", a.Class, a)
	}
}

func TestAssessTravelNearbyIsNone(t *testing.T) {
	// Two points inside the same city, well under 50 km.
	prev := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	cur := prev.Add(time.Hour)

	a := AssessTravel(52.52, 13.405, prev, 52.50, 13.45, cur)
	if a.Class != TravelNone {
		t.Fatalf("class = %d, want TravelNone (%+v)", a.Class, a)
	}
}

func TestAssessTravelFlooredElapsed(t *testing.T) {
	// Identical timestamps must not divide by zero.
	at := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	a := AssessTravel(52.52, 13.405, at, 35.6762, 139.6503, at)
	if a.ElapsedHours != 0.01 {
		t.Fatalf("elapsed = %f, want floor 0.01", a.ElapsedHours)
	}
	if math.IsInf(a.SpeedKMH, 1) || math.IsNaN(a.SpeedKMH) {
		t.Fatalf("speed not finite: %f", a.SpeedKMH)
	}
}

func TestClassifyTravelStrictThresholds(t *testing.T) {
	// Exactly at either threshold stays plausible.
	if c := classifyTravel(500, 2000); c == TravelImpossible {
		t.Fatal("exactly 500 km must not classify impossible")
	}
	if c := classifyTravel(600, 900); c == TravelImpossible {
		t.Fatal("exactly 900 km/h must not classify impossible")
	}
	if c := classifyTravel(500.1, 900.1); c != TravelImpossible {
		t.Fatal("strictly above both thresholds must classify impossible")
	}
}
