package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistanceKm(t *testing.T) {
	// Times Square to the Brooklyn Bridge, roughly 5.9 km.
	a := Point{Lat: 40.7580, Lng: -73.9855}
	b := Point{Lat: 40.7061, Lng: -73.9969}
	got := DistanceKm(a, b)
	if math.Abs(got-5.86) > 0.2 {
		t.Fatalf("unexpected distance %.3f km", got)
	}
	if DistanceKm(a, a) != 0 {
		t.Fatal("distance to self must be zero")
	}
}

func TestDriveTime(t *testing.T) {
	if got := DriveTime(12.5, 25); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}
	if got := DriveTime(1, 0); got != 3*time.Minute {
		t.Fatalf("expected default speed to apply, got %s", got)
	}
}

func TestPointValid(t *testing.T) {
	if (Point{Lat: 91}).Valid() {
		t.Fatal("latitude 91 is invalid")
	}
}
