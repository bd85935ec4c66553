package geo

import (
	"math"
	"testing"
)

func TestHaversineMeters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		a, b      Point
		want      float64
		tolerance float64
	}{
		{
			name:      "identical points",
			a:         Point{Lat: 34.0522, Lon: -118.2437},
			b:         Point{Lat: 34.0522, Lon: -118.2437},
			want:      0,
			tolerance: 0,
		},
		{
			name:      "downtown LA to job site",
			a:         Point{Lat: 34.0522, Lon: -118.2437},
			b:         Point{Lat: 34.0550, Lon: -118.2500},
			want:      655,
			tolerance: 25,
		},
		{
			name:      "fifteen meter separation",
			a:         Point{Lat: 34.0550, Lon: -118.2500},
			b:         Point{Lat: 34.0551, Lon: -118.2501},
			want:      14.5,
			tolerance: 2,
		},
		{
			name:      "london to paris",
			a:         Point{Lat: 51.5074, Lon: -0.1278},
			b:         Point{Lat: 48.8566, Lon: 2.3522},
			want:      343_500,
			tolerance: 1_500,
		},
		{
			name:      "antimeridian crossing",
			a:         Point{Lat: 0, Lon: 179.9},
			b:         Point{Lat: 0, Lon: -179.9},
			want:      22_240,
			tolerance: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Fatalf("HaversineMeters = %.1f, want %.1f ± %.1f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	t.Parallel()

	a := Point{Lat: 34.0522, Lon: -118.2437}
	b := Point{Lat: 40.7128, Lon: -74.0060}

	if ab, ba := HaversineMeters(a, b), HaversineMeters(b, a); ab != ba {
		t.Fatalf("distance not symmetric: %f != %f", ab, ba)
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	site := Point{Lat: 34.0550, Lon: -118.2500}

	tests := []struct {
		name   string
		point  Point
		radius float64
		want   bool
	}{
		{"same point inside any radius", site, 1, true},
		{"600m out of a 500m fence", Point{Lat: 34.0604, Lon: -118.2500}, 500, false},
		{"450m inside a 500m fence", Point{Lat: 34.0590, Lon: -118.2500}, 500, true},
		{"40m inside a 50m fence", Point{Lat: 34.05536, Lon: -118.2500}, 50, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Within(site, tt.point, tt.radius); got != tt.want {
				t.Fatalf("Within = %v, want %v (distance %.1fm)",
					got, tt.want, HaversineMeters(site, tt.point))
			}
		})
	}
}

func TestPointIsZero(t *testing.T) {
	t.Parallel()

	if !(Point{}).IsZero() {
		t.Fatal("zero Point not reported as zero")
	}
	if (Point{Lat: 34.0522, Lon: -118.2437}).IsZero() {
		t.Fatal("non-zero Point reported as zero")
	}
}
