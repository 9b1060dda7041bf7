// Package geo provides geographic utility functions for dispatch.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates
// (straight-line great-circle distance, no routing). Travel time is estimated
// using a constant average speed.
package geo

import (
	"math"
	"sort"

	"github.com/shiva/ridedispatch/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is the assumed average city driving speed.
	AverageSpeedKmph = 30.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
// Identical points yield 0 and antipodal points yield π·R: the intermediate
// term is clamped to [0,1] so floating-point overshoot never reaches asin.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return 0
	}

	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon
	h = math.Min(math.Max(h, 0), 1)

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// EstimateTimeMinutes returns the estimated direct travel time between two
// points in minutes.
func EstimateTimeMinutes(a, b model.Location) float64 {
	return (HaversineKm(a, b) / AverageSpeedKmph) * 60.0
}

// ─── Ranking ────────────────────────────────────────────────

// Ranked is an item paired with its distance from a reference point.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// RankWithin keeps the items whose position is known and lies within
// radiusKm of origin, sorted ascending by distance. Equal distances keep
// input order. A non-positive radius disables the radius filter.
//
// Complexity: O(N log N)
func RankWithin[T any](origin model.Location, items []T, position func(T) (model.Location, bool), radiusKm float64) []Ranked[T] {
	out := make([]Ranked[T], 0, len(items))
	for _, it := range items {
		loc, ok := position(it)
		if !ok || !loc.Valid() {
			continue
		}
		d := HaversineKm(origin, loc)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		out = append(out, Ranked[T]{Item: it, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}
