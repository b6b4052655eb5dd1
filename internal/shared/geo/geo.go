package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// DistanceM returns the great-circle distance in meters.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

// IsValidCoordinate reports whether lat/lng describe a real position.
// Latitudes at or above 90 are sentinel encodings (segment separators),
// never real fixes.
func IsValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat < 90 && lng >= -180 && lng < 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
