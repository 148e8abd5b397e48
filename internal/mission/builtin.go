package mission

import "usv-kernel/internal/telemetry"

// BuiltIn returns generated survey patterns anchored at origin.
func BuiltIn(origin telemetry.GpsCoord) map[string]Mission {
	return map[string]Mission{
		"box": {
			Name:        "box",
			Description: "Square of 50 m legs returning to the start.",
			Waypoints:   Box(origin, 50),
		},
		"lawnmower": {
			Name:        "lawnmower",
			Description: "Four parallel 80 m survey lines spaced 15 m apart.",
			Waypoints:   Lawnmower(origin, 0, 80, 15, 4),
		},
	}
}

// Box is a clockwise square with legs of side metres, heading north first.
func Box(origin telemetry.GpsCoord, side float64) []telemetry.GpsCoord {
	a := origin.Offset(0, side)
	b := a.Offset(90, side)
	c := b.Offset(180, side)
	return []telemetry.GpsCoord{a, b, c, origin}
}

// Lawnmower is a back and forth pattern of lines running along heading,
// stepping spacing metres to the right after each line.
func Lawnmower(origin telemetry.GpsCoord, heading, length, spacing float64, lines int) []telemetry.GpsCoord {
	side := telemetry.NormalizeDegrees(heading + 90)
	pts := make([]telemetry.GpsCoord, 0, 2*lines)
	start := origin
	for i := 0; i < lines; i++ {
		dir := heading
		if i%2 == 1 {
			dir = telemetry.NormalizeDegrees(heading + 180)
		}
		end := start.Offset(dir, length)
		pts = append(pts, start, end)
		start = end.Offset(side, spacing)
	}
	return pts
}
