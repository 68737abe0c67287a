package systems

import "math"

// clampFloat clamps a float32 value between min and max.
func clampFloat(v, minVal, maxVal float32) float32 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// distanceSq returns the squared distance between two points.
func distanceSq(x1, y1, x2, y2 float32) float32 {
	dx := x1 - x2
	dy := y1 - y2
	return dx*dx + dy*dy
}

// velocityMagnitude returns the magnitude of a velocity vector.
func velocityMagnitude(vx, vy float32) float32 {
	return float32(math.Sqrt(float64(vx*vx + vy*vy)))
}

// ClampSpeed limits the speed of (vx, vy) to [minSpeed, maxSpeed].
// A zero velocity is returned unchanged.
func ClampSpeed(vx, vy, minSpeed, maxSpeed float32) (float32, float32) {
	speed := velocityMagnitude(vx, vy)
	if speed == 0 {
		return vx, vy
	}
	if speed > maxSpeed {
		scale := maxSpeed / speed
		return vx * scale, vy * scale
	}
	if speed < minSpeed {
		scale := minSpeed / speed
		return vx * scale, vy * scale
	}
	return vx, vy
}

// Wrap maps v into [0, size) on a torus.
func Wrap(v, size float32) float32 {
	if v >= 0 && v < size {
		return v
	}
	v = float32(math.Mod(float64(v), float64(size)))
	if v < 0 {
		v += size
	}
	// -tiny + size can round up to size in float32
	if v >= size {
		v = 0
	}
	return v
}

// proximityDamping scales pairwise force down as particles get close:
// min(1, (dist/start)^exponent).
func proximityDamping(dist, start, exponent float32) float32 {
	if start <= 0 || dist >= start {
		return 1
	}
	ratio := dist / start
	if exponent == 1.5 {
		return ratio * float32(math.Sqrt(float64(ratio)))
	}
	return float32(math.Pow(float64(ratio), float64(exponent)))
}
