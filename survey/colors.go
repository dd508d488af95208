package survey

import (
	"fmt"
	"image/color"
)

// SignalBucket is a coarse signal-strength class. Higher values are stronger.
type SignalBucket int

const (
	BucketVeryWeak SignalBucket = iota
	BucketPoor
	BucketFair
	BucketGood
	BucketStrong
)

// String returns the human-readable bucket name
func (b SignalBucket) String() string {
	switch b {
	case BucketStrong:
		return "strong"
	case BucketGood:
		return "good"
	case BucketFair:
		return "fair"
	case BucketPoor:
		return "poor"
	default:
		return "very weak"
	}
}

// Hex returns the marker color of the bucket as #RRGGBB
func (b SignalBucket) Hex() string {
	switch b {
	case BucketStrong:
		return "#00CC00"
	case BucketGood:
		return "#AAFF00"
	case BucketFair:
		return "#FFFF00"
	case BucketPoor:
		return "#FFAA00"
	default:
		return "#FF0000"
	}
}

// Color returns the marker color of the bucket
func (b SignalBucket) Color() color.RGBA {
	return parseHexColor(b.Hex())
}

// BucketFor classifies an RSSI reading in dBm. Thresholds are strict, so a
// reading exactly on a threshold falls into the weaker bucket.
func BucketFor(rssi int) SignalBucket {
	switch {
	case rssi > -50:
		return BucketStrong
	case rssi > -60:
		return BucketGood
	case rssi > -70:
		return BucketFair
	case rssi > -80:
		return BucketPoor
	default:
		return BucketVeryWeak
	}
}

// ColorFor returns the marker color for an RSSI reading
func ColorFor(rssi int) color.RGBA {
	return BucketFor(rssi).Color()
}

// signalLabel is the marker text both renderers draw
func signalLabel(rssi int) string {
	return fmt.Sprintf("%d dBm", rssi)
}

// parseHexColor parses a hex color string like "#FF6B6B" to color.RGBA
func parseHexColor(hex string) color.RGBA {
	// Default to red if parsing fails
	defaultColor := color.RGBA{255, 0, 0, 255}

	if len(hex) == 0 {
		return defaultColor
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return defaultColor
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return defaultColor
	}
	return color.RGBA{r, g, b, 255}
}
