package domain

import (
	"context"
	"time"
)

// WeatherSource supplies morning-averaged readings.
type WeatherSource interface {
	// Reading returns the reading for one date. Dates before today in the
	// site zone are served from the archive.
	Reading(ctx context.Context, date time.Time) (Reading, error)
	// Window returns readings for days consecutive dates starting today.
	Window(ctx context.Context, days int) ([]Reading, error)
}
