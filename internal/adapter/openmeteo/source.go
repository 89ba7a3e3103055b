package openmeteo

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Source implements domain.WeatherSource for one site.
type Source struct {
	client    *Client
	loc       *time.Location
	startHour int
	endHour   int
}

// NewSource creates a source averaging hours [startHour, endHour] in loc.
func NewSource(client *Client, loc *time.Location, startHour, endHour int) *Source {
	return &Source{client: client, loc: loc, startHour: startHour, endHour: endHour}
}

// Today returns the current calendar date in the site time zone.
func (s *Source) Today() time.Time {
	return domain.Day(domain.Now().In(s.loc))
}

// Reading fetches the morning reading for date. Dates before today use the
// archive API.
func (s *Source) Reading(ctx context.Context, date time.Time) (domain.Reading, error) {
	date = domain.Day(date)
	endpoint := Forecast
	if date.Before(s.Today()) {
		endpoint = Archive
	}

	h, err := s.client.Hourly(ctx, date, date, endpoint, false)
	if err != nil {
		return domain.Reading{}, err
	}
	readings, err := MorningAverages(h, s.startHour, s.endHour)
	if err != nil {
		return domain.Reading{}, err
	}
	for _, r := range readings {
		if r.Date.Equal(date) {
			return r, nil
		}
	}
	return domain.Reading{}, &domain.MissingInputError{What: "weather reading for " + domain.FormatDate(date)}
}

// Window fetches up to days morning readings starting today.
func (s *Source) Window(ctx context.Context, days int) ([]domain.Reading, error) {
	if days < 1 || days > domain.MaxWindowDays {
		return nil, fmt.Errorf("window days must be between 1 and %d, got %d", domain.MaxWindowDays, days)
	}
	today := s.Today()
	end := today.AddDate(0, 0, days-1)

	h, err := s.client.Hourly(ctx, today, end, Forecast, true)
	if err != nil {
		return nil, err
	}
	readings, err := MorningAverages(h, s.startHour, s.endHour)
	if err != nil {
		return nil, err
	}
	if len(readings) > days {
		readings = readings[:days]
	}
	return readings, nil
}
