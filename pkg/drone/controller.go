// Package drone owns the single logical vehicle connection. A Session wraps
// a Controller handle with a mission state machine, an activity log, and the
// cooperative interrupt flag, and exposes the control primitives that the
// sandbox capability table is built from.
package drone

import (
	"context"
	"fmt"

	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
)

// Location is a GPS position with altitude relative to home.
type Location struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
	Alt float64 `json:"altitude"`
}

// Battery is a point-in-time battery snapshot.
type Battery struct {
	Voltage float64 `json:"voltage"`
	Level   float64 `json:"level"`
	Current float64 `json:"current"`
}

// GPSInfo reports fix quality.
type GPSInfo struct {
	FixType    int `json:"fix_type"`
	Satellites int `json:"satellites_visible"`
}

// Telemetry aggregates the read-only vehicle state into one snapshot.
type Telemetry struct {
	Location    Location `json:"location"`
	Battery     Battery  `json:"battery"`
	Airspeed    float64  `json:"airspeed"`
	Groundspeed float64  `json:"groundspeed"`
	Heading     float64  `json:"heading"`
	Mode        string   `json:"mode"`
	Armed       bool     `json:"armed"`
	GPS         GPSInfo  `json:"gps"`
}

// Waypoint is one target position in a mission.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Controller is the vehicle SDK surface the session drives. Implementations
// talk to a flight stack (SITL, serial MAVLink) or simulate one in-process.
type Controller interface {
	Close() error
	ArmAndTakeoff(ctx context.Context, altitude float64) error
	Land(ctx context.Context) error
	ReturnToLaunch(ctx context.Context) error
	Goto(ctx context.Context, lat, lon, alt float64) error
	SetAirspeed(speed float64) error
	Location() (Location, error)
	Battery() (Battery, error)
	Telemetry() (Telemetry, error)
}

// DialFunc opens a fresh vehicle handle. The session owns teardown: a new
// dial never happens while a previous handle is still live.
type DialFunc func(ctx context.Context, connStr string) (Controller, error)

// ParseWaypoints validates raw waypoint maps and converts them to Waypoints.
// Validation is whole-list: an empty list or any waypoint missing one of
// lat, lon, alt rejects the entire mission with no partial result.
func ParseWaypoints(raw []map[string]float64) ([]Waypoint, error) {
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeMissionInvalid, "mission has no waypoints")
	}
	wps := make([]Waypoint, 0, len(raw))
	for i, m := range raw {
		var wp Waypoint
		for _, field := range []struct {
			key string
			dst *float64
		}{
			{"lat", &wp.Lat},
			{"lon", &wp.Lon},
			{"alt", &wp.Alt},
		} {
			v, ok := m[field.key]
			if !ok {
				return nil, apperrors.New(apperrors.ErrCodeMissionInvalid,
					fmt.Sprintf("waypoint %d missing %q", i, field.key))
			}
			*field.dst = v
		}
		wps = append(wps, wp)
	}
	return wps, nil
}
