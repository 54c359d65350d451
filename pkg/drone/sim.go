package drone

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
)

// SimConfig tunes the in-process simulated vehicle.
type SimConfig struct {
	Home            Location
	Voltage         float64
	Level           float64
	DrainPerCommand float64
	// Latency is added to every command to mimic link round-trips.
	Latency time.Duration
}

// DefaultSimConfig places the vehicle at the default SITL home position.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Home:            Location{Lat: -35.363262, Lon: 149.165237, Alt: 0},
		Voltage:         12.6,
		Level:           100,
		DrainPerCommand: 0.5,
	}
}

// SimController is a deterministic in-process vehicle. It stands in for a
// flight stack when no SITL or hardware link is available, and is the
// controller the test suite drives.
type SimController struct {
	mu     sync.Mutex
	cfg    SimConfig
	pos    Location
	bat    Battery
	mode   string
	armed  bool
	speed  float64
	closed bool
}

// DialSim returns a DialFunc that opens simulated vehicles. The connection
// string is accepted verbatim; only an empty string fails.
func DialSim(cfg SimConfig) DialFunc {
	return func(_ context.Context, connStr string) (Controller, error) {
		if connStr == "" {
			return nil, apperrors.New(apperrors.ErrCodeVehicleNotConnected, "no connection string provided")
		}
		return &SimController{
			cfg:  cfg,
			pos:  cfg.Home,
			bat:  Battery{Voltage: cfg.Voltage, Level: cfg.Level},
			mode: "STABILIZE",
		}, nil
	}
}

func (s *SimController) command(ctx context.Context) error {
	if s.closed {
		return apperrors.New(apperrors.ErrCodeVehicleNotConnected, "vehicle handle closed")
	}
	if s.cfg.Latency > 0 {
		select {
		case <-time.After(s.cfg.Latency):
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), apperrors.ErrCodeVehicleCommand, "command cancelled")
		}
	}
	s.bat.Level -= s.cfg.DrainPerCommand
	if s.bat.Level < 0 {
		s.bat.Level = 0
	}
	s.bat.Voltage -= s.cfg.DrainPerCommand * 0.01
	return nil
}

func (s *SimController) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.armed = false
	return nil
}

func (s *SimController) ArmAndTakeoff(ctx context.Context, altitude float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command(ctx); err != nil {
		return err
	}
	if altitude <= 0 {
		return apperrors.New(apperrors.ErrCodeVehicleCommand, "takeoff altitude must be positive")
	}
	s.mode = "GUIDED"
	s.armed = true
	s.pos.Alt = altitude
	return nil
}

func (s *SimController) Land(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command(ctx); err != nil {
		return err
	}
	s.mode = "LAND"
	s.pos.Alt = 0
	s.armed = false
	return nil
}

func (s *SimController) ReturnToLaunch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command(ctx); err != nil {
		return err
	}
	s.mode = "RTL"
	s.pos.Lat = s.cfg.Home.Lat
	s.pos.Lon = s.cfg.Home.Lon
	return nil
}

func (s *SimController) Goto(ctx context.Context, lat, lon, alt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.command(ctx); err != nil {
		return err
	}
	if !s.armed {
		return apperrors.New(apperrors.ErrCodeVehicleCommand, "vehicle is not armed")
	}
	s.mode = "GUIDED"
	s.pos = Location{Lat: lat, Lon: lon, Alt: alt}
	return nil
}

func (s *SimController) SetAirspeed(speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.New(apperrors.ErrCodeVehicleNotConnected, "vehicle handle closed")
	}
	if speed < 0 {
		return apperrors.New(apperrors.ErrCodeVehicleCommand, "airspeed must be non-negative")
	}
	s.speed = speed
	return nil
}

func (s *SimController) Location() (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Location{}, apperrors.New(apperrors.ErrCodeVehicleNotConnected, "vehicle handle closed")
	}
	return s.pos, nil
}

func (s *SimController) Battery() (Battery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Battery{}, apperrors.New(apperrors.ErrCodeVehicleNotConnected, "vehicle handle closed")
	}
	return s.bat, nil
}

func (s *SimController) Telemetry() (Telemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Telemetry{}, apperrors.New(apperrors.ErrCodeVehicleNotConnected, "vehicle handle closed")
	}
	return Telemetry{
		Location:    s.pos,
		Battery:     s.bat,
		Airspeed:    s.speed,
		Groundspeed: s.speed,
		Mode:        s.mode,
		Armed:       s.armed,
		GPS:         GPSInfo{FixType: 3, Satellites: 10},
	}, nil
}
