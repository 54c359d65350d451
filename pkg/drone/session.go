package drone

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
	"github.com/deepdrone/deepdrone/pkg/logging"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

// State is the session's mission state machine position.
type State string

const (
	StateStandby          State = "STANDBY"
	StateConnecting       State = "CONNECTING"
	StateConnected        State = "CONNECTED"
	StateTakingOff        State = "TAKING_OFF"
	StateAirborne         State = "AIRBORNE"
	StateNavigating       State = "NAVIGATING"
	StateExecutingMission State = "EXECUTING_MISSION"
	StateReturning        State = "RETURNING"
	StateLanding          State = "LANDING"
	StateLanded           State = "LANDED"
	StateMissionComplete  State = "MISSION_COMPLETE"
	StateInterrupted      State = "INTERRUPTED"
	StateEmergency        State = "EMERGENCY"
	StateAborted          State = "ABORTED"
	StateError            State = "ERROR"
)

const (
	activityCapacity = 30
	// settleDelay gives an interrupted vehicle time to turn around
	// before the session reports the mission as stopped.
	defaultSettleDelay = 3 * time.Second
)

// MissionStatus summarizes how a waypoint mission ended.
type MissionStatus string

const (
	MissionComplete    MissionStatus = "complete"
	MissionInterrupted MissionStatus = "interrupted"
	MissionFailed      MissionStatus = "failed"
	MissionInvalid     MissionStatus = "invalid"
)

// MissionResult reports waypoint progress alongside the final status.
type MissionResult struct {
	Status    MissionStatus `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// ActivityEntry is one line of the session's bounded activity log.
type ActivityEntry struct {
	Time   time.Time `json:"time"`
	State  State     `json:"state"`
	Detail string    `json:"detail"`
}

// Snapshot is a point-in-time view of the session for status queries.
type Snapshot struct {
	Connected        bool            `json:"connected"`
	ConnectionString string          `json:"connection_string,omitempty"`
	State            State           `json:"state"`
	MissionActive    bool            `json:"mission_active"`
	Location         *Location       `json:"location,omitempty"`
	Battery          *Battery        `json:"battery,omitempty"`
	Activity         []ActivityEntry `json:"activity"`
}

// Session owns the one logical vehicle connection in the process. All
// capability calls serialize around its state transitions; the interrupt
// flag is the only part touched out-of-band.
type Session struct {
	dial DialFunc
	log  *logging.Logger
	hub  *telemetry.Hub

	// cmdMu serializes vehicle commands so two takeoffs, or a takeoff
	// racing a disconnect, cannot interleave. It is never held across a
	// whole mission, only per command, so interrupts stay responsive.
	cmdMu sync.Mutex

	// mu guards the fields below.
	mu          sync.Mutex
	ctrl        Controller
	connStr     string
	state       State
	interrupt   bool
	missionLive bool
	activity    []ActivityEntry
	settle      time.Duration
}

// NewSession constructs a session in STANDBY with no vehicle handle.
func NewSession(dial DialFunc, log *logging.Logger, hub *telemetry.Hub) *Session {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	if hub == nil {
		hub = telemetry.NewHub()
	}
	return &Session{
		dial:   dial,
		log:    log,
		hub:    hub,
		state:  StateStandby,
		settle: defaultSettleDelay,
	}
}

// SetSettleDelay overrides the post-interrupt settle wait. Zero disables it.
func (s *Session) SetSettleDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle = d
}

func (s *Session) setState(state State, detail string) {
	s.state = state
	s.activity = append(s.activity, ActivityEntry{Time: time.Now(), State: state, Detail: detail})
	if len(s.activity) > activityCapacity {
		s.activity = s.activity[len(s.activity)-activityCapacity:]
	}
	s.log.Info(logging.CategoryMission, "state_changed", detail, map[string]any{
		"state": string(state),
	})
}

func (s *Session) publish(t telemetry.EventType, data map[string]any) {
	s.hub.Publish(telemetry.Event{Type: t, Data: data})
}

func (s *Session) record(command string, ok bool) {
	telemetry.MetricVehicleCommands.WithLabelValues(command, telemetry.CommandOutcome(ok)).Inc()
}

// State returns the current mission state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a vehicle handle is live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl != nil
}

// Connect opens a vehicle handle. If one is already open it is torn down
// first; the session never holds two live handles.
func (s *Session) Connect(ctx context.Context, connStr string) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	old := s.ctrl
	s.ctrl = nil
	s.setState(StateConnecting, "connecting to "+connStr)
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			s.log.Warn(logging.CategoryVehicle, "teardown_failed", "failed to close previous handle", map[string]any{
				"error": err.Error(),
			})
		}
	}

	ctrl, err := s.dial(ctx, connStr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.setState(StateError, "connection failed: "+err.Error())
		s.log.Error(logging.CategoryVehicle, "connect_failed", "vehicle connection failed", map[string]any{
			"connection_string": connStr,
			"error":             err.Error(),
		})
		s.record("connect", false)
		return false
	}
	s.ctrl = ctrl
	s.connStr = connStr
	s.setState(StateConnected, "connected to "+connStr)
	s.record("connect", true)
	s.publish(telemetry.EventVehicleConnected, map[string]any{"connection_string": connStr})
	return true
}

// Disconnect closes the vehicle handle if one is open. Always safe to call;
// disconnecting an idle session is a no-op that still lands in STANDBY.
func (s *Session) Disconnect() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	ctrl := s.ctrl
	s.ctrl = nil
	s.missionLive = false
	s.setState(StateStandby, "disconnected")
	s.mu.Unlock()

	if ctrl != nil {
		if err := ctrl.Close(); err != nil {
			s.log.Warn(logging.CategoryVehicle, "close_failed", "failed to close vehicle handle", map[string]any{
				"error": err.Error(),
			})
		}
		s.publish(telemetry.EventVehicleLost, nil)
	}
	s.record("disconnect", true)
}

// handle returns the live controller, or an error when the session is
// disconnected or parked in a state that needs a fresh connect first.
func (s *Session) handle() (Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return nil, apperrors.New(apperrors.ErrCodeVehicleNotConnected, "not connected to drone")
	}
	if s.state == StateError || s.state == StateAborted {
		return nil, apperrors.New(apperrors.ErrCodeVehicleCommand,
			fmt.Sprintf("session is in %s, reconnect before flying", s.state))
	}
	return s.ctrl, nil
}

// Takeoff arms and climbs to the target altitude. A pending interrupt
// rejects the takeoff and is consumed in the same step.
func (s *Session) Takeoff(ctx context.Context, altitude float64) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.ConsumeInterrupt() {
		s.log.Warn(logging.CategoryVehicle, "takeoff_rejected", "takeoff rejected by pending interrupt", nil)
		s.record("takeoff", false)
		return false
	}

	ctrl, err := s.handle()
	if err != nil {
		s.record("takeoff", false)
		return false
	}

	s.mu.Lock()
	s.setState(StateTakingOff, fmt.Sprintf("taking off to %.1fm", altitude))
	s.mu.Unlock()

	err = ctrl.ArmAndTakeoff(ctx, altitude)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.setState(StateError, "takeoff failed: "+err.Error())
		s.record("takeoff", false)
		return false
	}
	s.setState(StateAirborne, fmt.Sprintf("airborne at %.1fm", altitude))
	s.record("takeoff", true)
	return true
}

// Land descends and disarms in place.
func (s *Session) Land(ctx context.Context) bool {
	return s.simpleCommand("land", StateLanding, StateLanded, func(ctrl Controller) error {
		return ctrl.Land(ctx)
	})
}

// ReturnHome flies back to the launch position.
func (s *Session) ReturnHome(ctx context.Context) bool {
	return s.simpleCommand("return_home", StateReturning, StateReturning, func(ctrl Controller) error {
		return ctrl.ReturnToLaunch(ctx)
	})
}

// ReturnAndLand returns to launch, waits for the vehicle to settle, then
// lands. The two commands are issued as one serialized unit.
func (s *Session) ReturnAndLand(ctx context.Context) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	ctrl, err := s.handle()
	if err != nil {
		s.record("return_and_land", false)
		return false
	}

	s.mu.Lock()
	settle := s.settle
	s.setState(StateReturning, "returning to launch before landing")
	s.mu.Unlock()

	if err := ctrl.ReturnToLaunch(ctx); err != nil {
		s.failCommand("return_and_land", "return failed: "+err.Error())
		return false
	}
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.setState(StateLanding, "landing at launch position")
	s.mu.Unlock()

	if err := ctrl.Land(ctx); err != nil {
		s.failCommand("return_and_land", "landing failed: "+err.Error())
		return false
	}

	s.mu.Lock()
	s.setState(StateLanded, "landed at launch position")
	s.mu.Unlock()
	s.record("return_and_land", true)
	return true
}

// FlyTo navigates to a single position. It logs the move but does not drive
// the mission state machine.
func (s *Session) FlyTo(ctx context.Context, lat, lon, alt float64) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	ctrl, err := s.handle()
	if err != nil {
		s.record("fly_to", false)
		return false
	}
	err = ctrl.Goto(ctx, lat, lon, alt)
	ok := err == nil
	s.record("fly_to", ok)
	if !ok {
		s.log.Error(logging.CategoryVehicle, "fly_to_failed", "navigation command failed", map[string]any{
			"lat": lat, "lon": lon, "alt": alt, "error": err.Error(),
		})
		return false
	}
	s.log.Info(logging.CategoryVehicle, "fly_to", "navigating to position", map[string]any{
		"lat": lat, "lon": lon, "alt": alt,
	})
	return true
}

// SetAirspeed sets the target airspeed in m/s.
func (s *Session) SetAirspeed(speed float64) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	ctrl, err := s.handle()
	if err != nil {
		s.record("set_airspeed", false)
		return false
	}
	err = ctrl.SetAirspeed(speed)
	s.record("set_airspeed", err == nil)
	return err == nil
}

// GetLocation returns the current position, or an error when disconnected.
func (s *Session) GetLocation() (Location, error) {
	ctrl, err := s.handle()
	if err != nil {
		return Location{}, err
	}
	return ctrl.Location()
}

// GetBattery returns the battery snapshot, or an error when disconnected.
func (s *Session) GetBattery() (Battery, error) {
	ctrl, err := s.handle()
	if err != nil {
		return Battery{}, err
	}
	return ctrl.Battery()
}

// GetTelemetry returns the aggregate telemetry snapshot.
func (s *Session) GetTelemetry() (Telemetry, error) {
	ctrl, err := s.handle()
	if err != nil {
		return Telemetry{}, err
	}
	return ctrl.Telemetry()
}

// ExecuteMission flies the waypoints in order. The interrupt flag is checked
// before each waypoint; when set it is cleared, the vehicle returns home,
// and the result reports how many waypoints completed. Validation rejects
// the whole list up front, before any vehicle command is issued.
func (s *Session) ExecuteMission(ctx context.Context, waypoints []Waypoint) MissionResult {
	if len(waypoints) == 0 {
		err := apperrors.New(apperrors.ErrCodeMissionInvalid, "mission has no waypoints")
		return MissionResult{Status: MissionInvalid, Err: err, Error: err.Error()}
	}

	s.mu.Lock()
	if s.missionLive {
		s.mu.Unlock()
		err := apperrors.New(apperrors.ErrCodeMissionInvalid, "a mission is already executing")
		return MissionResult{Status: MissionInvalid, Total: len(waypoints), Err: err, Error: err.Error()}
	}
	s.missionLive = true
	s.setState(StateExecutingMission, fmt.Sprintf("executing mission with %d waypoints", len(waypoints)))
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.missionLive = false
		s.mu.Unlock()
	}()

	total := len(waypoints)
	for i, wp := range waypoints {
		if s.ConsumeInterrupt() {
			return s.abortMission(ctx, i, total)
		}

		s.cmdMu.Lock()
		ctrl, err := s.handle()
		if err == nil {
			s.mu.Lock()
			s.setState(StateNavigating, fmt.Sprintf("waypoint %d/%d", i+1, total))
			s.mu.Unlock()
			err = ctrl.Goto(ctx, wp.Lat, wp.Lon, wp.Alt)
		}
		s.cmdMu.Unlock()

		if err != nil {
			s.record("execute_mission", false)
			s.mu.Lock()
			s.setState(StateError, fmt.Sprintf("mission failed at waypoint %d: %s", i+1, err))
			s.mu.Unlock()
			s.publish(telemetry.EventMissionAborted, map[string]any{"completed": i, "total": total})
			werr := apperrors.Wrap(err, apperrors.ErrCodeVehicleCommand,
				fmt.Sprintf("waypoint %d failed", i+1))
			return MissionResult{Status: MissionFailed, Completed: i, Total: total, Err: werr, Error: werr.Error()}
		}

		s.publish(telemetry.EventMissionProgress, map[string]any{"completed": i + 1, "total": total})
	}

	s.mu.Lock()
	s.setState(StateMissionComplete, "mission complete")
	s.mu.Unlock()
	s.record("execute_mission", true)
	s.publish(telemetry.EventMissionComplete, map[string]any{"completed": total, "total": total})
	return MissionResult{Status: MissionComplete, Completed: total, Total: total}
}

func (s *Session) abortMission(ctx context.Context, completed, total int) MissionResult {
	s.log.Warn(logging.CategoryMission, "mission_interrupted", "mission interrupted by operator", map[string]any{
		"completed": completed,
		"total":     total,
	})
	s.ReturnHome(ctx)

	s.mu.Lock()
	settle := s.settle
	s.mu.Unlock()
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.setState(StateInterrupted, fmt.Sprintf("mission interrupted after %d/%d waypoints", completed, total))
	s.mu.Unlock()
	s.record("execute_mission", false)
	s.publish(telemetry.EventMissionAborted, map[string]any{"completed": completed, "total": total})
	return MissionResult{Status: MissionInterrupted, Completed: completed, Total: total}
}

// EmergencyStop brings the vehicle down immediately: return-to-launch first,
// direct landing as the fallback. It bypasses the normal state gating and
// is callable from any state with a live handle.
func (s *Session) EmergencyStop(ctx context.Context) bool {
	s.mu.Lock()
	ctrl := s.ctrl
	s.setState(StateEmergency, "emergency stop requested")
	s.mu.Unlock()

	if ctrl == nil {
		s.record("emergency_stop", false)
		return false
	}
	if err := ctrl.ReturnToLaunch(ctx); err == nil {
		s.record("emergency_stop", true)
		return true
	}
	err := ctrl.Land(ctx)
	ok := err == nil
	s.record("emergency_stop", ok)
	if !ok {
		s.log.Error(logging.CategoryVehicle, "emergency_failed", "emergency stop failed", map[string]any{
			"error": err.Error(),
		})
	}
	return ok
}

// RequestInterrupt sets the cooperative interrupt flag. The flag is polled
// between waypoints and at takeoff, never mid-command.
func (s *Session) RequestInterrupt() {
	s.mu.Lock()
	s.interrupt = true
	s.mu.Unlock()
	s.publish(telemetry.EventInterrupt, nil)
	s.log.Warn(logging.CategoryMission, "interrupt_requested", "operator interrupt requested", nil)
}

// ConsumeInterrupt atomically checks and clears the interrupt flag.
func (s *Session) ConsumeInterrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.interrupt
	s.interrupt = false
	return set
}

// InterruptPending reports the flag without clearing it.
func (s *Session) InterruptPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupt
}

// Status captures the session for status endpoints and the system prompt.
// Telemetry reads happen outside the state lock.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	ctrl := s.ctrl
	snap := Snapshot{
		Connected:        ctrl != nil,
		ConnectionString: s.connStr,
		State:            s.state,
		MissionActive:    s.missionLive,
		Activity:         append([]ActivityEntry(nil), s.activity...),
	}
	s.mu.Unlock()

	if ctrl != nil {
		if loc, err := ctrl.Location(); err == nil {
			snap.Location = &loc
		}
		if bat, err := ctrl.Battery(); err == nil {
			snap.Battery = &bat
		}
	}
	return snap
}

func (s *Session) failCommand(command, detail string) {
	s.mu.Lock()
	s.setState(StateError, detail)
	s.mu.Unlock()
	s.record(command, false)
}

func (s *Session) simpleCommand(command string, during, after State, run func(Controller) error) bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	ctrl, err := s.handle()
	if err != nil {
		s.record(command, false)
		return false
	}

	s.mu.Lock()
	s.setState(during, command)
	s.mu.Unlock()

	if err := run(ctrl); err != nil {
		s.failCommand(command, command+" failed: "+err.Error())
		return false
	}

	if after != during {
		s.mu.Lock()
		s.setState(after, command+" complete")
		s.mu.Unlock()
	}
	s.record(command, true)
	return true
}
