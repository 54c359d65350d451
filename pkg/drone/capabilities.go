package drone

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/deepdrone/deepdrone/pkg/sandbox"
)

// maxSleepSeconds caps the sleep capability so one call cannot eat the
// whole snippet timeout.
const maxSleepSeconds = 10

// Capabilities builds the closed table of functions a sandboxed snippet may
// call. Nothing outside this table reaches the vehicle; the names match the
// ones the system prompt teaches the model.
func Capabilities(sess *Session) starlark.StringDict {
	return starlark.StringDict{
		"connect_drone": starlark.NewBuiltin("connect_drone", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var connStr string
			if err := starlark.UnpackPositionalArgs("connect_drone", args, kwargs, 1, &connStr); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.Connect(sandbox.ThreadContext(thread), connStr)), nil
		}),
		"disconnect_drone": starlark.NewBuiltin("disconnect_drone", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("disconnect_drone", args, kwargs, 0); err != nil {
				return nil, err
			}
			sess.Disconnect()
			return starlark.None, nil
		}),
		"takeoff": starlark.NewBuiltin("takeoff", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var altitude float64
			if err := starlark.UnpackPositionalArgs("takeoff", args, kwargs, 1, &altitude); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.Takeoff(sandbox.ThreadContext(thread), altitude)), nil
		}),
		"land": starlark.NewBuiltin("land", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("land", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.Land(sandbox.ThreadContext(thread))), nil
		}),
		"return_home": starlark.NewBuiltin("return_home", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("return_home", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.ReturnHome(sandbox.ThreadContext(thread))), nil
		}),
		"return_and_land": starlark.NewBuiltin("return_and_land", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("return_and_land", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.ReturnAndLand(sandbox.ThreadContext(thread))), nil
		}),
		"fly_to": starlark.NewBuiltin("fly_to", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var lat, lon, alt float64
			if err := starlark.UnpackPositionalArgs("fly_to", args, kwargs, 3, &lat, &lon, &alt); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.FlyTo(sandbox.ThreadContext(thread), lat, lon, alt)), nil
		}),
		"set_airspeed": starlark.NewBuiltin("set_airspeed", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var speed float64
			if err := starlark.UnpackPositionalArgs("set_airspeed", args, kwargs, 1, &speed); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.SetAirspeed(speed)), nil
		}),
		"get_location": starlark.NewBuiltin("get_location", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("get_location", args, kwargs, 0); err != nil {
				return nil, err
			}
			loc, err := sess.GetLocation()
			if err != nil {
				return errorDict(err), nil
			}
			return floatDict(map[string]float64{
				"latitude":  loc.Lat,
				"longitude": loc.Lon,
				"altitude":  loc.Alt,
			}), nil
		}),
		"get_battery": starlark.NewBuiltin("get_battery", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("get_battery", args, kwargs, 0); err != nil {
				return nil, err
			}
			bat, err := sess.GetBattery()
			if err != nil {
				return errorDict(err), nil
			}
			return floatDict(map[string]float64{
				"voltage": bat.Voltage,
				"level":   bat.Level,
				"current": bat.Current,
			}), nil
		}),
		"get_telemetry": starlark.NewBuiltin("get_telemetry", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("get_telemetry", args, kwargs, 0); err != nil {
				return nil, err
			}
			tel, err := sess.GetTelemetry()
			if err != nil {
				return errorDict(err), nil
			}
			d := floatDict(map[string]float64{
				"latitude":    tel.Location.Lat,
				"longitude":   tel.Location.Lon,
				"altitude":    tel.Location.Alt,
				"voltage":     tel.Battery.Voltage,
				"level":       tel.Battery.Level,
				"airspeed":    tel.Airspeed,
				"groundspeed": tel.Groundspeed,
				"heading":     tel.Heading,
			})
			d.SetKey(starlark.String("mode"), starlark.String(tel.Mode))
			d.SetKey(starlark.String("armed"), starlark.Bool(tel.Armed))
			d.SetKey(starlark.String("gps_fix"), starlark.MakeInt(tel.GPS.FixType))
			d.SetKey(starlark.String("satellites"), starlark.MakeInt(tel.GPS.Satellites))
			return d, nil
		}),
		"execute_mission": starlark.NewBuiltin("execute_mission", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var list *starlark.List
			if err := starlark.UnpackPositionalArgs("execute_mission", args, kwargs, 1, &list); err != nil {
				return nil, err
			}
			raw, err := waypointMaps(list)
			if err != nil {
				return missionDict(MissionResult{Status: MissionInvalid, Total: list.Len(), Error: err.Error()}), nil
			}
			wps, err := ParseWaypoints(raw)
			if err != nil {
				return missionDict(MissionResult{Status: MissionInvalid, Total: list.Len(), Error: err.Error()}), nil
			}
			return missionDict(sess.ExecuteMission(sandbox.ThreadContext(thread), wps)), nil
		}),
		"emergency_stop": starlark.NewBuiltin("emergency_stop", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs("emergency_stop", args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.Bool(sess.EmergencyStop(sandbox.ThreadContext(thread))), nil
		}),
		"sleep": starlark.NewBuiltin("sleep", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seconds float64
			if err := starlark.UnpackPositionalArgs("sleep", args, kwargs, 1, &seconds); err != nil {
				return nil, err
			}
			if seconds < 0 || seconds > maxSleepSeconds {
				return nil, fmt.Errorf("sleep: seconds must be between 0 and %d", maxSleepSeconds)
			}
			select {
			case <-time.After(time.Duration(seconds * float64(time.Second))):
			case <-sandbox.ThreadContext(thread).Done():
			}
			return starlark.None, nil
		}),
	}
}

func floatDict(fields map[string]float64) *starlark.Dict {
	d := starlark.NewDict(len(fields))
	for k, v := range fields {
		d.SetKey(starlark.String(k), starlark.Float(v))
	}
	return d
}

func errorDict(err error) *starlark.Dict {
	d := starlark.NewDict(1)
	d.SetKey(starlark.String("error"), starlark.String(err.Error()))
	return d
}

func missionDict(res MissionResult) *starlark.Dict {
	d := starlark.NewDict(4)
	d.SetKey(starlark.String("status"), starlark.String(string(res.Status)))
	d.SetKey(starlark.String("completed"), starlark.MakeInt(res.Completed))
	d.SetKey(starlark.String("total"), starlark.MakeInt(res.Total))
	if res.Error != "" {
		d.SetKey(starlark.String("error"), starlark.String(res.Error))
	}
	return d
}

func waypointMaps(list *starlark.List) ([]map[string]float64, error) {
	raw := make([]map[string]float64, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		dict, ok := list.Index(i).(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("waypoint %d is not a dict", i)
		}
		m := make(map[string]float64, dict.Len())
		for _, item := range dict.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("waypoint %d has a non-string key", i)
			}
			val, ok := starlark.AsFloat(item[1])
			if !ok {
				return nil, fmt.Errorf("waypoint %d field %q is not a number", i, key)
			}
			m[key] = val
		}
		raw = append(raw, m)
	}
	return raw, nil
}
