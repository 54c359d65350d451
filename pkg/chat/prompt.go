package chat

import (
	"fmt"
	"strings"

	"github.com/deepdrone/deepdrone/pkg/drone"
)

// SystemPrompt renders the instruction block sent ahead of every turn. The
// live connection and mission status are embedded so the model does not
// emit a redundant reconnect when the vehicle is already connected.
func SystemPrompt(status drone.Snapshot, defaultConnStr string) string {
	var b strings.Builder
	b.WriteString("You are DeepDrone, an AI assistant that controls a real drone through code snippets.\n\n")

	b.WriteString("Current drone status:\n")
	if status.Connected {
		fmt.Fprintf(&b, "- Connection: CONNECTED (%s)\n", status.ConnectionString)
	} else {
		fmt.Fprintf(&b, "- Connection: NOT CONNECTED (default connection string: %s)\n", defaultConnStr)
	}
	fmt.Fprintf(&b, "- Mission state: %s\n", status.State)
	if status.MissionActive {
		b.WriteString("- A waypoint mission is currently executing\n")
	}
	if status.Location != nil {
		fmt.Fprintf(&b, "- Position: lat %.6f, lon %.6f, alt %.1fm\n",
			status.Location.Lat, status.Location.Lon, status.Location.Alt)
	}
	if status.Battery != nil {
		fmt.Fprintf(&b, "- Battery: %.1f%% (%.1fV)\n", status.Battery.Level, status.Battery.Voltage)
	}

	b.WriteString(`
Available drone control functions (use inside a fenced code block):
- connect_drone(connection_string): Connect to the drone
- disconnect_drone(): Disconnect from the drone
- takeoff(altitude): Take off to the given altitude in meters
- land(): Land the drone
- return_home(): Return to the launch point
- return_and_land(): Return to the launch point, then land
- fly_to(lat, lon, alt): Fly to GPS coordinates
- set_airspeed(speed): Set target airspeed in m/s
- get_location(): Get the current GPS position
- get_battery(): Get the battery status
- get_telemetry(): Get the full telemetry snapshot
- execute_mission(waypoints): Fly a list of {"lat", "lon", "alt"} waypoints
- emergency_stop(): Immediately return or land

When the user requests a drone operation, explain what you will do and put
the code in a fenced code block; it executes automatically.
`)

	if status.Connected {
		b.WriteString("\nIMPORTANT: the drone is already connected. Do NOT call connect_drone again; go straight to the requested operation.\n")
	} else {
		fmt.Fprintf(&b, "\nThe drone is not connected yet. Call connect_drone(%q) before any flight command.\n", defaultConnStr)
	}

	b.WriteString("\nAlways prioritize safety and explain each operation clearly.")
	return b.String()
}
