package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const timeUnit = time.Millisecond

// runInteractive is the terminal chat loop: read a line, run the turn,
// print the reply and any snippet execution results.
func runInteractive(ctx context.Context, rt *runtime) error {
	rt.coord.StartMonitor(ctx)

	cfg := rt.adapter.Config()
	fmt.Printf("DeepDrone ready. Model: %s (%s). Vehicle: %s\n",
		cfg.Name, cfg.Provider, rt.cfg.Drone.ConnectionString)
	fmt.Println("Type a command, /help for commands, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("deepdrone> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleCommand(ctx, rt, line); quit {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		result := rt.coord.HandleTurn(ctx, line)
		fmt.Println()
		fmt.Println(result.AssistantText)
		for i, exec := range result.Executions {
			fmt.Printf("\n--- snippet %d (%s) ---\n", i+1, exec.Result.Duration.Round(timeUnit))
			if exec.Result.OK() {
				fmt.Println(exec.Result.Output)
			} else {
				fmt.Println(exec.Result.Error)
			}
		}
		fmt.Println()
	}
}

// handleCommand processes slash commands. Returns true to quit.
func handleCommand(ctx context.Context, rt *runtime, line string) bool {
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit", "q":
		fmt.Println("DeepDrone session ended. Fly safe!")
		return true
	case "help":
		printHelp()
	case "clear":
		rt.coord.Reset()
		fmt.Println("Conversation history cleared.")
	case "status":
		printStatus(rt)
	case "connect":
		target := rt.cfg.Drone.ConnectionString
		if len(fields) > 1 {
			target = fields[1]
		}
		if rt.sess.Connect(ctx, target) {
			fmt.Printf("Connected to %s\n", target)
		} else {
			fmt.Printf("Failed to connect to %s\n", target)
		}
	case "disconnect":
		rt.sess.Disconnect()
		fmt.Println("Disconnected.")
	case "interrupt", "abort":
		rt.coord.Interrupt(ctx)
		fmt.Println("Interrupt issued: returning home and disconnecting.")
	default:
		fmt.Printf("Unknown command /%s, try /help\n", fields[0])
	}
	return false
}

func printStatus(rt *runtime) {
	snap := rt.sess.Status()
	fmt.Printf("State: %s\n", snap.State)
	if snap.Connected {
		fmt.Printf("Connected to %s\n", snap.ConnectionString)
	} else {
		fmt.Println("Not connected")
	}
	if snap.Location != nil {
		fmt.Printf("Position: lat %.6f lon %.6f alt %.1fm\n",
			snap.Location.Lat, snap.Location.Lon, snap.Location.Alt)
	}
	if snap.Battery != nil {
		fmt.Printf("Battery: %.1f%% (%.2fV)\n", snap.Battery.Level, snap.Battery.Voltage)
	}
	if snap.MissionActive {
		fmt.Println("A mission is executing.")
	}
}

func printHelp() {
	fmt.Print(`Commands:
  /connect [conn]   connect to the vehicle (default from config)
  /disconnect       disconnect from the vehicle
  /status           show vehicle status
  /interrupt        abort: return home and disconnect
  /clear            clear conversation history
  /quit             exit

Anything else is sent to the model. Code blocks in the reply are executed
against the vehicle automatically.
`)
}
