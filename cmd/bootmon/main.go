package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modoterra/bootmon/internal/buildinfo"
	"github.com/modoterra/bootmon/pkg/core"
	"github.com/modoterra/bootmon/pkg/daemon/service"
	"github.com/modoterra/bootmon/pkg/transport/uds"
)

var socketPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bootmon",
	Short: "Control client for the bootmond serial boot/crash monitor",
	Long:  "Bootmon talks to bootmond, which watches an embedded target's serial console, tracks boot attempts, and records crash dumps per run.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/bootmond.sock", "daemon socket path")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(crashCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(setRunCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 0, "show only the last N lines")
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}

func dialDaemon() (*uds.Client, error) {
	client, err := uds.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socketPath, err)
	}
	return client, nil
}

// call dials, issues one request, and decodes the response into out.
func call(method string, data any, out any) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Request(ctx, method, data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the daemon is running",
	RunE: func(_ *cobra.Command, _ []string) error {
		var pong uds.PingResponse
		if err := call(uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if pong.Pong {
			fmt.Println("pong ✓")
		}
		return nil
	},
}

// --- Status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the target's boot phase and current run",
	RunE: func(_ *cobra.Command, _ []string) error {
		var status uds.StatusResponse
		if err := call(uds.MethodStatus, nil, &status); err != nil {
			return err
		}
		fmt.Printf("phase:    %s\n", status.Phase)
		if status.RunID != "" {
			fmt.Printf("run:      %s\n", status.RunID)
		} else {
			fmt.Printf("run:      (none yet)\n")
		}
		fmt.Printf("worker:   %s\n", onOff(status.Running, "running", "stopped"))
		fmt.Printf("echo:     %s\n", onOff(status.Echo, "on", "off"))
		fmt.Printf("recorded: %d crash(es)\n", status.Runs)
		return nil
	},
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

// --- Crash ---

var crashCmd = &cobra.Command{
	Use:   "crash",
	Short: "Show the most recent crash record",
	RunE: func(_ *cobra.Command, _ []string) error {
		var last uds.LastCrashResponse
		if err := call(uds.MethodLastCrash, nil, &last); err != nil {
			return err
		}
		if last.Crash == nil {
			fmt.Println("no crash recorded")
			return nil
		}
		printCrash(*last.Crash)
		return nil
	},
}

func printCrash(rec core.CrashRecord) {
	fmt.Printf("run:       %s\n", rec.RunID)
	fmt.Printf("time:      %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Printf("complete:  %v\n", rec.Complete)
	fmt.Printf("esr:       %s\n", orDash(rec.ESR))
	fmt.Printf("elr:       %s\n", orDash(rec.ELR))
	fmt.Printf("lr:        %s\n", orDash(rec.LR))
	fmt.Printf("faulting:  %s\n", orDash(rec.FaultingInstruction))
	fmt.Println("dump:")
	for _, line := range rec.RawDump {
		fmt.Printf("  %s\n", line)
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// --- Logs ---

var logsTail int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the rolling console log",
	RunE: func(_ *cobra.Command, _ []string) error {
		var logs uds.RecentLogsResponse
		if err := call(uds.MethodRecentLogs, uds.RecentLogsRequest{Tail: logsTail}, &logs); err != nil {
			return err
		}
		for _, line := range logs.Lines {
			fmt.Println(line)
		}
		return nil
	},
}

// --- History ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List all recorded runs and their crashes",
	RunE: func(_ *cobra.Command, _ []string) error {
		var runs map[string]core.CrashRecord
		if err := call(uds.MethodHistory, nil, &runs); err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		ids := make([]string, 0, len(runs))
		for id := range runs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, aok := core.ParseRunID(ids[i])
			b, bok := core.ParseRunID(ids[j])
			if aok && bok {
				return a < b
			}
			return ids[i] < ids[j]
		})

		for _, id := range ids {
			rec := runs[id]
			status := "complete"
			if !rec.Complete {
				status = "partial"
			}
			fmt.Printf("%-10s %s  %-8s faulting=%s  %d lines\n",
				id, rec.Timestamp.Format(time.RFC3339), status,
				orDash(rec.FaultingInstruction), len(rec.RawDump))
		}
		return nil
	},
}

// --- Watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events (state changes, crashes, echoed lines)",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := dialDaemon()
		if err != nil {
			return err
		}
		defer client.Close()

		client.OnEvent(func(msg uds.Message) {
			switch msg.Method {
			case uds.EventState:
				var state uds.StateEvent
				if json.Unmarshal(msg.Data, &state) == nil {
					fmt.Printf("[state] %s %s\n", state.RunID, state.Phase)
				}
			case uds.EventCrash:
				var rec core.CrashRecord
				if json.Unmarshal(msg.Data, &rec) == nil {
					fmt.Printf("[crash] %s complete=%v lines=%d\n", rec.RunID, rec.Complete, len(rec.RawDump))
				}
			case uds.EventLine:
				var line core.LogLine
				if json.Unmarshal(msg.Data, &line) == nil {
					fmt.Println(line.Line)
				}
			}
		})

		// Confirm the connection before waiting for events.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := client.Request(ctx, uds.MethodPing, nil); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

// --- Echo ---

var echoCmd = &cobra.Command{
	Use:   "echo on|off",
	Short: "Toggle broadcasting of consumed console lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return call(uds.MethodSetEcho, uds.SetEchoRequest{Enabled: enabled}, nil)
	},
}

// --- SetRun ---

var setRunCmd = &cobra.Command{
	Use:   "set-run <id>",
	Short: "Override the current run identifier",
	Long:  "Override the current run identifier, e.g. to correlate crashes with an externally driven flash/reset cycle. An id of the form run_<n> also advances the automatic counter.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return call(uds.MethodSetRunID, uds.SetRunIDRequest{RunID: args[0]}, nil)
	},
}

// --- Start / Stop ---

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor worker",
	RunE: func(_ *cobra.Command, _ []string) error {
		return call(uds.MethodStart, nil, nil)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the monitor worker and release the serial port",
	RunE: func(_ *cobra.Command, _ []string) error {
		return call(uds.MethodStop, nil, nil)
	},
}

// --- Service ---

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the bootmond systemd user service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install <config>",
	Short: "Install and start bootmond as a systemd user service",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := service.Install(args[0]); err != nil {
			return err
		}
		fmt.Println("bootmond service installed and started")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the bootmond systemd user service",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := service.Uninstall(); err != nil {
			return err
		}
		fmt.Println("bootmond service removed")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service and socket status",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Println(service.Status(socketPath))
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show client and daemon versions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Printf("bootmon %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)

		var daemonVersion uds.VersionResponse
		if err := call(uds.MethodVersion, nil, &daemonVersion); err != nil {
			fmt.Println("bootmond: not reachable")
			return nil
		}
		fmt.Printf("bootmond %s (%s) built %s\n", daemonVersion.Version, daemonVersion.Commit, daemonVersion.Date)
		return nil
	},
}
