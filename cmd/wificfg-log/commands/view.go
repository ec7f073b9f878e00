// Package commands implements the wificfg-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leegang/WifiConfig/pkg/log"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timeLayout)
	mode := event.Mode
	if mode == "" {
		mode = "-"
	}
	fmt.Fprintf(w, "%s [boot:%s] %-12s %s %s\n", ts, shortenID(event.BootID), mode, event.Category, typeLabel(event))

	switch {
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Request != nil:
		formatRequestDetails(w, event.RemoteAddr, event.Request)
	case event.Storage != nil:
		if event.Storage.Bytes > 0 {
			fmt.Fprintf(w, "  Bytes: %d\n", event.Storage.Bytes)
		}
	case event.Radio != nil:
		formatRadioDetails(w, event.Radio)
	case event.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}

	fmt.Fprintln(w)
}

// typeLabel names the payload carried by an event.
func typeLabel(event log.Event) string {
	switch {
	case event.StateChange != nil:
		return "State"
	case event.Request != nil:
		return event.Request.Method + " " + event.Request.Path
	case event.Storage != nil:
		return event.Storage.Op.String()
	case event.Radio != nil:
		return event.Radio.Op.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a boot ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatRequestDetails(w io.Writer, remote string, req *log.RequestEvent) {
	if remote != "" {
		fmt.Fprintf(w, "  Remote: %s\n", remote)
	}
	if req.Host != "" {
		fmt.Fprintf(w, "  Host: %s\n", req.Host)
	}
	fmt.Fprintf(w, "  Status: %d\n", req.Status)
	if req.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(req.Duration))
	}
}

func formatRadioDetails(w io.Writer, ev *log.RadioEvent) {
	if ev.SSID != "" {
		fmt.Fprintf(w, "  SSID: %s\n", ev.SSID)
	}
	if ev.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", ev.Status)
	}
	if ev.Attempts > 0 {
		fmt.Fprintf(w, "  Attempts: %d\n", ev.Attempts)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be state, request, storage, radio, or error)", s)
	}
	return c, nil
}

// RunView writes every event matching filter to output.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			if reader.Truncated() {
				fmt.Fprintln(output, "(journal ends in a partial event)")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
