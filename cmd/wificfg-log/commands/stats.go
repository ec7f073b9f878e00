package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/leegang/WifiConfig/pkg/log"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Boots            map[string]*BootStats
	Errors           int
	Truncated        bool
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// BootStats holds statistics for a single boot.
type BootStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Requests  int
	Mode      string

	// Restart is the reason of the last restart recorded in this boot.
	Restart string
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Boots:            make(map[string]*BootStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			stats.Truncated = reader.Truncated()
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	boot, ok := s.Boots[event.BootID]
	if !ok {
		boot = &BootStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Boots[event.BootID] = boot
	}
	boot.Events++
	if event.Timestamp.After(boot.LastSeen) {
		boot.LastSeen = event.Timestamp
	}
	if event.Mode != "" {
		boot.Mode = event.Mode
	}
	if event.Request != nil {
		boot.Requests++
	}
	if sc := event.StateChange; sc != nil && sc.NewState == "RESTART" {
		boot.Restart = sc.Reason
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the journal and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Provisioning Journal Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryState; c <= log.CategoryError; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Boots: %d\n", len(stats.Boots))
	if len(stats.Boots) > 0 {
		type bootInfo struct {
			id    string
			stats *BootStats
		}
		boots := make([]bootInfo, 0, len(stats.Boots))
		for id, bs := range stats.Boots {
			boots = append(boots, bootInfo{id, bs})
		}
		sort.Slice(boots, func(i, j int) bool {
			return boots[i].stats.FirstSeen.Before(boots[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, b := range boots {
			duration := b.stats.LastSeen.Sub(b.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(b.id), b.stats.Events, duration)
			if b.stats.Mode != "" {
				fmt.Fprintf(w, "           Mode: %s\n", b.stats.Mode)
			}
			if b.stats.Requests > 0 {
				fmt.Fprintf(w, "           Requests: %d\n", b.stats.Requests)
			}
			if b.stats.Restart != "" {
				fmt.Fprintf(w, "           Restart: %s\n", b.stats.Restart)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
	if stats.Truncated {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Journal ends in a partial event.")
	}
}
