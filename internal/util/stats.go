package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent  atomic.Int64 // cumulative frames handed to the transport
	FramesRecv  atomic.Int64 // cumulative frames delivered by the transport
	BytesSent   atomic.Int64 // cumulative payload bytes sent
	BytesRecv   atomic.Int64 // cumulative payload bytes received
	Retransmits atomic.Int64 // cumulative fragment retransmissions
	Transfers   atomic.Int64 // cumulative completed file transfers
}

func (s *stats) AddSent(n int) { s.FramesSent.Add(1); s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.FramesRecv.Add(1); s.BytesRecv.Add(int64(n)) }
func (s *stats) AddRetransmit() { s.Retransmits.Add(1) }
func (s *stats) AddTransfer() { s.Transfers.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every 10 seconds. Quiet periods produce no output. It stops when ctx
// is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevRetr int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				retr := Stats.Retransmits.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0
				retrD := retr - prevRetr

				if outS > 10 || inS > 10 || retrD > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, retrD))
				}

				prevSent = sent
				prevRecv = recv
				prevRetr = retr

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width
// (exactly 8 chars), for example: "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, retr int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Retransmits: %2d",
		formatBytes(inS),
		formatBytes(outS),
		retr,
	)
}
