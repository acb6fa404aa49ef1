package bootloader

import "time"

// Phases reported in Progress.Phase.
const (
	PhasePlanning    = "planning"
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseVerifying   = "verifying"
	PhaseReading     = "reading"
	PhaseComplete    = "complete"
)

// Progress is a snapshot of a running Write, Erase or Read.
type Progress struct {
	Phase string

	// Current and Total count chunks while programming and sectors while erasing.
	Current int
	Total   int

	Percentage   float64
	BytesWritten int
	ElapsedTime  time.Duration
}

// ProgressCallback receives Progress snapshots. It runs on the programming
// goroutine, so a slow callback slows the transfer.
//
//	prog := bootloader.New(session, member,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%-11s %5.1f%% %d/%d\n", p.Phase, p.Percentage, p.Current, p.Total)
//	    }),
//	)
type ProgressCallback func(Progress)
