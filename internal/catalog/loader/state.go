package loader

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/materialmap/internal/catalog/materials"
)

// Status is the position of the primary load in its state machine.
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusPhase1   Status = "PHASE1_LOADING"
	StatusPhase2   Status = "PHASE2_LOADING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

// LoadingState is the progress record of the current load attempt. It is
// reset at the start of every attempt.
type LoadingState struct {
	AttemptID      uuid.UUID           `json:"attemptId"`
	Status         Status              `json:"status"`
	StartedAt      time.Time           `json:"startedAt"`
	TotalFiles     int                 `json:"totalFiles"`
	ProcessedFiles int                 `json:"processedFiles"`
	FailedFiles    []string            `json:"failedFiles"`
	IsOffline      bool                `json:"isOffline"`
	LastError      string              `json:"lastError,omitempty"`
	LoadedVia      materials.LoadedVia `json:"loadedVia,omitempty"`
}

func (s LoadingState) clone() LoadingState {
	s.FailedFiles = append([]string(nil), s.FailedFiles...)
	return s
}

// Report is what a user is shown when loading failed.
type Report struct {
	Title          string
	Message        string
	FailedFiles    []string
	ProcessedFiles int
	Offline        bool
}

const reportFileLimit = 3

func (r Report) String() string {
	var b strings.Builder
	b.WriteString(r.Message)
	if n := len(r.FailedFiles); n > 0 {
		shown := r.FailedFiles
		if n > reportFileLimit {
			shown = shown[:reportFileLimit]
		}
		fmt.Fprintf(&b, "\n\nFailed files (%d): %s", n, strings.Join(shown, ", "))
		if n > reportFileLimit {
			fmt.Fprintf(&b, " and %d more...", n-reportFileLimit)
		}
	}
	if r.ProcessedFiles > 0 {
		fmt.Fprintf(&b, "\n\nSuccessfully processed: %d files", r.ProcessedFiles)
	}
	if r.Offline {
		b.WriteString("\n\nYou appear to be offline. Please check your internet connection.")
	}
	return b.String()
}

// Stats is a snapshot of the loader's cache.
type Stats struct {
	CacheSize       int    `json:"cacheSize"`
	IsOnline        bool   `json:"isOnline"`
	Version         string `json:"version"`
	LoadingPromises int    `json:"loadingPromises"`
}
