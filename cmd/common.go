package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"pngdup/pkg/usecase"
)

func newUseCaseService() *usecase.Service {
	return usecase.New(usecase.Options{Logger: logger})
}

func printDryRunBanner() {
	if !dryRun {
		return
	}

	fmt.Println("=== DRY RUN - no changes will be made ===")
	fmt.Println()
}

func printCommandHeader(command, label, path string) {
	fmt.Printf("Command: %s\n", command)
	fmt.Printf("%s %s\n", label, path)
}

func printSummary(lines ...string) {
	fmt.Println("=== Summary ===")
	for _, line := range lines {
		fmt.Println(line)
	}
}

func printDryRunHint() {
	if !dryRun {
		return
	}

	fmt.Println()
	fmt.Println("Run without --dry-run to apply changes.")
}

// printDetailedOperations prints every operation in verbose or dry-run mode,
// and otherwise only the ones selected by important.
func printDetailedOperations[T any](ops []T, printOp func(T), important func(T) bool) {
	printed := false
	for _, op := range ops {
		if verbose || dryRun || important(op) {
			printOp(op)
			printed = true
		}
	}
	if printed {
		fmt.Println()
	}
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

type progressReporter struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu        sync.Mutex
	stage     string
	processed int
	total     int
}

func startProgress(label string) *progressReporter {
	p := &progressReporter{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		stage:  label,
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		defer close(p.doneCh)
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(startTime).Round(time.Second)
				stage, processed, total := p.snapshot()
				if total > 0 {
					fmt.Fprintf(os.Stderr, "%s... %d/%d, %s elapsed\n", stage, processed, total, elapsed)
				} else {
					fmt.Fprintf(os.Stderr, "%s... %s elapsed\n", stage, elapsed)
				}
			case <-p.stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	return p
}

// Report records the latest stage progress for the next tick.
func (p *progressReporter) Report(stage string, processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.processed = processed
	p.total = total
}

func (p *progressReporter) snapshot() (string, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stage, p.processed, p.total
}

func (p *progressReporter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
	})
}
