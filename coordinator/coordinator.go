// Package coordinator tracks running batch encryption processes so they can be observed,
// stopped and drained on shutdown.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

var (
	// ErrProcessExists is returned when a process id is already running
	ErrProcessExists = errors.New("process already exists")
	// ErrShuttingDown is returned when a process is started after Shutdown
	ErrShuttingDown = errors.New("coordinator is shutting down")
)

type Process struct {
	ID        string
	Status    types.Status
	StartTime time.Time
	EndTime   time.Time
	Progress  types.Progress
	Error     error
	Cancel    context.CancelFunc
	ctx       context.Context
}

// Context is cancelled when the process is stopped or the coordinator shuts down
func (p *Process) Context() context.Context {
	return p.ctx
}

func (p *Process) snapshot() *Process {
	return &Process{
		ID:        p.ID,
		Status:    p.Status,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Progress:  p.Progress,
		Error:     p.Error,
	}
}

type Coordinator struct {
	mu              sync.RWMutex
	activeProcesses map[string]*Process
	finished        map[string]*Process
	shutdownOnce    sync.Once
	shutdownCh      chan struct{}
	wg              sync.WaitGroup
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		activeProcesses: make(map[string]*Process),
		finished:        make(map[string]*Process),
		shutdownCh:      make(chan struct{}),
	}
}

func (c *Coordinator) StartProcess(ctx context.Context, processID string) (*Process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsShuttingDown() {
		return nil, ErrShuttingDown
	}
	if _, exists := c.activeProcesses[processID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrProcessExists, processID)
	}

	processCtx, cancel := context.WithCancel(ctx)

	process := &Process{
		ID:        processID,
		Status:    types.StatusProcessing,
		StartTime: time.Now(),
		Cancel:    cancel,
		ctx:       processCtx,
	}

	delete(c.finished, processID)
	c.activeProcesses[processID] = process
	c.wg.Add(1)

	// marks the process cancelled if its context ends before it reports completion
	go func() {
		<-processCtx.Done()
		c.mu.Lock()
		if p, exists := c.activeProcesses[processID]; exists && p.Status == types.StatusProcessing {
			p.Status = types.StatusCancelled
			p.Error = processCtx.Err()
		}
		c.mu.Unlock()
	}()

	return process, nil
}

// StopProcess cancels a running process and forgets it
func (c *Coordinator) StopProcess(processID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if process, exists := c.activeProcesses[processID]; exists {
		process.Cancel()
		c.release(process, types.StatusCancelled, context.Canceled)
	}
}

// CompleteProcess records the final state of a process. The process is kept for
// GetProcessStatus until the id is started again.
func (c *Coordinator) CompleteProcess(processID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	process, exists := c.activeProcesses[processID]
	if !exists {
		return
	}

	status := types.StatusCompleted
	switch {
	case errors.Is(err, context.Canceled), process.Status == types.StatusCancelled:
		status = types.StatusCancelled
	case err != nil:
		status = types.StatusFailed
	case process.Progress.Failed > 0:
		status = types.StatusCompletedWithErrors
	}
	if err == nil {
		err = process.Error
	}
	process.Cancel()
	c.release(process, status, err)
}

// release moves a process out of the active set; c.mu must be held
func (c *Coordinator) release(process *Process, status types.Status, err error) {
	process.Status = status
	process.Error = err
	process.EndTime = time.Now()
	delete(c.activeProcesses, process.ID)
	c.finished[process.ID] = process.snapshot()
	c.wg.Done()
}

func (c *Coordinator) UpdateProcessStatus(processID string, status types.Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if process, exists := c.activeProcesses[processID]; exists {
		process.Status = status
		process.Error = err
	}
}

// UpdateProgress replaces the progress counters of a running process
func (c *Coordinator) UpdateProgress(processID string, progress types.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if process, exists := c.activeProcesses[processID]; exists {
		if progress.Total > 0 {
			progress.Percent = float64(progress.Processed) / float64(progress.Total) * 100
		}
		process.Progress = progress
	}
}

func (c *Coordinator) GetProcessStatus(processID string) *Process {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if process, exists := c.activeProcesses[processID]; exists {
		return process.snapshot()
	}
	if process, exists := c.finished[processID]; exists {
		return process.snapshot()
	}
	return nil
}

// ListProcesses returns copies of the running processes
func (c *Coordinator) ListProcesses() []*Process {
	c.mu.RLock()
	defer c.mu.RUnlock()

	processes := make([]*Process, 0, len(c.activeProcesses))
	for _, process := range c.activeProcesses {
		processes = append(processes, process.snapshot())
	}
	return processes
}

// Shutdown cancels every running process and waits until each one has been completed
// or stopped, or until ctx ends.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })

	c.mu.Lock()
	for _, process := range c.activeProcesses {
		process.Cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) IsShuttingDown() bool {
	select {
	case <-c.shutdownCh:
		return true
	default:
		return false
	}
}
