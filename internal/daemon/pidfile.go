// Package daemon tracks the `crev serve` process through a state file holding
// its PID and listening port.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// State is what a running server records about itself.
type State struct {
	PID  int
	Port int
}

// PIDFile manages the server state file.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records the current process as the server listening on port. It
// fails when another live server owns the file and replaces a stale one.
func (p *PIDFile) Acquire(port int) error {
	if st, running := p.IsRunning(); running && st.PID != os.Getpid() {
		return fmt.Errorf("server already running (PID %d, port %d)", st.PID, st.Port)
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return p.Write(State{PID: os.Getpid(), Port: port})
}

// Release removes the file if it still belongs to the current process.
func (p *PIDFile) Release() error {
	st, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil || st.PID != os.Getpid() {
		return err
	}
	return p.Remove()
}

// Write stores st as "<pid> <port>".
func (p *PIDFile) Write(st State) error {
	return os.WriteFile(p.Path, []byte(fmt.Sprintf("%d %d\n", st.PID, st.Port)), 0o644)
}

// Read parses the state file. A file holding only a PID yields port 0.
func (p *PIDFile) Read() (State, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return State{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 || len(fields) > 2 {
		return State{}, fmt.Errorf("invalid PID file content: %q", strings.TrimSpace(string(data)))
	}

	var st State
	if st.PID, err = strconv.Atoi(fields[0]); err != nil {
		return State{}, fmt.Errorf("invalid PID file content: %w", err)
	}
	if len(fields) == 2 {
		if st.Port, err = strconv.Atoi(fields[1]); err != nil {
			return State{}, fmt.Errorf("invalid PID file content: %w", err)
		}
	}
	return st, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
