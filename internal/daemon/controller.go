package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// stopGrace is how long a daemon gets between SIGTERM and SIGKILL.
const stopGrace = 5 * time.Second

// Status describes one module daemon.
type Status struct {
	Module  string `json:"module"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Port    int    `json:"port"`
	URL     string `json:"url"`
	LogFile string `json:"log_file"`
}

// Controller manages module daemons through PID files. One PID file
// and one log file per module under the daemons cache directory.
type Controller struct {
	// Dir is the daemons cache directory (…/daemons).
	Dir string
	// Host defaults to loopback.
	Host string
	// binary resolves the module server binary; swappable for tests.
	binary func(module string) string
	// spawn launches the detached daemon process; swappable for tests.
	spawn func(argv []string, logFile string) (int, error)
}

// NewController returns a controller over dir.
func NewController(dir string) *Controller {
	return &Controller{
		Dir:    dir,
		Host:   "127.0.0.1",
		binary: func(module string) string { return "ninja-" + module },
		spawn:  spawnDetached,
	}
}

func (c *Controller) pidFile(module string) string {
	return filepath.Join(c.Dir, module+".pid")
}

func (c *Controller) logFile(module string) string {
	return filepath.Join(c.Dir, module+".log")
}

// Start launches the module daemon unless the PID file already points
// at a live process.
func (c *Controller) Start(module string) (Status, error) {
	st, err := c.Status(module)
	if err != nil {
		return Status{}, err
	}
	if st.Running {
		return st, nil
	}
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return Status{}, fmt.Errorf("create daemon dir: %w", err)
	}

	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	argv := []string{
		c.binary(module),
		"--http",
		"--host", host,
		"--port", strconv.Itoa(st.Port),
	}
	pid, err := c.spawn(argv, c.logFile(module))
	if err != nil {
		return Status{}, fmt.Errorf("start %s: %w", module, err)
	}
	if err := os.WriteFile(c.pidFile(module), []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return Status{}, fmt.Errorf("write pid file: %w", err)
	}
	st.Running = true
	st.PID = pid
	return st, nil
}

// Stop terminates the module daemon: SIGTERM, a grace period, then
// SIGKILL. Stopping a daemon that is not running is not an error.
func (c *Controller) Stop(module string) error {
	pid, ok := c.readPID(module)
	if !ok || !alive(pid) {
		_ = os.Remove(c.pidFile(module))
		return nil
	}

	_ = syscall.Kill(pid, syscall.SIGTERM)
	deadline := time.Now().Add(stopGrace)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if alive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	return os.Remove(c.pidFile(module))
}

// Restart composes Stop and Start.
func (c *Controller) Restart(module string) (Status, error) {
	if err := c.Stop(module); err != nil {
		return Status{}, err
	}
	return c.Start(module)
}

// Status reports the module's daemon state without touching it.
func (c *Controller) Status(module string) (Status, error) {
	port, err := PortFor(module)
	if err != nil {
		return Status{}, err
	}
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	st := Status{
		Module:  module,
		Port:    port,
		URL:     fmt.Sprintf("http://%s:%d/sse", host, port),
		LogFile: c.logFile(module),
	}
	if pid, ok := c.readPID(module); ok && alive(pid) {
		st.Running = true
		st.PID = pid
	}
	return st, nil
}

// StatusAll reports every known module.
func (c *Controller) StatusAll() ([]Status, error) {
	var out []Status
	for _, module := range Modules() {
		st, err := c.Status(module)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (c *Controller) readPID(module string) (int, bool) {
	data, err := os.ReadFile(c.pidFile(module))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// alive reports whether a process with this pid exists.
func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// spawnDetached starts argv in its own session with output appended to
// logFile, and does not wait for it.
func spawnDetached(argv []string, logFile string) (int, error) {
	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap in the background so the child never zombies while we live.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
