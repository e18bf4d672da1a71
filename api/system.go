package api

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const gib = 1024 * 1024 * 1024

// ServerStatus is the host resource usage shown on the dashboard
type ServerStatus struct {
	CPUPercent  float64 `json:"cpu_percent"`
	RAMPercent  float64 `json:"ram_percent"`
	RAMUsed     float64 `json:"ram_used"`
	RAMTotal    float64 `json:"ram_total"`
	DiskPercent float64 `json:"disk_percent"`
	DiskUsed    float64 `json:"disk_used"`
	DiskTotal   float64 `json:"disk_total"`
	Uptime      string  `json:"uptime"`
}

// ServiceStatus is the systemd state of one unit
type ServiceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Active bool   `json:"active"`
	PID    string `json:"pid,omitempty"`
}

// SystemProbe reports host and service state
type SystemProbe interface {
	Server(ctx context.Context) (ServerStatus, error)
	Services(ctx context.Context, units []string) []ServiceStatus
}

// HostProbe reads host metrics with gopsutil and unit state with systemctl
type HostProbe struct {
	// DiskPath is the mount point reported as disk usage
	DiskPath string
	// CPUSample is how long CPU usage is sampled
	CPUSample time.Duration
	// Systemctl is the systemctl binary
	Systemctl string
}

// NewHostProbe creates a probe for the root filesystem
func NewHostProbe() *HostProbe {
	return &HostProbe{DiskPath: "/", CPUSample: time.Second, Systemctl: "systemctl"}
}

// Server implements SystemProbe
func (p *HostProbe) Server(ctx context.Context) (ServerStatus, error) {
	var s ServerStatus

	percents, err := cpu.PercentWithContext(ctx, p.CPUSample, false)
	if err != nil {
		return s, fmt.Errorf("failed to read CPU usage: %w", err)
	}
	if len(percents) > 0 {
		s.CPUPercent = round2(percents[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read memory usage: %w", err)
	}
	s.RAMPercent = round2(vm.UsedPercent)
	s.RAMUsed = round2(float64(vm.Used) / gib)
	s.RAMTotal = round2(float64(vm.Total) / gib)

	du, err := disk.UsageWithContext(ctx, p.DiskPath)
	if err != nil {
		return s, fmt.Errorf("failed to read disk usage of %s: %w", p.DiskPath, err)
	}
	s.DiskPercent = round2(du.UsedPercent)
	s.DiskUsed = round2(float64(du.Used) / gib)
	s.DiskTotal = round2(float64(du.Total) / gib)

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read uptime: %w", err)
	}
	s.Uptime = formatUptime(time.Duration(uptime) * time.Second)
	return s, nil
}

// Services implements SystemProbe. A unit whose state cannot be read is
// reported as unknown.
func (p *HostProbe) Services(ctx context.Context, units []string) []ServiceStatus {
	statuses := make([]ServiceStatus, 0, len(units))
	for _, unit := range units {
		statuses = append(statuses, p.service(ctx, unit))
	}
	return statuses
}

func (p *HostProbe) service(ctx context.Context, unit string) ServiceStatus {
	st := ServiceStatus{Name: unit, Status: "unknown"}

	// is-active exits non-zero for inactive units but still prints the state
	out, _ := exec.CommandContext(ctx, p.Systemctl, "is-active", unit).Output()
	if state := strings.TrimSpace(string(out)); state != "" {
		st.Status = state
	}
	st.Active = st.Status == "active"
	if !st.Active {
		return st
	}

	out, err := exec.CommandContext(ctx, p.Systemctl, "show", "-p", "MainPID", "--value", unit).Output()
	if err == nil {
		if pid := strings.TrimSpace(string(out)); pid != "" && pid != "0" {
			st.PID = pid
		}
	}
	return st
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
