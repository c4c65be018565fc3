// Package sysinfo describes the host the service runs on.
package sysinfo

import (
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const osReleasePath = "/proc/sys/kernel/osrelease"

// TimeLayout is the layout used for the server time
const TimeLayout = "2006-01-02 15:04:05"

// Info is a snapshot of the host description
type Info struct {
	Host      string `json:"host"`
	Platform  string `json:"platform"`
	GoVersion string `json:"go_version"`
	Time      string `json:"time"`
}

// Collector gathers host information
type Collector struct {
	fs   afero.Fs
	host string
	now  func() time.Time
}

// NewCollector creates a collector. host is the configured public host name
// and may be empty.
func NewCollector(fs afero.Fs, host string) *Collector {
	return &Collector{fs: fs, host: host, now: time.Now}
}

// Collect returns the current host information
func (c *Collector) Collect() Info {
	return Info{
		Host:      c.host,
		Platform:  c.platform(),
		GoVersion: runtime.Version(),
		Time:      c.now().Format(TimeLayout),
	}
}

// platform mirrors "uname -sr" where the kernel release is readable
func (c *Collector) platform() string {
	system := runtime.GOOS
	if len(system) > 0 {
		system = strings.ToUpper(system[:1]) + system[1:]
	}

	data, err := afero.ReadFile(c.fs, osReleasePath)
	if err != nil {
		return system
	}

	release := strings.TrimSpace(string(data))
	if release == "" {
		return system
	}
	return system + " " + release
}
