package cpuinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Info is a snapshot of the host CPU, used for the startup banner and the
// engine's device bookkeeping.
type Info struct {
	Cores   int
	Logical int
	FreqMHz int
	Brand   string
}

// Detect gathers CPU information. On Linux the brand and frequency come from
// /proc/cpuinfo; elsewhere a platform label is used.
func Detect() Info {
	logical := runtime.NumCPU()
	info := Info{
		Cores:   logical,
		Logical: logical,
		Brand:   runtime.GOOS + " CPU",
	}

	if runtime.GOOS == "linux" {
		if brand, freq, ok := readProcCPUInfo("/proc/cpuinfo"); ok {
			if brand != "" {
				info.Brand = brand
			}
			info.FreqMHz = freq
		}
	}
	return info
}

func readProcCPUInfo(path string) (brand string, freqMHz int, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, false
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "model name":
			if brand == "" {
				brand = value
			}
		case "cpu MHz":
			if freqMHz == 0 {
				if f, err := strconv.ParseFloat(value, 64); err == nil {
					freqMHz = int(f)
				}
			}
		}
		if brand != "" && freqMHz != 0 {
			break
		}
	}
	return brand, freqMHz, true
}
