package transport

import (
	"path/filepath"
	"runtime"
	"sort"
)

// Candidates 展开串口通配符；未指定时按平台给出常见设备
func Candidates(patterns ...string) []string {
	if runtime.GOOS == "windows" {
		if len(patterns) == 0 {
			return []string{"COM1", "COM2", "COM3", "COM4", "COM5"}
		}
		return patterns
	}

	if len(patterns) == 0 {
		patterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}

	seen := map[string]bool{}
	var devs []string
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				devs = append(devs, m)
			}
		}
	}
	sort.Strings(devs)
	return devs
}
