package sampler

// parse.go decodes the output of the device commands used for sampling.

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseProcessTicks returns utime+stime+cutime+cstime of a /proc/<pid>/stat
// line.
func ParseProcessTicks(out string) (float64, error) {
	// The command name is parenthesised and may contain spaces.
	end := strings.LastIndex(out, ")")
	if end < 0 {
		return 0, fmt.Errorf("invalid process stat: %q", out)
	}
	// Fields after the command name start at the process state (field 3).
	fields := strings.Fields(out[end+1:])
	if len(fields) < 15 {
		return 0, fmt.Errorf("invalid process stat: %d fields", len(fields)+2)
	}

	var total float64
	for _, f := range fields[11:15] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid process stat value %q: %w", f, err)
		}
		total += v
	}
	return total, nil
}

// ParseCPUTicks returns the total and idle ticks of the aggregate cpu line
// of /proc/stat. The total is the sum of the first seven tick columns.
func ParseCPUTicks(out string) (total, idle float64, err error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		if len(fields) < 8 {
			return 0, 0, fmt.Errorf("invalid cpu line: %d fields", len(fields))
		}
		for i := 1; i < 8; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid cpu tick %q: %w", fields[i], err)
			}
			total += v
			if i == 4 {
				idle = v
			}
		}
		return total, idle, nil
	}
	return 0, 0, fmt.Errorf("no aggregate cpu line in /proc/stat")
}

var (
	totalPSSRe  = regexp.MustCompile(`TOTAL PSS:\s*(\d+)`)
	totalRowRe  = regexp.MustCompile(`(?m)^\s*TOTAL\s+(\d+)`)
	nativeRowRe = regexp.MustCompile(`(?m)^\s*Native Heap\s+(\d+)`)
	dalvikRowRe = regexp.MustCompile(`(?m)^\s*Dalvik Heap\s+(\d+)`)
)

// Memory is the PSS breakdown of a process in KB.
type Memory struct {
	Total  float64
	Native float64
	Dalvik float64
}

// ParseMeminfo extracts the PSS figures of `dumpsys meminfo <pid>`.
func ParseMeminfo(out string) (Memory, error) {
	var m Memory

	match := totalPSSRe.FindStringSubmatch(out)
	if match == nil {
		match = totalRowRe.FindStringSubmatch(out)
	}
	if match == nil {
		return m, fmt.Errorf("no TOTAL PSS in meminfo output")
	}
	m.Total, _ = strconv.ParseFloat(match[1], 64)

	if match := nativeRowRe.FindStringSubmatch(out); match != nil {
		m.Native, _ = strconv.ParseFloat(match[1], 64)
	}
	if match := dalvikRowRe.FindStringSubmatch(out); match != nil {
		m.Dalvik, _ = strconv.ParseFloat(match[1], 64)
	}
	return m, nil
}

var (
	framesRe = regexp.MustCompile(`Total frames rendered:\s*(\d+)`)
	jankyRe  = regexp.MustCompile(`Janky frames:\s*(\d+)`)
)

// ParseGfxinfo returns the rendered and janky frame counts of
// `dumpsys gfxinfo <pkg>`.
func ParseGfxinfo(out string) (frames, janky int, err error) {
	match := framesRe.FindStringSubmatch(out)
	if match == nil {
		return 0, 0, fmt.Errorf("no frame count in gfxinfo output")
	}
	frames, _ = strconv.Atoi(match[1])
	if match := jankyRe.FindStringSubmatch(out); match != nil {
		janky, _ = strconv.Atoi(match[1])
	}
	return frames, janky, nil
}

// ParsePID returns the first pid printed by pidof.
func ParsePID(out string) (int, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, ErrProcessNotFound
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid pid %q: %w", fields[0], err)
	}
	return pid, nil
}
