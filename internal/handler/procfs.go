package handler

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
)

var errProcFormat = errors.New("unexpected procfs format")

// cpuSample is the aggregate jiffy counters from the first line of /proc/stat.
type cpuSample struct {
	idle, total uint64
}

// busyPercent returns the share of non-idle time between two samples.
func (s cpuSample) busyPercent(prev cpuSample) (float64, bool) {
	if s.total <= prev.total {
		return 0, false
	}
	idle := float64(s.idle - prev.idle)
	total := float64(s.total - prev.total)
	return (1 - idle/total) * 100, true
}

func readCPU() (cpuSample, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return cpuSample{}, err
	}
	defer f.Close()
	return parseCPU(f)
}

// parseCPU reads "cpu  user nice system idle iowait irq softirq steal ...".
func parseCPU(r io.Reader) (cpuSample, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return cpuSample{}, err
	}
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return cpuSample{}, errProcFormat
	}

	var s cpuSample
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return cpuSample{}, errProcFormat
		}
		s.total += v
		if i == 3 {
			s.idle = v
		}
	}
	return s, nil
}

func readMemory() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return parseMemory(f)
}

// parseMemory returns MemTotal and MemAvailable in bytes.
func parseMemory(r io.Reader) (total, available uint64, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "MemTotal":
			total = kibToBytes(rest)
		case "MemAvailable":
			available = kibToBytes(rest)
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if total == 0 {
		return 0, 0, errProcFormat
	}
	return total, available, nil
}

func kibToBytes(s string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(s), " kB"), 10, 64)
	return v * 1024
}

func readLoad() ([3]float64, error) {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return [3]float64{}, err
	}
	defer f.Close()
	return parseLoad(f)
}

// parseLoad reads the 1, 5 and 15 minute averages from /proc/loadavg.
func parseLoad(r io.Reader) ([3]float64, error) {
	var load [3]float64
	data, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil {
		return load, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return load, errProcFormat
	}
	for i := range load {
		if load[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return load, errProcFormat
		}
	}
	return load, nil
}

// diskUsage reports used and total bytes of the filesystem holding path.
func diskUsage(path string) (used, total uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total = st.Blocks * uint64(st.Bsize)
	return total - st.Bavail*uint64(st.Bsize), total, nil
}
