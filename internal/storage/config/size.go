package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMemoryLimit parses a memory limit string like "2GB" into bytes.
func ParseMemoryLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(c rune) bool { return c < '0' || c > '9' })
	if i == -1 {
		i = len(s)
	}

	value, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid memory limit %q", s)
	}

	switch strings.TrimSpace(s[i:]) {
	case "B", "b", "":
		return value, nil
	case "KB", "kb", "K", "k":
		return value * 1024, nil
	case "MB", "mb", "M", "m":
		return value * 1024 * 1024, nil
	case "GB", "gb", "G", "g":
		return value * 1024 * 1024 * 1024, nil
	case "TB", "tb", "T", "t":
		return value * 1024 * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("invalid memory limit unit in %q", s)
	}
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
