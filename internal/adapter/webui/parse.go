package webui

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`[-+]?[0-9][0-9,]*(?:\.[0-9]+)?`)
	unitPattern   = regexp.MustCompile(`(?i)([-+]?[0-9][0-9,]*(?:\.[0-9]+)?)\s*([kmgtpe]?)h/?s`)
	uptimePattern = regexp.MustCompile(`(?i)([0-9]+)\s*(d|h|m|s)`)
)

var hashUnits = map[string]float64{
	"":  1,
	"k": 1e3,
	"m": 1e6,
	"g": 1e9,
	"t": 1e12,
	"p": 1e15,
	"e": 1e18,
}

// ParseNumber pulls the first number out of text such as "62.5 °C" or
// "1,204 shares"
func ParseNumber(text string) (float64, error) {
	m := numberPattern.FindString(text)

	if m == "" {
		return 0, fmt.Errorf("no number in %q", text)
	}

	return strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
}

// ParseHashrate returns H/s for text such as "512.3 GH/s". A bare number
// is taken as H/s.
func ParseHashrate(text string) (float64, error) {
	if m := unitPattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)

		if err != nil {
			return 0, err
		}

		return v * hashUnits[strings.ToLower(m[2])], nil
	}

	return ParseNumber(text)
}

// ParseUptime reads "1d 2h 3m 4s" style durations (any subset, any order)
// or a bare number of seconds
func ParseUptime(text string) (int64, error) {
	matches := uptimePattern.FindAllStringSubmatch(text, -1)

	if len(matches) == 0 {
		v, err := ParseNumber(text)

		if err != nil {
			return 0, err
		}

		return int64(v), nil
	}

	var total int64

	for _, m := range matches {
		n, err := strconv.ParseInt(m[1], 10, 64)

		if err != nil {
			return 0, err
		}

		switch strings.ToLower(m[2]) {
		case "d":
			total += n * 86400
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}

	return total, nil
}
