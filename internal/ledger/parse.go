package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

const startedMarker = "STARTED (PID "

var startedRx = regexp.MustCompile(`STARTED \(PID (\d+)\)`)

// Launch is a successful launch parsed from a history line.
type Launch struct {
	Timestamp string
	Dataset   string
	Tool      string
	PID       int
}

// ParseStarted parses a job outcome line carrying the STARTED (PID <n>)
// marker. The first three whitespace separated tokens are the timestamp,
// dataset and tool; the PID comes from the marker itself as the outcome text
// contains spaces. Parsing never looks at any other line.
func ParseStarted(line string) (Launch, bool) {
	if !strings.Contains(line, startedMarker) {
		return Launch{}, false
	}
	m := startedRx.FindStringSubmatch(line)
	if m == nil {
		return Launch{}, false
	}
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Launch{}, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil || pid <= 0 {
		return Launch{}, false
	}
	return Launch{
		Timestamp: fields[0],
		Dataset:   fields[1],
		Tool:      fields[2],
		PID:       pid,
	}, true
}
