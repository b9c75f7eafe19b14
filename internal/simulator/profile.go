// Package simulator replays selection rounds against synthetic candidates so
// criteria and exploration settings can be compared offline.
package simulator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/edgeandnode/candidate-selection/internal/selection/engine"
)

// Profile is the hidden behaviour of one simulated candidate plus the
// attributes it advertises to the engine.
type Profile struct {
	ID          string
	SuccessRate float64
	Latency     time.Duration
	Attributes  map[string]float64
}

// Candidate returns what the gateway would hand the engine for this profile.
func (p Profile) Candidate() engine.Candidate {
	attrs := make(map[string]float64, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs[k] = v
	}
	return engine.Candidate{ID: p.ID, Attributes: attrs}
}

var (
	idColumns      = []string{"id", "address", "candidate"}
	successColumns = []string{"success_rate"}
	latencyColumns = []string{"latency_ms", "avg_latency_ms"}
)

// ParseProfiles reads CSV with a header row. An id column, a success_rate
// column and a latency_ms column are required; every other column must be
// numeric and becomes an attribute named after its header.
func ParseProfiles(r io.Reader) ([]Profile, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("profiles: empty input")
		}
		return nil, fmt.Errorf("profiles: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	idCol := findColumn(header, idColumns)
	successCol := findColumn(header, successColumns)
	latencyCol := findColumn(header, latencyColumns)
	if idCol < 0 || successCol < 0 || latencyCol < 0 {
		return nil, fmt.Errorf("profiles: header must contain id, success_rate and latency_ms columns, got %v", header)
	}

	var profiles []Profile
	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		line, _ := reader.FieldPos(0)

		p := Profile{ID: strings.TrimSpace(record[idCol]), Attributes: make(map[string]float64)}
		if p.ID == "" {
			return nil, fmt.Errorf("profiles: line %d: empty id", line)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("profiles: line %d: duplicate id %q", line, p.ID)
		}
		seen[p.ID] = struct{}{}

		for i, field := range record {
			if i == idCol {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("profiles: line %d: column %s: invalid number %q", line, header[i], field)
			}
			switch i {
			case successCol:
				if v < 0 || v > 1 {
					return nil, fmt.Errorf("profiles: line %d: success_rate %v outside [0, 1]", line, v)
				}
				p.SuccessRate = v
			case latencyCol:
				if v < 0 {
					return nil, fmt.Errorf("profiles: line %d: negative latency %v", line, v)
				}
				p.Latency = time.Duration(v * float64(time.Millisecond))
			}
			p.Attributes[header[i]] = v
		}
		profiles = append(profiles, p)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profiles: no candidates")
	}
	return profiles, nil
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}
