package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// localHosts are host names treated as the local machine rather than a
// remote target.
var localHosts = map[string]bool{
	"local":     true,
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// loadTargets reads the targets file. Each line names one host with an
// optional credential reference as the second column; blank lines and lines
// starting with # are ignored.
func loadTargets(path string) ([]types.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening targets file: %w", err)
	}
	defer f.Close()

	targets, err := parseTargets(f)
	if err != nil {
		return nil, fmt.Errorf("parsing targets file %s: %w", path, err)
	}
	return targets, nil
}

// parseTargets parses the targets list format.
func parseTargets(r io.Reader) ([]types.Target, error) {
	var targets []types.Target
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) > 2 {
			return nil, fmt.Errorf("line %d: expected 'host [credential-ref]', got %d columns", lineNo, len(fields))
		}

		host := fields[0]
		if prev, dup := seen[host]; dup {
			return nil, fmt.Errorf("line %d: duplicate host %s (first on line %d)", lineNo, host, prev)
		}
		seen[host] = lineNo

		target := types.Target{
			Host:   host,
			Remote: !localHosts[strings.ToLower(host)],
		}
		if len(fields) == 2 {
			target.CredentialRef = fields[1]
		}
		targets = append(targets, target)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("no targets found")
	}
	return targets, nil
}
