package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Assignment is one raw key/value pair produced by the file or CLI
// source. Assignments are consumed by the merge step and never
// retained.
type Assignment struct {
	Name  string
	Value string
}

// ParseArgs recognizes --key=value tokens (a value may also follow as
// the next token). A bare --config=<path> selects the file source and
// is returned separately instead of being merged. Single-dash flags
// and positional tokens are ignored.
func ParseArgs(args []string) ([]Assignment, string) {
	var (
		assigns    []Assignment
		configFile string
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			if strings.HasPrefix(arg, "-") {
				slog.Debug("ignoring flag", "arg", arg)
			}
			continue
		}

		name, val, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !found || val == "" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				val = args[i]
			} else {
				slog.Warn("no value for argument", "name", name)
				continue
			}
		}

		if name == "config" {
			slog.Debug("read config from file", "path", val)
			configFile = val
			continue
		}
		assigns = append(assigns, Assignment{Name: name, Value: val})
	}

	return assigns, configFile
}

// ReadFile parses a line-oriented "key: value" file. Lines starting
// with # and blank lines are skipped; a line without a colon warns and
// is skipped.
func ReadFile(path string) ([]Assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	var assigns []Assignment

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		slog.Debug("config file line", "line", line)

		name, val, found := strings.Cut(line, ":")
		if !found {
			slog.Warn("malformed config line", "line", line)
			continue
		}
		assigns = append(assigns, Assignment{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(val),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return assigns, nil
}
