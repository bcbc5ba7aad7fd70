// Package envfile reads and writes KEY=value dotenv files without disturbing
// lines it does not own.
package envfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entry is one KEY=value assignment. Order is preserved on write.
type Entry struct {
	Key   string
	Value string
}

// Read parses path into a map. Blank lines and # comments are skipped, an
// optional "export " prefix is accepted, and one level of matching quotes is
// removed from values.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := parseLine(scanner.Text())
		if ok {
			out[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env file: %w", err)
	}
	return out, nil
}

// Write replaces path with exactly the given entries.
func Write(path string, entries []Entry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
	}
	return writeFile(path, buf.Bytes())
}

// Merge rewrites path so every entry's key carries its new value. Existing
// lines for other keys, comments included, are kept as they are; keys not yet
// present are appended in order. A missing file is created.
func Merge(path string, entries []Entry) error {
	updates := make(map[string]string, len(entries))
	for _, e := range entries {
		updates[e.Key] = e.Value
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read env file: %w", err)
	}

	var buf bytes.Buffer
	written := make(map[string]bool, len(entries))
	if len(existing) > 0 {
		for _, line := range strings.SplitAfter(string(existing), "\n") {
			if line == "" {
				continue
			}
			trimmed := strings.TrimRight(line, "\r\n")
			if key, ok := ownedKey(trimmed, updates); ok {
				fmt.Fprintf(&buf, "%s=%s\n", key, updates[key])
				written[key] = true
				continue
			}
			buf.WriteString(trimmed)
			buf.WriteByte('\n')
		}
	}
	for _, e := range entries {
		if !written[e.Key] {
			fmt.Fprintf(&buf, "%s=%s\n", e.Key, e.Value)
			written[e.Key] = true
		}
	}
	return writeFile(path, buf.Bytes())
}

func ownedKey(line string, updates map[string]string) (string, bool) {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return "", false
	}
	key, _, found := strings.Cut(line, "=")
	if !found {
		return "", false
	}
	key = strings.TrimSpace(key)
	_, ok := updates[key]
	return key, ok
}

func parseLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

// writeFile creates parent directories. Files hold secrets, so they are
// written owner-only.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create env dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
