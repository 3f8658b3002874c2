package utils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoResultObject means no well-formed result object was found in the
// process output.
var ErrNoResultObject = errors.New("no result object in process output")

// ExtractResultObject pulls the single JSON result object out of an external
// process's stdout. Adapters are allowed to interleave log lines on the same
// stream, so every line is scanned and only a parseable object carrying a
// "success" key counts. The last such object wins, matching the convention
// that adapters print their result right before exiting.
func ExtractResultObject(output []byte) (json.RawMessage, error) {
	var result json.RawMessage

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		start := strings.IndexByte(line, '{')
		if start < 0 {
			continue
		}
		candidate := line[start:]
		if !json.Valid([]byte(candidate)) {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
			continue
		}
		if _, ok := probe["success"]; ok {
			result = json.RawMessage(candidate)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoResultObject
	}
	return result, nil
}
