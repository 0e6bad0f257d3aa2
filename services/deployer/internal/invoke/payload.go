package invoke

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrPayload         = errors.New("invalid payload")
	ErrInvoke          = errors.New("invoke function")
	ErrLogDecode       = errors.New("decode execution log")
	ErrHandlerNotFound = errors.New("handler not found")
)

var emptyEvent = json.RawMessage(`{}`)

// NormalizePayload turns user input into a JSON event. The input is tried as a JSON
// literal first and only then read as a file path. Empty input yields {}.
// readFile defaults to os.ReadFile.
func NormalizePayload(input string, readFile func(string) ([]byte, error)) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return emptyEvent, nil
	}
	if json.Valid([]byte(trimmed)) {
		return compact([]byte(trimmed))
	}

	if readFile == nil {
		readFile = os.ReadFile
	}
	data, err := readFile(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is neither JSON nor a readable file: %w", ErrPayload, trimmed, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return emptyEvent, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s does not contain valid JSON", ErrPayload, trimmed)
	}
	return compact(data)
}

func compact(data []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayload, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
