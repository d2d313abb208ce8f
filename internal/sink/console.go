package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

const ConsoleName = "console"

// ConsoleOptions configures the console sink.
type ConsoleOptions struct {
	Format string `mapstructure:"format"` // yaml | json
}

// Console writes records to a writer, as YAML documents or JSON lines.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func NewConsole(w io.Writer, options map[string]any) (*Console, error) {
	opts := ConsoleOptions{Format: "json"}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	switch opts.Format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("invalid console format: %s (must be json or yaml)", opts.Format)
	}
	return &Console{w: w, format: opts.Format}, nil
}

func (c *Console) Name() string { return ConsoleName }

func (c *Console) Emit(_ context.Context, rec Record) error {
	data, err := Marshal(rec, c.format)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(data)
	return err
}

func (c *Console) Close() error { return nil }

// Marshal renders rec as a JSON line or a YAML document.
func Marshal(rec Record, format string) ([]byte, error) {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		return append([]byte("---\n"), data...), nil
	case "json", "":
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal record: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
