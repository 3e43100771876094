package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/painpoint/internal/model"
)

// File imports raw signals from a local JSON array or JSON-lines file.
// Records keep their own source when they carry one.
type File struct {
	name string
	path string
}

func newFile(name string, cfg model.SourceConfig, _ Deps) (Source, error) {
	if err := requireURL(name, cfg); err != nil {
		return nil, err
	}
	return &File{name: name, path: strings.TrimPrefix(cfg.URL, "file://")}, nil
}

func (f *File) Name() string { return f.name }

func (f *File) DateField() string { return model.DateFieldSignal }

// Collect reads the whole file.
func (f *File) Collect(ctx context.Context) ([]model.RawSignal, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, newError(f.name, KindNetwork, fmt.Errorf("read %s: %w", f.path, err))
	}

	signals, err := decodeRawSignals(data)
	if err != nil {
		return nil, payloadError(f.name, "decode %s: %v", f.path, err)
	}

	for i := range signals {
		if signals[i].Source == "" {
			signals[i].Source = f.name
		}
	}
	return signals, ctx.Err()
}

func decodeRawSignals(data []byte) ([]model.RawSignal, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []model.RawSignal
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var out []model.RawSignal
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var s model.RawSignal
		if err := json.Unmarshal(text, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}
