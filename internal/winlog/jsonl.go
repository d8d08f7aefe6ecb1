package winlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"authwatch/internal/metrics"
)

// ReadJSONLFile reads one JSON object per line, winlogbeat-shaped or flat.
// Malformed lines are dropped and logged, never fatal.
func ReadJSONLFile(path string, logger *slog.Logger) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	records := make([]Record, 0, 1024)
	dropped := 0
	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 8*1024*1024)

	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		rec, err := ParseJSONRecord([]byte(line))
		if err != nil {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	if dropped > 0 {
		metrics.AddRecordsDropped(dropped)
		if logger != nil {
			logger.Warn("dropped malformed json lines", "file", path, "dropped", dropped)
		}
	}
	return records, nil
}

// ParseJSONRecord converts one JSON log object into a Record. Recognizes the
// winlogbeat field layout (winlog.event_id, @timestamp, winlog.event_data)
// and falls back to flat top-level keys.
func ParseJSONRecord(data []byte) (Record, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, err
	}

	rec := Record{
		EventID:     getString(raw, "winlog.event_id", "event.code", "event_id"),
		TimeCreated: getString(raw, "@timestamp", "winlog.event_data.UtcTime", "timestamp", "time_created"),
		Fields:      make(map[string]string),
		Raw:         string(data),
	}

	if v, ok := getPath(raw, "winlog.event_data"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			for key, val := range m {
				rec.Fields[key] = strings.TrimSpace(fmt.Sprint(val))
			}
		}
	} else if v, ok := getPath(raw, "event_data"); ok {
		if m, ok := v.(map[string]interface{}); ok {
			for key, val := range m {
				rec.Fields[key] = strings.TrimSpace(fmt.Sprint(val))
			}
		}
	} else {
		for key, val := range raw {
			switch val.(type) {
			case string, float64, bool:
				rec.Fields[key] = strings.TrimSpace(fmt.Sprint(val))
			}
		}
	}
	return rec, nil
}

func getString(root map[string]interface{}, paths ...string) string {
	for _, path := range paths {
		if v, ok := getPath(root, path); ok {
			switch val := v.(type) {
			case string:
				return strings.TrimSpace(val)
			case float64:
				if val == float64(int64(val)) {
					return fmt.Sprintf("%d", int64(val))
				}
				return fmt.Sprintf("%f", val)
			case int:
				return fmt.Sprintf("%d", val)
			case int64:
				return fmt.Sprintf("%d", val)
			}
		}
	}
	return ""
}

func getPath(root map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = root
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
