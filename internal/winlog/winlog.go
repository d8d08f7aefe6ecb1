package winlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Record is one raw log record prior to canonicalization. Fields holds the
// record's named key/value sub-fields (EventData values for XML input), Raw
// the original record text.
type Record struct {
	EventID     string
	TimeCreated string
	Fields      map[string]string
	Raw         string
}

// ReadPath loads records from a single file or a directory (non-recursive).
// A file that fails to parse is logged and skipped; only an unreadable path
// is an error.
func ReadPath(path, format string, logger *slog.Logger) ([]Record, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input path: %w", err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read input directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if matchesFormat(e.Name(), format) {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	records := make([]Record, 0)
	for _, file := range files {
		recs, err := readFile(file, format, logger)
		if err != nil {
			if logger != nil {
				logger.Error("skipping unparseable input file", "file", file, "err", err)
			}
			continue
		}
		records = append(records, recs...)
	}
	if logger != nil {
		logger.Info("input loaded", "files", len(files), "records", len(records))
	}
	return records, nil
}

func matchesFormat(name, format string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch format {
	case "jsonl":
		return ext == ".jsonl" || ext == ".ndjson" || ext == ".json"
	default:
		return ext == ".xml" || ext == ".evtx"
	}
}

func readFile(path, format string, logger *slog.Logger) ([]Record, error) {
	if strings.ToLower(filepath.Ext(path)) == ".evtx" {
		// Binary EVTX needs an export step; only the XML rendering is read here.
		if logger != nil {
			logger.Warn("binary evtx input not supported, skipping", "file", path)
		}
		return nil, nil
	}
	if format == "jsonl" {
		return ReadJSONLFile(path, logger)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseXML(data)
}
