package canon

import (
	"log/slog"
	"strconv"
	"strings"

	"authwatch/internal/model"
	"authwatch/internal/winlog"
)

var (
	usernameKeys = []string{"TargetUserName", "Username", "AccountName"}
	addressKeys  = []string{"IpAddress", "IP"}
	statusKeys   = []string{"Status", "Result"}
)

// Canonicalizer turns raw records into immutable Events. Field extraction is
// defensive: malformed fields degrade to their documented defaults and never
// abort the batch.
type Canonicalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Canonicalizer {
	return &Canonicalizer{logger: logger}
}

// Canonicalize maps records to Events one to one, preserving input order.
func (c *Canonicalizer) Canonicalize(records []winlog.Record) []model.Event {
	events := make([]model.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, c.event(rec))
	}
	return events
}

func (c *Canonicalizer) event(rec winlog.Record) model.Event {
	ts, ok := ParseTimestamp(rec.TimeCreated)
	if !ok && rec.TimeCreated != "" && c.logger != nil {
		c.logger.Debug("unparseable timestamp", "value", rec.TimeCreated)
	}

	code := parseEventCode(rec.EventID)
	typ := TypeForCode(code)

	status := fieldValue(rec.Fields, statusKeys)
	if status == "" {
		status = defaultStatus(typ)
	}

	return model.Event{
		Timestamp:  ts,
		EventCode:  code,
		EventType:  typ,
		Username:   fieldValue(rec.Fields, usernameKeys),
		SourceAddr: SanitizeAddr(fieldValue(rec.Fields, addressKeys)),
		Status:     status,
		Raw:        rec.Raw,
	}
}

// TypeForCode classifies an event purely by its code.
func TypeForCode(code int) model.EventType {
	switch code {
	case 4625:
		return model.EventFailedLogin
	case 4624:
		return model.EventSuccessfulLogin
	default:
		return model.EventOther
	}
}

func defaultStatus(typ model.EventType) string {
	switch typ {
	case model.EventFailedLogin:
		return "Failure"
	case model.EventSuccessfulLogin:
		return "Success"
	default:
		return "Unknown"
	}
}

func parseEventCode(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	code, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return code
}

// fieldValue returns the first non-empty value among the candidate keys,
// matched case-insensitively.
func fieldValue(fields map[string]string, candidates []string) string {
	if len(fields) == 0 {
		return ""
	}
	for _, key := range candidates {
		if v, ok := fields[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, key := range candidates {
		for name, v := range fields {
			if strings.EqualFold(name, key) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}
