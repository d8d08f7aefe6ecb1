package winlog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

type xmlEvent struct {
	System struct {
		EventID     string `xml:"EventID"`
		TimeCreated struct {
			SystemTime string `xml:"SystemTime,attr"`
			Value      string `xml:",chardata"`
		} `xml:"TimeCreated"`
	} `xml:"System"`
	EventData struct {
		Data           []xmlData `xml:"Data"`
		TargetUserName string    `xml:"TargetUserName"`
		IpAddress      string    `xml:"IpAddress"`
	} `xml:"EventData"`
}

type xmlData struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// ParseXML decodes Windows-style exported event log XML. Any root element is
// accepted; each Event element found at any depth yields one Record with its
// original XML kept as Raw.
func ParseXML(data []byte) ([]Record, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	records := make([]Record, 0)
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Event" {
			continue
		}
		var ev xmlEvent
		if err := dec.DecodeElement(&ev, &se); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(string(data[offset:dec.InputOffset()]))
		records = append(records, recordFromXML(ev, raw))
	}
	return records, nil
}

func recordFromXML(ev xmlEvent, raw string) Record {
	rec := Record{
		EventID:     strings.TrimSpace(ev.System.EventID),
		TimeCreated: strings.TrimSpace(ev.System.TimeCreated.SystemTime),
		Fields:      make(map[string]string),
		Raw:         raw,
	}
	if rec.TimeCreated == "" {
		rec.TimeCreated = strings.TrimSpace(ev.System.TimeCreated.Value)
	}
	for _, d := range ev.EventData.Data {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		rec.Fields[name] = strings.TrimSpace(d.Value)
	}
	// Some exports carry plain child tags instead of Data Name pairs.
	if rec.Fields["TargetUserName"] == "" {
		if v := strings.TrimSpace(ev.EventData.TargetUserName); v != "" {
			rec.Fields["TargetUserName"] = v
		}
	}
	if rec.Fields["IpAddress"] == "" {
		if v := strings.TrimSpace(ev.EventData.IpAddress); v != "" {
			rec.Fields["IpAddress"] = v
		}
	}
	return rec
}
