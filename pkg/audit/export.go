package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// csvColumns are the CSV header and the field each column is read from
var csvColumns = []struct {
	name  string
	value func(*AuditEvent) string
}{
	{"ID", func(e *AuditEvent) string { return e.ID }},
	{"Timestamp", func(e *AuditEvent) string { return e.Timestamp.UTC().Format(time.RFC3339) }},
	{"EventType", func(e *AuditEvent) string { return string(e.EventType) }},
	{"Status", func(e *AuditEvent) string { return string(e.Status) }},
	{"UserID", func(e *AuditEvent) string { return e.UserID }},
	{"TenantID", func(e *AuditEvent) string { return e.TenantID }},
	{"ResourceType", func(e *AuditEvent) string { return string(e.ResourceType) }},
	{"ResourceID", func(e *AuditEvent) string { return e.ResourceID }},
	{"RequestID", func(e *AuditEvent) string { return e.RequestID }},
	{"IPAddress", func(e *AuditEvent) string { return e.IPAddress }},
	{"Message", func(e *AuditEvent) string { return e.Message }},
	{"ErrorMessage", func(e *AuditEvent) string { return e.ErrorMessage }},
	{"Metadata", metadataColumn},
}

func metadataColumn(e *AuditEvent) string {
	if len(e.Metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(e.Metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

// Export renders events in the requested format. The empty format is JSON.
func Export(events []*AuditEvent, format ExportFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteExport(&buf, events, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteExport streams events to w in the requested format
func WriteExport(w io.Writer, events []*AuditEvent, format ExportFormat) error {
	switch format {
	case ExportFormatJSON, "":
		if events == nil {
			events = []*AuditEvent{}
		}
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode events: %w", err)
		}
		_, err = w.Write(data)
		return err

	case ExportFormatNDJSON:
		enc := json.NewEncoder(w)
		for _, event := range events {
			if err := enc.Encode(event); err != nil {
				return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
			}
		}
		return nil

	case ExportFormatCSV:
		cw := csv.NewWriter(w)
		row := make([]string, len(csvColumns))
		for i, col := range csvColumns {
			row[i] = col.name
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, event := range events {
			for i, col := range csvColumns {
				row[i] = col.value(event)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("unsupported export format: %s", format)
}
