package migration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/flarebyte/datamove/internal/store"
)

// FormatVersion is written into every snapshot.
const FormatVersion = "1.0"

// legacyLinkTables were exported under "relationships" by older producers.
var legacyLinkTables = []string{"card_tags"}

// Metadata describes a snapshot.
type Metadata struct {
	ID        string         `json:"id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Version   string         `json:"version"`
	Source    string         `json:"source,omitempty"`
	Redacted  bool           `json:"redacted"`
	Counts    map[string]int `json:"counts,omitempty"`
	Withheld  []string       `json:"withheld,omitempty"`
}

// Snapshot is the portable export document.
type Snapshot struct {
	Metadata Metadata                  `json:"export_metadata"`
	Data     map[string][]store.Record `json:"data"`
}

// Filename is the suggested download name, derived from the export time.
func (s *Snapshot) Filename() string {
	ts, err := time.Parse(time.RFC3339Nano, s.Metadata.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return "datamove_export_" + ts.UTC().Format("20060102T150405Z") + ".json"
}

// Encode writes the snapshot as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// payload is a parsed import document. Keys of data whose value is not an
// array of objects are recorded in malformed instead of failing the parse.
type payload struct {
	meta      Metadata
	data      map[string][]store.Record
	malformed map[string]bool
}

func (p *payload) has(name string) bool {
	_, ok := p.data[name]
	return ok && !p.malformed[name]
}

// decodePayload checks the document shape. Numbers are kept as json.Number so
// large ids survive unchanged.
func decodePayload(r io.Reader) (*payload, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidFormat)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrInvalidFormat, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	metaRaw, okMeta := doc["export_metadata"]
	dataRaw, okData := doc["data"]
	if !okMeta || !okData {
		return nil, fmt.Errorf("%w: export_metadata and data are required", ErrInvalidFormat)
	}
	p := &payload{data: map[string][]store.Record{}, malformed: map[string]bool{}}
	if err := json.Unmarshal(metaRaw, &p.meta); err != nil {
		var anyObj map[string]any
		if json.Unmarshal(metaRaw, &anyObj) != nil || anyObj == nil {
			return nil, fmt.Errorf("%w: export_metadata must be an object", ErrInvalidFormat)
		}
		// Unknown metadata layouts from other producers are tolerated.
		p.meta = Metadata{}
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(dataRaw, &sections); err != nil || sections == nil {
		return nil, fmt.Errorf("%w: data must be an object", ErrInvalidFormat)
	}
	if relRaw, ok := doc["relationships"]; ok {
		var rel map[string]json.RawMessage
		if json.Unmarshal(relRaw, &rel) == nil {
			for _, name := range legacyLinkTables {
				if v, ok := rel[name]; ok {
					if _, dup := sections[name]; !dup {
						sections[name] = v
					}
				}
			}
		}
	}
	for name, v := range sections {
		rows, err := decodeRows(v)
		if err != nil {
			p.malformed[name] = true
			p.data[name] = nil
			continue
		}
		p.data[name] = rows
	}
	return p, nil
}

func decodeRows(raw json.RawMessage) ([]store.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows []store.Record
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, fmt.Errorf("not an array")
	}
	for _, r := range rows {
		if r == nil {
			return nil, fmt.Errorf("null row")
		}
	}
	return rows, nil
}
