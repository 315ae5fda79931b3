package export

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// JSONExporter renders the document as a machine readable JSON object keyed by section title.
type JSONExporter struct{}

// NewJSONExporter constructs a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

func (e *JSONExporter) ContentType() string { return "application/json" }
func (e *JSONExporter) Extension() string   { return "json" }

// Render encodes the document.
func (e *JSONExporter) Render(doc Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(doc.Sections)+1)
	out["title"] = doc.Title
	for _, section := range doc.Sections {
		rows := section.Rows
		if rows == nil {
			rows = []map[string]string{}
		}
		out[section.Title] = rows
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return data, nil
}
