package export

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		Title: "Dataeksport",
		Sections: []Section{
			{
				Title:   "profile",
				Headers: []string{"id", "email"},
				Rows:    []map[string]string{{"id": "u1", "email": "ola@example.no"}},
			},
			{
				Title:   "posts",
				Headers: []string{"id", "title"},
			},
		},
	}
}

func TestCSVExporterRendersSections(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDocument())
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "# profile\nid,email\nu1,ola@example.no\n")
	assert.Contains(t, text, "# posts\nid,title\n")
}

func TestJSONExporterKeysBySection(t *testing.T) {
	out, err := NewJSONExporter().Render(sampleDocument())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Dataeksport", decoded["title"])
	assert.Len(t, decoded["profile"], 1)
	assert.Len(t, decoded["posts"], 0)
}

func TestPDFExporterProducesPDF(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsEmptyDocument(t *testing.T) {
	for _, renderer := range []Renderer{NewCSVExporter(), NewPDFExporter(), NewJSONExporter()} {
		_, err := renderer.Render(Document{})
		require.Error(t, err, renderer.Extension())
		_, err = renderer.Render(Document{Sections: []Section{{Title: "x"}}})
		require.True(t, err != nil && strings.Contains(err.Error(), "header"), renderer.Extension())
	}
}
