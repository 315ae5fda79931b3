package export

import "fmt"

// Section is one titled table inside an export document.
type Section struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// Document groups the sections of a data export.
type Document struct {
	Title    string
	Sections []Section
}

// Renderer turns a document into bytes of a specific format.
type Renderer interface {
	Render(doc Document) ([]byte, error)
	ContentType() string
	Extension() string
}

func validate(doc Document) error {
	if len(doc.Sections) == 0 {
		return fmt.Errorf("document has no sections")
	}
	for _, section := range doc.Sections {
		if len(section.Headers) == 0 {
			return fmt.Errorf("section %q requires at least one header", section.Title)
		}
	}
	return nil
}
