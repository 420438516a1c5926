package jobfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/transync/internal/db"
	"horse.fit/transync/internal/language"
	"horse.fit/transync/internal/translation"
)

//go:embed job.schema.json
var jobSchemaJSON string

const FormatVersion = "v1"

const defaultTier = "standard"

// Document is a translation job import file.
type Document struct {
	FormatVersion string `json:"format_version"`
	Label         string `json:"label,omitempty"`
	SourceLang    string `json:"source_lang"`
	TargetLang    string `json:"target_lang"`
	Tier          string `json:"tier,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Items         []Item `json:"items"`
}

type Item struct {
	Label string `json:"label,omitempty"`
	Data  []Data `json:"data"`
}

type Data struct {
	Path      string `json:"path"`
	Label     string `json:"label,omitempty"`
	Text      string `json:"text"`
	Translate *bool  `json:"translate,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// Parse validates raw against the job schema and the rules the schema cannot
// express, and returns the decoded document.
func Parse(raw []byte) (*Document, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode job JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize job JSON: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	if err := validateSemantics(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Job converts the document into an unsaved job tree. Items and data items
// keep their document order as position.
func (d *Document) Job() *db.Job {
	if d == nil {
		return nil
	}

	tier := strings.TrimSpace(d.Tier)
	if tier == "" {
		tier = defaultTier
	}

	job := &db.Job{
		Label:      strings.TrimSpace(d.Label),
		SourceLang: language.NormalizeTag(d.SourceLang),
		TargetLang: language.NormalizeTag(d.TargetLang),
		Tier:       tier,
		Comment:    strings.TrimSpace(d.Comment),
		Items:      make([]db.JobItem, 0, len(d.Items)),
	}
	for itemIdx, item := range d.Items {
		jobItem := db.JobItem{
			Label:     strings.TrimSpace(item.Label),
			Position:  itemIdx,
			DataItems: make([]db.DataItem, 0, len(item.Data)),
		}
		for dataIdx, data := range item.Data {
			var translate *bool
			if data.Translate != nil {
				v := *data.Translate
				translate = &v
			}
			jobItem.DataItems = append(jobItem.DataItems, db.DataItem{
				Path:       data.Path,
				Label:      strings.TrimSpace(data.Label),
				SourceText: data.Text,
				Translate:  translate,
				Position:   dataIdx,
			})
		}
		job.Items = append(job.Items, jobItem)
	}
	return job
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("job.schema.json", strings.NewReader(jobSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("job.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("document contains trailing content")
	}

	return value, nil
}

func validateSemantics(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}

	if strings.TrimSpace(doc.FormatVersion) != FormatVersion {
		return fmt.Errorf("format_version must be %s", FormatVersion)
	}
	if language.Equal(doc.SourceLang, doc.TargetLang) {
		return fmt.Errorf("source_lang and target_lang must differ")
	}

	for i, item := range doc.Items {
		seen := make(map[string]struct{}, len(item.Data))
		for j, data := range item.Data {
			if err := translation.ValidatePath(data.Path); err != nil {
				return fmt.Errorf("items[%d].data[%d]: %w", i, j, err)
			}
			if _, dup := seen[data.Path]; dup {
				return fmt.Errorf("items[%d].data[%d]: path %q is repeated", i, j, data.Path)
			}
			seen[data.Path] = struct{}{}
		}
	}

	return nil
}
