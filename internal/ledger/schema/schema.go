// Package schema is the single table mapping logical ledger fields to column
// positions. Both the read and the write paths of the ledger store consult it.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed columns.yaml
var columnsYAML []byte

// Field is a logical ledger field.
type Field string

const (
	CompanyName          Field = "company_name"
	TaxID                Field = "tax_id"
	ContactName          Field = "contact_name"
	ContactPhone         Field = "contact_phone"
	NextContactDate      Field = "next_contact_date"
	History              Field = "history"
	RevenueCurrent       Field = "revenue_current"
	RevenuePrior         Field = "revenue_prior"
	Equity               Field = "equity"
	FixedAssets          Field = "fixed_assets"
	Receivables          Field = "receivables"
	Payables             Field = "payables"
	GovContractsSum      Field = "gov_contracts_sum"
	ProcurementLabel     Field = "procurement_label"
	Region               Field = "region"
	ClassificationCode   Field = "classification_code"
	ClassificationLabel  Field = "classification_label"
	LitigationOpenCount  Field = "litigation_open_count"
	LitigationOpenSum    Field = "litigation_open_sum"
	LitigationLastFiling Field = "litigation_last_filing"
	Bankruptcy           Field = "bankruptcy"
	ContactEmail         Field = "contact_email"
	RegistrationID       Field = "registration_id"
	FirstContactDate     Field = "first_contact_date"
	OperatorName         Field = "operator_name"
)

// ColumnType drives cell encoding and formatting.
type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeDate     ColumnType = "date"
	TypeNumber   ColumnType = "number"
	TypeCurrency ColumnType = "currency"
)

// CurrencyPattern is the number format applied to currency columns.
const CurrencyPattern = `#,##0" ₽"`

// Column is one ledger column.
type Column struct {
	Key        Field      `yaml:"key"`
	Header     string     `yaml:"header"`
	Aliases    []string   `yaml:"aliases"`
	Type       ColumnType `yaml:"type"`
	Hidden     bool       `yaml:"hidden"`
	Enrichment bool       `yaml:"enrichment"`
}

// Schema is an ordered, versioned column list.
type Schema struct {
	Name    string
	Version int
	Columns []Column

	index  map[Field]int
	byName map[string]Field
}

type document struct {
	Version          int      `yaml:"version"`
	Columns          []Column `yaml:"columns"`
	AggregateColumns []Column `yaml:"aggregate_columns"`
}

// Set holds the operator schema and the aggregated schema built on top of it.
type Set struct {
	Operator  *Schema
	Aggregate *Schema
}

// requiredFields must be present in the operator layout.
var requiredFields = []Field{
	CompanyName, TaxID, ContactName, ContactPhone, NextContactDate, History,
	RevenueCurrent, RevenuePrior, Equity, FixedAssets, Receivables, Payables,
	GovContractsSum, ProcurementLabel, Region, ClassificationCode, ClassificationLabel,
	LitigationOpenCount, LitigationOpenSum, LitigationLastFiling, Bankruptcy,
	ContactEmail, RegistrationID, FirstContactDate,
}

// Load parses the embedded column table.
func Load() (*Set, error) {
	return Parse(columnsYAML)
}

// MustLoad is Load for process start-up.
func MustLoad() *Set {
	set, err := Load()
	if err != nil {
		panic("ledger schema: " + err.Error())
	}
	return set
}

// Parse builds a Set from a YAML column table.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse column table: %w", err)
	}
	if doc.Version <= 0 {
		return nil, fmt.Errorf("column table version must be positive")
	}

	operator, err := build("operator", doc.Version, doc.Columns)
	if err != nil {
		return nil, err
	}
	for _, f := range requiredFields {
		if _, ok := operator.index[f]; !ok {
			return nil, fmt.Errorf("column table is missing field %q", f)
		}
	}

	aggCols := make([]Column, 0, len(doc.Columns)+len(doc.AggregateColumns))
	aggCols = append(aggCols, doc.Columns...)
	aggCols = append(aggCols, doc.AggregateColumns...)
	aggregate, err := build("aggregate", doc.Version, aggCols)
	if err != nil {
		return nil, err
	}
	if _, ok := aggregate.index[OperatorName]; !ok {
		return nil, fmt.Errorf("aggregate layout is missing field %q", OperatorName)
	}

	return &Set{Operator: operator, Aggregate: aggregate}, nil
}

func build(name string, version int, cols []Column) (*Schema, error) {
	s := &Schema{
		Name:    name,
		Version: version,
		Columns: make([]Column, len(cols)),
		index:   make(map[Field]int, len(cols)),
		byName:  make(map[string]Field, len(cols)*2),
	}
	for i, c := range cols {
		if c.Key == "" || strings.TrimSpace(c.Header) == "" {
			return nil, fmt.Errorf("%s column %d: key and header are required", name, i+1)
		}
		if c.Type == "" {
			c.Type = TypeText
		}
		if _, dup := s.index[c.Key]; dup {
			return nil, fmt.Errorf("%s column %q declared twice", name, c.Key)
		}
		s.Columns[i] = c
		s.index[c.Key] = i
		s.byName[normalizeHeader(c.Header)] = c.Key
		for _, alias := range c.Aliases {
			s.byName[normalizeHeader(alias)] = c.Key
		}
	}
	return s, nil
}

// Width is the number of columns.
func (s *Schema) Width() int { return len(s.Columns) }

// Headers returns the expected header row.
func (s *Schema) Headers() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Header
	}
	return out
}

// Index returns the zero-based position of f.
func (s *Schema) Index(f Field) (int, bool) {
	i, ok := s.index[f]
	return i, ok
}

// MustIndex panics when f is not part of the layout.
func (s *Schema) MustIndex(f Field) int {
	i, ok := s.index[f]
	if !ok {
		panic(fmt.Sprintf("ledger schema %s has no field %q", s.Name, f))
	}
	return i
}

// Has reports whether f is part of the layout.
func (s *Schema) Has(f Field) bool {
	_, ok := s.index[f]
	return ok
}

// Column returns the column definition at position i.
func (s *Schema) Column(i int) Column { return s.Columns[i] }

// Resolve maps a header cell (current name or legacy alias) to its field.
func (s *Schema) Resolve(header string) (Field, bool) {
	f, ok := s.byName[normalizeHeader(header)]
	return f, ok
}

// Indexes returns positions of the columns matching pred, in order.
func (s *Schema) Indexes(pred func(Column) bool) []int {
	var out []int
	for i, c := range s.Columns {
		if pred(c) {
			out = append(out, i)
		}
	}
	return out
}

// EnrichmentFields lists the fields refreshed by explicit re-enrichment.
func (s *Schema) EnrichmentFields() []Field {
	var out []Field
	for _, c := range s.Columns {
		if c.Enrichment {
			out = append(out, c.Key)
		}
	}
	return out
}

// ColumnLetter converts a zero-based index to A1 notation (0 -> A, 26 -> AA).
func ColumnLetter(i int) string {
	var b []byte
	for i >= 0 {
		b = append([]byte{byte('A' + i%26)}, b...)
		i = i/26 - 1
	}
	return string(b)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
