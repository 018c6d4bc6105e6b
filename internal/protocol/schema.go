package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/census_report.schema.json
var censusReportSchema string

var (
	reportSchemaOnce sync.Once
	reportSchema     *jsonschema.Schema
	reportSchemaErr  error
)

// ValidateReport checks a raw CENSUS_REPORT document against its schema.
func ValidateReport(raw []byte) error {
	reportSchemaOnce.Do(func() {
		reportSchema, reportSchemaErr = jsonschema.CompileString("https://tilecensus.ai/schemas/census_report.schema.json", censusReportSchema)
	})
	if reportSchemaErr != nil {
		return fmt.Errorf("compile schema: %w", reportSchemaErr)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return reportSchema.Validate(v)
}
