package config_test

import (
	"fmt"
	"log"
	"os"

	"github.com/route1io/connectors/pkg/config"
)

// ExampleParse demonstrates loading an extract document with environment
// variable substitution.
func ExampleParse() {
	os.Setenv("REPORT_BUCKET", "route1-reports")
	defer os.Unsetenv("REPORT_BUCKET")

	doc := []byte(`
extract:
  sources:
    - name: daily
      source_type: s3
      bucket: ${REPORT_BUCKET}
      key: reports/${REPORT_DAY:-latest}.csv
      filename: raw/daily.csv
`)

	var cfg config.ExtractDocument
	if err := config.Parse(doc, &cfg); err != nil {
		log.Fatal(err)
	}

	src := cfg.Extract.Sources[0]
	fmt.Println(src.SourceType)
	fmt.Println(src.Params.String("bucket"))
	fmt.Println(src.Params.String("key"))

	// Output:
	// s3
	// route1-reports
	// reports/latest.csv
}
