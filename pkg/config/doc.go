// Package config loads the configuration used by route1 connectors.
//
// Two kinds of configuration exist:
//
//   - Settings: credentials and paths taken from the environment
//     (AWS_ACCESS_KEY_ID, GCP_REFRESH_TOKEN, ROUTE1_WORKING_DIR, ...).
//     They are read through viper so that a .env file, the process
//     environment and explicit overrides all work the same way.
//   - Automation documents: extract.yaml and load.yaml, which list the
//     sources to download and the targets to upload.
//
// # Environment Variable Substitution
//
// YAML documents may reference the environment with ${VAR} or
// ${VAR:-default}:
//
//	extract:
//	  sources:
//	    - name: daily-report
//	      source_type: s3
//	      bucket: ${REPORT_BUCKET}
//	      key: reports/daily.csv
//	      filename: raw/daily.csv
//
// # Usage
//
//	settings, err := config.LoadSettings()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var doc config.ExtractDocument
//	if err := config.Load("extract.yaml", &doc); err != nil {
//		log.Fatal(err)
//	}
package config
