package automation

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/route1io/connectors/pkg/config"
	"github.com/route1io/connectors/pkg/connectors/bigquery"
	"github.com/route1io/connectors/pkg/connectors/gcs"
	"github.com/route1io/connectors/pkg/connectors/google/credentials"
	"github.com/route1io/connectors/pkg/connectors/google/drive"
	"github.com/route1io/connectors/pkg/connectors/google/sheets"
	"github.com/route1io/connectors/pkg/connectors/minio"
	"github.com/route1io/connectors/pkg/connectors/postgres"
	"github.com/route1io/connectors/pkg/connectors/s3"
	"github.com/route1io/connectors/pkg/errors"
)

func init() {
	mustRegisterExtractor("s3", newS3Extractor)
	mustRegisterExtractor("gsheets", newSheetsExtractor)
	mustRegisterExtractor("gcs", newGCSExtractor)
	mustRegisterExtractor("minio", newMinioExtractor)

	mustRegisterLoader("s3", newS3Loader)
	mustRegisterLoader("gsheets", newSheetsLoader)
	mustRegisterLoader("gcs", newGCSLoader)
	mustRegisterLoader("minio", newMinioLoader)
	mustRegisterLoader("bigquery", newBigQueryLoader)
	mustRegisterLoader("postgres", newPostgresLoader)
	mustRegisterLoader("drive", newDriveLoader)
}

func connectS3(ctx context.Context, settings *config.Settings) (*s3.Client, error) {
	if err := settings.RequireAWS(); err != nil {
		return nil, err
	}
	return s3.Connect(ctx, s3.Credentials{
		AccessKeyID:     settings.AWSAccessKeyID,
		SecretAccessKey: settings.AWSSecretAccessKey,
		Region:          settings.AWSRegion,
	})
}

// s3 sources take bucket and either key or prefix; a prefix downloads the
// most recently modified object under it.
func newS3Extractor(ctx context.Context, settings *config.Settings) (Extractor, error) {
	client, err := connectS3(ctx, settings)
	if err != nil {
		return nil, err
	}
	return ExtractorFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		bucket, key := step.Params.String("bucket"), step.Params.String("key")
		if key == "" {
			if err := step.Params.Require("prefix"); err != nil {
				return err
			}
			latest, err := client.MostRecentKey(ctx, bucket, step.Params.String("prefix"))
			if err != nil {
				return err
			}
			key = latest
		}
		_, err := client.Download(ctx, bucket, []string{key}, []string{step.Path})
		return err
	}), nil
}

func newS3Loader(ctx context.Context, settings *config.Settings) (Loader, error) {
	client, err := connectS3(ctx, settings)
	if err != nil {
		return nil, err
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		return client.Upload(ctx, step.Params.String("bucket"), []string{step.Path}, []string{step.ObjectName("key")})
	}), nil
}

// googleTokenSource refreshes the GCP_* refresh token. With optional set,
// missing GCP settings yield a nil source so the client falls back to
// application default credentials.
func googleTokenSource(ctx context.Context, settings *config.Settings, optional bool, scopes ...string) (oauth2.TokenSource, error) {
	if err := settings.RequireGCP(); err != nil {
		if optional {
			return nil, nil
		}
		return nil, err
	}
	creds, err := credentials.FromRefreshToken(ctx, settings.GCPRefreshToken, settings.GCPClientID, settings.GCPClientSecret, scopes...)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource(ctx), nil
}

func connectSheets(ctx context.Context, settings *config.Settings) (*sheets.Client, error) {
	ts, err := googleTokenSource(ctx, settings, false, sheets.Scope)
	if err != nil {
		return nil, err
	}
	return sheets.Connect(ctx, ts)
}

func newSheetsExtractor(ctx context.Context, settings *config.Settings) (Extractor, error) {
	client, err := connectSheets(ctx, settings)
	if err != nil {
		return nil, err
	}
	return ExtractorFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("sheet_id", "sheet_name"); err != nil {
			return err
		}
		return client.Download(ctx, step.Path, step.Params.String("sheet_id"), step.Params.String("sheet_name"))
	}), nil
}

func newSheetsLoader(ctx context.Context, settings *config.Settings) (Loader, error) {
	client, err := connectSheets(ctx, settings)
	if err != nil {
		return nil, err
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := requireUncompressed(step); err != nil {
			return err
		}
		if err := step.Params.Require("sheet_id", "sheet_name"); err != nil {
			return err
		}
		return client.Upload(ctx, step.Path, step.Params.String("sheet_id"), step.Params.String("sheet_name"))
	}), nil
}

func connectGCS(ctx context.Context, settings *config.Settings) (*gcs.Client, error) {
	ts, err := googleTokenSource(ctx, settings, true, gcs.Scope)
	if err != nil {
		return nil, err
	}
	return gcs.Connect(ctx, ts)
}

func newGCSExtractor(ctx context.Context, settings *config.Settings) (Extractor, error) {
	client, err := connectGCS(ctx, settings)
	if err != nil {
		return nil, err
	}
	return ExtractorFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		bucket, object := step.Params.String("bucket"), step.Params.String("object")
		if object == "" {
			if err := step.Params.Require("prefix"); err != nil {
				return err
			}
			latest, err := client.MostRecentObject(ctx, bucket, step.Params.String("prefix"))
			if err != nil {
				return err
			}
			object = latest
		}
		_, err := client.Download(ctx, bucket, object, step.Path)
		return err
	}), nil
}

func newGCSLoader(ctx context.Context, settings *config.Settings) (Loader, error) {
	client, err := connectGCS(ctx, settings)
	if err != nil {
		return nil, err
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		return client.Upload(ctx, step.Path, step.Params.String("bucket"), step.ObjectName("object"))
	}), nil
}

func connectMinio(settings *config.Settings) (*minio.Client, error) {
	if err := settings.RequireMinio(); err != nil {
		return nil, err
	}
	return minio.Connect(minio.Credentials{
		Endpoint:  settings.MinioEndpoint,
		AccessKey: settings.MinioAccessKey,
		SecretKey: settings.MinioSecretKey,
		UseSSL:    settings.MinioUseSSL,
	})
}

func newMinioExtractor(_ context.Context, settings *config.Settings) (Extractor, error) {
	client, err := connectMinio(settings)
	if err != nil {
		return nil, err
	}
	return ExtractorFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		bucket, object := step.Params.String("bucket"), step.Params.String("object")
		if object == "" {
			if err := step.Params.Require("prefix"); err != nil {
				return err
			}
			latest, err := client.MostRecentObject(ctx, bucket, step.Params.String("prefix"))
			if err != nil {
				return err
			}
			object = latest
		}
		_, err := client.Download(ctx, bucket, object, step.Path)
		return err
	}), nil
}

// minio targets create the bucket first when create_bucket is true.
func newMinioLoader(_ context.Context, settings *config.Settings) (Loader, error) {
	client, err := connectMinio(settings)
	if err != nil {
		return nil, err
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := step.Params.Require("bucket"); err != nil {
			return err
		}
		bucket := step.Params.String("bucket")
		if step.Params.Bool("create_bucket", false) {
			if err := client.EnsureBucket(ctx, bucket); err != nil {
				return err
			}
		}
		return client.Upload(ctx, step.Path, bucket, step.ObjectName("object"))
	}), nil
}

// bigquery targets take dataset and table, plus project when GCP_PROJECT_ID
// is unset, and truncate to replace the table.
func newBigQueryLoader(_ context.Context, settings *config.Settings) (Loader, error) {
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := requireUncompressed(step); err != nil {
			return err
		}
		if err := step.Params.Require("dataset", "table"); err != nil {
			return err
		}
		project := step.Params.String("project")
		if project == "" {
			project = settings.GCPProjectID
		}
		ts, err := googleTokenSource(ctx, settings, true, bigquery.Scope)
		if err != nil {
			return err
		}
		client, err := bigquery.Connect(ctx, project, ts)
		if err != nil {
			return err
		}
		defer client.Close()

		_, err = client.LoadCSV(ctx, step.Path, step.Params.String("dataset"), step.Params.String("table"), bigquery.LoadOptions{
			Truncate: step.Params.Bool("truncate", false),
		})
		return err
	}), nil
}

func newPostgresLoader(_ context.Context, settings *config.Settings) (Loader, error) {
	if settings.PostgresDSN == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing environment variables: POSTGRES_DSN")
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		if err := requireUncompressed(step); err != nil {
			return err
		}
		if err := step.Params.Require("table"); err != nil {
			return err
		}
		client, err := postgres.Connect(ctx, settings.PostgresDSN)
		if err != nil {
			return err
		}
		defer client.Close()

		_, err = client.LoadCSV(ctx, step.Path, step.Params.String("table"), postgres.LoadOptions{
			Truncate:  step.Params.Bool("truncate", false),
			KeepEmpty: step.Params.Bool("keep_empty", false),
		})
		return err
	}), nil
}

// drive targets take an optional folder_id and name.
func newDriveLoader(ctx context.Context, settings *config.Settings) (Loader, error) {
	ts, err := googleTokenSource(ctx, settings, false, drive.Scope)
	if err != nil {
		return nil, err
	}
	client, err := drive.Connect(ctx, ts)
	if err != nil {
		return nil, err
	}
	return LoaderFunc(func(ctx context.Context, step Step) error {
		_, err := client.UploadFile(ctx, step.Path, step.ObjectName("name"), step.Params.String("folder_id"))
		return err
	}), nil
}

func requireUncompressed(step Step) error {
	if step.Suffix != "" {
		return errors.Newf(errors.ErrorTypeConfig, "%s targets do not accept compressed files", step.Type)
	}
	return nil
}
