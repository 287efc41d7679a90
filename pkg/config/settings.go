package config

import (
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/route1io/connectors/pkg/errors"
)

// Settings carries the environment-derived credentials shared by the
// automation connectors.
type Settings struct {
	WorkingDir string `mapstructure:"route1_working_dir"`
	LogLevel   string `mapstructure:"route1_log_level"`

	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSRegion          string `mapstructure:"aws_region"`

	GCPRefreshToken string `mapstructure:"gcp_refresh_token"`
	GCPClientID     string `mapstructure:"gcp_client_id"`
	GCPClientSecret string `mapstructure:"gcp_client_secret"`
	GCPProjectID    string `mapstructure:"gcp_project_id"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	PostgresDSN string `mapstructure:"postgres_dsn"`

	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
}

var settingsKeys = []string{
	"route1_working_dir",
	"route1_log_level",
	"aws_access_key_id",
	"aws_secret_access_key",
	"aws_region",
	"gcp_refresh_token",
	"gcp_client_id",
	"gcp_client_secret",
	"gcp_project_id",
	"minio_endpoint",
	"minio_access_key",
	"minio_secret_key",
	"minio_use_ssl",
	"postgres_dsn",
	"slack_webhook_url",
}

// NewViper returns a viper instance bound to the settings environment
// variables with their defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range settingsKeys {
		// BindEnv only fails without a key.
		_ = v.BindEnv(key, strings.ToUpper(key))
	}
	v.SetDefault("route1_working_dir", ".")
	v.SetDefault("route1_log_level", "info")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("minio_use_ssl", true)
	return v
}

// LoadSettings reads Settings from the process environment.
func LoadSettings() (*Settings, error) {
	return SettingsFrom(NewViper())
}

// SettingsFrom decodes Settings from v. The CLI uses it after binding flags.
func SettingsFrom(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode settings")
	}
	return &s, nil
}

// RequireAWS fails when the AWS credentials are incomplete.
func (s *Settings) RequireAWS() error {
	return require(map[string]string{
		"AWS_ACCESS_KEY_ID":     s.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": s.AWSSecretAccessKey,
		"AWS_REGION":            s.AWSRegion,
	})
}

// RequireGCP fails when the Google refresh-token credentials are incomplete.
func (s *Settings) RequireGCP() error {
	return require(map[string]string{
		"GCP_REFRESH_TOKEN": s.GCPRefreshToken,
		"GCP_CLIENT_ID":     s.GCPClientID,
		"GCP_CLIENT_SECRET": s.GCPClientSecret,
	})
}

// RequireMinio fails when the MinIO endpoint or keys are missing.
func (s *Settings) RequireMinio() error {
	return require(map[string]string{
		"MINIO_ENDPOINT":   s.MinioEndpoint,
		"MINIO_ACCESS_KEY": s.MinioAccessKey,
		"MINIO_SECRET_KEY": s.MinioSecretKey,
	})
}

func require(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.Newf(errors.ErrorTypeConfig, "missing environment variables: %s", strings.Join(missing, ", "))
}
