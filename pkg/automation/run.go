package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/compression"
	"github.com/route1io/connectors/pkg/config"
	"github.com/route1io/connectors/pkg/connectors/slack"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
)

// Result summarises a run for logging and notifications.
type Result struct {
	RunID     string
	Completed []string
	Failed    string
	Err       error
	Elapsed   time.Duration

	started time.Time
}

// RunExtract runs doc against the default registry.
func RunExtract(ctx context.Context, doc *config.ExtractDocument, settings *config.Settings) (*Result, error) {
	return defaultRegistry.RunExtract(ctx, doc, settings)
}

// RunLoad runs doc against the default registry.
func RunLoad(ctx context.Context, doc *config.LoadDocument, settings *config.Settings) (*Result, error) {
	return defaultRegistry.RunLoad(ctx, doc, settings)
}

// RunExtract downloads every source into the working directory, in order,
// and stops at the first failure. A source with decompress: true is
// restored from its compression extension after download.
func (r *Registry) RunExtract(ctx context.Context, doc *config.ExtractDocument, settings *config.Settings) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	ctx, res := r.begin(ctx)

	for _, src := range doc.Extract.Sources {
		step := Step{
			Name:   src.Name,
			Type:   src.SourceType,
			Path:   filepath.Join(settings.WorkingDir, src.Filename),
			Params: src.Params,
		}
		if err := r.extract(ctx, step, settings); err != nil {
			res.fail(step.Name, err)
			break
		}
		res.Completed = append(res.Completed, step.Name)
	}

	r.finish(ctx, "extract", res, doc.Extract.Notify, settings)
	return res, res.Err
}

// RunLoad uploads every target from the working directory, in order, and
// stops at the first failure. Targets with compression set are compressed
// next to the original file first.
func (r *Registry) RunLoad(ctx context.Context, doc *config.LoadDocument, settings *config.Settings) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	ctx, res := r.begin(ctx)

	for _, t := range doc.Load.Targets {
		step := Step{
			Name:   t.Name,
			Type:   t.TargetType,
			Path:   filepath.Join(settings.WorkingDir, t.Filename),
			Params: t.Params,
		}
		if err := r.load(ctx, step, t.Compression, settings); err != nil {
			res.fail(step.Name, err)
			break
		}
		res.Completed = append(res.Completed, step.Name)
	}

	r.finish(ctx, "load", res, doc.Load.Notify, settings)
	return res, res.Err
}

func (r *Registry) extract(ctx context.Context, step Step, settings *config.Settings) error {
	ctx = logger.ContextWithConnector(ctx, step.Type, "extract")
	log := logger.WithContext(ctx).With(zap.String("source", step.Name))
	log.Info("starting extraction")

	ex, err := r.CreateExtractor(ctx, step.Type, settings)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(step.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create %s", dir)
		}
	}
	if err := ex.Extract(ctx, step); err != nil {
		return err
	}

	path := step.Path
	if step.Params.Bool("decompress", false) {
		if path, err = compression.DecompressFile(step.Path); err != nil {
			return err
		}
	}
	log.Info("extraction complete", zap.String("filename", path))
	return nil
}

func (r *Registry) load(ctx context.Context, step Step, algorithm string, settings *config.Settings) error {
	ctx = logger.ContextWithConnector(ctx, step.Type, "load")
	log := logger.WithContext(ctx).With(zap.String("target", step.Name))
	log.Info("starting load")

	ld, err := r.CreateLoader(ctx, step.Type, settings)
	if err != nil {
		return err
	}

	algo, err := compression.ParseAlgorithm(algorithm)
	if err != nil {
		return err
	}
	if algo != compression.None {
		compressed, err := compression.CompressFile(step.Path, algo)
		if err != nil {
			return err
		}
		defer os.Remove(compressed)
		step.Path = compressed
		step.Suffix = compression.Extension(algo)
	}

	if err := ld.Load(ctx, step); err != nil {
		return err
	}
	log.Info("load complete", zap.String("filename", step.Path))
	return nil
}

func (r *Registry) begin(ctx context.Context) (context.Context, *Result) {
	res := &Result{RunID: uuid.NewString(), started: time.Now()}
	return logger.ContextWithRunID(ctx, res.RunID), res
}

func (res *Result) fail(name string, err error) {
	res.Failed = name
	res.Err = errors.Wrapf(err, errors.GetType(err), "%s failed", name)
}

func (r *Registry) finish(ctx context.Context, kind string, res *Result, notify bool, settings *config.Settings) {
	res.Elapsed = time.Since(res.started)
	log := logger.WithContext(ctx).With(
		zap.String("kind", kind),
		zap.Strings("completed", res.Completed),
		zap.Duration("elapsed", res.Elapsed))
	if res.Err != nil {
		log.Error("run failed", zap.String("failed", res.Failed), zap.Error(res.Err))
	} else {
		log.Info("run complete")
	}

	if !notify || settings.SlackWebhookURL == "" {
		return
	}
	client, err := slack.New(settings.SlackWebhookURL)
	if err == nil {
		err = client.Message(ctx, res.message(kind))
	}
	if err != nil {
		log.Error("failed to send slack notification", zap.Error(err))
	}
}

func (res *Result) message(kind string) string {
	var b strings.Builder
	if res.Err != nil {
		fmt.Fprintf(&b, ":x: %s run %s failed at %s: %v", kind, res.RunID, res.Failed, res.Err)
	} else {
		fmt.Fprintf(&b, ":white_check_mark: %s run %s complete", kind, res.RunID)
	}
	if len(res.Completed) > 0 {
		fmt.Fprintf(&b, "\ncompleted: %s", strings.Join(res.Completed, ", "))
	}
	return b.String()
}
