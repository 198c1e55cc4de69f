package jobmanagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"clinical-annotation-eval/harness/internal/artifacts"
	"clinical-annotation-eval/harness/internal/config"
	"clinical-annotation-eval/harness/internal/coreengine/evaluationengine"
	"clinical-annotation-eval/harness/internal/coreengine/metricscalculator"
	"clinical-annotation-eval/harness/internal/coreengine/vendoradapters"
	"clinical-annotation-eval/harness/internal/datastore"
	"clinical-annotation-eval/harness/internal/objectstore"
)

// Job statuses.
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Job records one evaluation run.
type Job struct {
	Status         string
	StartedAt      time.Time
	CompletedAt    time.Time
	ArchivePath    string
	ArtifactObject string
	Smoke          *evaluationengine.SmokeResult
	Report         *metricscalculator.Report
	Records        []metricscalculator.ScoreRecord
}

// artifactStore is the part of the object store a job uses.
type artifactStore interface {
	EnsureBucket(ctx context.Context) error
	UploadArtifact(ctx context.Context, localPath, contentType string) (string, error)
	DownloadFile(ctx context.Context, objectName, destPath string) error
}

// JobService wires configuration, the annotation adapter and the optional
// object store into evaluation runs.
type JobService struct {
	cfg    config.Config
	engine *evaluationengine.Engine
	store  artifactStore
	out    io.Writer
}

// jsonReport is the machine-readable form of a finished evaluation.
type jsonReport struct {
	Report    metricscalculator.Report        `json:"report"`
	Documents []metricscalculator.ScoreRecord `json:"documents"`
}

// NewJobService builds the adapter and, when enabled, the object store client.
// Reports are written to out; progress bars to progressOut (nil disables them).
func NewJobService(cfg config.Config, out, progressOut io.Writer) (*JobService, error) {
	adapter, err := vendoradapters.GetAnnotationAdapter(cfg.Annotator)
	if err != nil {
		return nil, err
	}
	return NewJobServiceWithAdapter(cfg, adapter, out, progressOut)
}

// NewJobServiceWithAdapter is NewJobService with an explicit adapter.
func NewJobServiceWithAdapter(cfg config.Config, adapter vendoradapters.AnnotationAdapter, out, progressOut io.Writer) (*JobService, error) {
	if !cfg.ShowProgress {
		progressOut = nil
	}
	s := &JobService{
		cfg: cfg,
		engine: &evaluationengine.Engine{
			Adapter:          adapter,
			FailFast:         cfg.FailFast,
			FuzzyMaxDistance: cfg.FuzzyMaxDistance,
			Progress:         progressOut,
		},
		out: out,
	}

	if cfg.ObjectStore.Enabled {
		store, err := objectstore.NewMinioClient(cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

// RunEvaluation runs the full pipeline: optional smoke check, dataset load,
// batch annotation, output archive, optional upload, scoring and report.
func (s *JobService) RunEvaluation(ctx context.Context) (*Job, error) {
	job := &Job{Status: JobStatusPending}
	slog.Info("evaluation job created", "status", job.Status)

	job.Status = JobStatusRunning
	job.StartedAt = time.Now()
	slog.Info("evaluation job running", "adapter", s.cfg.Annotator.Adapter, "fail_fast", s.cfg.FailFast)

	err := s.runEvaluation(ctx, job)
	job.CompletedAt = time.Now()
	if err != nil {
		job.Status = JobStatusFailed
		slog.Error("evaluation job failed", "error", err, "duration", job.CompletedAt.Sub(job.StartedAt))
		return job, err
	}

	job.Status = JobStatusCompleted
	slog.Info("evaluation job completed", "duration", job.CompletedAt.Sub(job.StartedAt))
	return job, nil
}

func (s *JobService) runEvaluation(ctx context.Context, job *Job) error {
	if s.cfg.Smoke.Enabled {
		smoke, err := s.RunSmoke(ctx)
		if err != nil {
			return err
		}
		job.Smoke = &smoke
	}

	ds, err := s.loadDataset(ctx)
	if err != nil {
		return err
	}
	textOnly, referenceOnly := ds.Coverage()
	if len(textOnly) > 0 {
		slog.Warn("texts without reference metadata are annotated but not scored", "count", len(textOnly), "ids", textOnly)
	}
	if len(referenceOnly) > 0 {
		slog.Warn("reference documents without text will be reported missing", "count", len(referenceOnly), "ids", referenceOnly)
	}

	batch, batchErr := s.engine.RunBatch(ctx, ds.Texts)
	if batchErr != nil {
		return fmt.Errorf("batch annotation: %w", batchErr)
	}

	archivePath, err := artifacts.WriteOutputArchive(s.cfg.Output.Dir, s.cfg.Output.JSONName, s.cfg.Output.ArchiveName, batch.Responses)
	if err != nil {
		return err
	}
	job.ArchivePath = archivePath

	if s.store != nil && s.cfg.ObjectStore.UploadArtifacts {
		if err := s.store.EnsureBucket(ctx); err != nil {
			return err
		}
		object, err := s.store.UploadArtifact(ctx, archivePath, "application/zip")
		if err != nil {
			return err
		}
		job.ArtifactObject = object
	}

	acc := s.engine.Score(ds.References, batch)
	return s.finish(job, acc)
}

// RunSmoke annotates the configured sample text and compares it with the
// reference response file.
func (s *JobService) RunSmoke(ctx context.Context) (evaluationengine.SmokeResult, error) {
	slog.Info("testing the api")
	text, err := s.cfg.Smoke.Text()
	if err != nil {
		return evaluationengine.SmokeResult{}, err
	}
	refBody, err := os.ReadFile(s.cfg.Smoke.ReferencePath)
	if err != nil {
		return evaluationengine.SmokeResult{}, fmt.Errorf("reading smoke reference: %w", err)
	}
	reference, err := vendoradapters.DecodeAnnotationResponse(refBody)
	if err != nil {
		return evaluationengine.SmokeResult{}, fmt.Errorf("smoke reference %s: %w", s.cfg.Smoke.ReferencePath, err)
	}

	res, err := s.engine.RunSmokeCheck(ctx, text, reference)
	if err != nil {
		return evaluationengine.SmokeResult{}, err
	}
	fmt.Fprintf(s.out, "Found %d annotations in the test text\n", res.Extracted)
	fmt.Fprintln(s.out, res.String())
	return res, nil
}

// Rescore scores an existing output archive against the dataset without
// calling the annotation API. An empty archivePath uses the configured output.
func (s *JobService) Rescore(ctx context.Context, archivePath string) (*Job, error) {
	if archivePath == "" {
		archivePath = filepath.Join(s.cfg.Output.Dir, s.cfg.Output.ArchiveName)
	}
	job := &Job{Status: JobStatusRunning, StartedAt: time.Now(), ArchivePath: archivePath}

	responses, err := artifacts.ReadOutputArchive(archivePath, s.cfg.Output.JSONName)
	if err != nil {
		job.Status = JobStatusFailed
		return job, err
	}
	extracted, err := evaluationengine.ExtractedFromResponses(responses)
	if err != nil {
		job.Status = JobStatusFailed
		return job, err
	}
	ds, err := s.loadDataset(ctx)
	if err != nil {
		job.Status = JobStatusFailed
		return job, err
	}

	acc := s.engine.Score(ds.References, &evaluationengine.BatchResult{Extracted: extracted})
	if err := s.finish(job, acc); err != nil {
		job.Status = JobStatusFailed
		return job, err
	}
	job.Status = JobStatusCompleted
	job.CompletedAt = time.Now()
	return job, nil
}

// finish stores the report on the job and prints it in the configured format.
func (s *JobService) finish(job *Job, acc *metricscalculator.Accumulator) error {
	report := acc.Report()
	job.Report = &report
	job.Records = acc.Records

	if s.cfg.Output.ReportFormat != config.ReportJSON {
		report.Print(s.out)
		return nil
	}
	records := job.Records
	if records == nil {
		records = []metricscalculator.ScoreRecord{}
	}
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{Report: report, Documents: records}); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

// loadDataset fetches the archive from the object store when it is not on
// disk and has not been extracted yet, then loads it.
func (s *JobService) loadDataset(ctx context.Context) (*datastore.Dataset, error) {
	dc := s.cfg.Dataset
	if s.store != nil && s.cfg.ObjectStore.DatasetObject != "" && !exists(dc.ExtractDir) && !exists(dc.ArchivePath) {
		slog.Info("dataset archive not found locally, downloading", "object", s.cfg.ObjectStore.DatasetObject)
		if err := s.store.DownloadFile(ctx, s.cfg.ObjectStore.DatasetObject, dc.ArchivePath); err != nil {
			return nil, err
		}
	}
	return datastore.LoadDataset(dc, s.engine.Progress)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
