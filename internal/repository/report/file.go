package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/rust-provisioner/internal/config"
	domain "github.com/oshokin/rust-provisioner/internal/domain/provision"
)

// Repository defines persistence operations for the run report.
type Repository interface {
	Load(ctx context.Context) (*domain.Report, error)
	Save(ctx context.Context, report *domain.Report) error
}

// FileRepository persists the run report to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON report file.
	path string
	// mu protects concurrent access to the report file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the report file does not exist yet.
	ErrNotFound = errors.New("report not found")
	// errReportIsNotSet is returned when saving a nil report.
	errReportIsNotSet = errors.New("report is not set")
)

// Field names of the persisted document.
const (
	fieldStartedAt        = "started_at"
	fieldFinishedAt       = "finished_at"
	fieldHostname         = "hostname"
	fieldSucceeded        = "succeeded"
	fieldFailedStep       = "failed_step"
	fieldErrorKind        = "error_kind"
	fieldError            = "error"
	fieldToolchainVersion = "toolchain_version"
	fieldSteps            = "steps"
	fieldStep             = "step"
	fieldStatus           = "status"
	fieldDurationSeconds  = "duration_seconds"
	fieldDetail           = "detail"
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the report from disk.
func (r *FileRepository) Load(_ context.Context) (*domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read report file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode report file: %w", err)
	}

	return fromStruct(&document)
}

// Save writes the report to disk using JSON representation.
func (r *FileRepository) Save(_ context.Context, report *domain.Report) error {
	if report == nil {
		return errReportIsNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := toStruct(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}

	return nil
}

// toStruct converts the domain Report into a protobuf Struct.
func toStruct(report *domain.Report) (*structpb.Struct, error) {
	steps := make([]any, 0, len(report.Steps))

	for _, step := range report.Steps {
		entry := map[string]any{
			fieldStep:            string(step.Step),
			fieldStatus:          string(step.Status),
			fieldStartedAt:       formatTime(step.StartedAt),
			fieldDurationSeconds: step.Duration.Seconds(),
		}

		if step.Err != nil {
			entry[fieldError] = step.Err.Error()
		}

		if step.Detail != "" {
			entry[fieldDetail] = step.Detail
		}

		steps = append(steps, entry)
	}

	return structpb.NewStruct(map[string]any{
		fieldStartedAt:        formatTime(report.StartedAt),
		fieldFinishedAt:       formatTime(report.FinishedAt),
		fieldHostname:         report.Hostname,
		fieldSucceeded:        report.Succeeded,
		fieldFailedStep:       string(report.FailedStep),
		fieldErrorKind:        report.ErrorKind,
		fieldError:            report.Error,
		fieldToolchainVersion: report.ToolchainVersion,
		fieldSteps:            steps,
	})
}

// fromStruct converts a protobuf Struct back into the domain Report.
// Step errors come back as plain errors carrying the original message.
func fromStruct(document *structpb.Struct) (*domain.Report, error) {
	fields := document.GetFields()

	startedAt, err := parseTime(stringField(fields, fieldStartedAt))
	if err != nil {
		return nil, err
	}

	finishedAt, err := parseTime(stringField(fields, fieldFinishedAt))
	if err != nil {
		return nil, err
	}

	report := &domain.Report{
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Hostname:         stringField(fields, fieldHostname),
		Succeeded:        fields[fieldSucceeded].GetBoolValue(),
		FailedStep:       domain.Step(stringField(fields, fieldFailedStep)),
		ErrorKind:        stringField(fields, fieldErrorKind),
		Error:            stringField(fields, fieldError),
		ToolchainVersion: stringField(fields, fieldToolchainVersion),
	}

	for _, value := range fields[fieldSteps].GetListValue().GetValues() {
		stepFields := value.GetStructValue().GetFields()

		stepStartedAt, err := parseTime(stringField(stepFields, fieldStartedAt))
		if err != nil {
			return nil, err
		}

		result := domain.StepResult{
			Step:      domain.Step(stringField(stepFields, fieldStep)),
			Status:    domain.Status(stringField(stepFields, fieldStatus)),
			StartedAt: stepStartedAt,
			Duration:  time.Duration(stepFields[fieldDurationSeconds].GetNumberValue() * float64(time.Second)),
			Detail:    stringField(stepFields, fieldDetail),
		}

		if message := stringField(stepFields, fieldError); message != "" {
			result.Err = errors.New(message)
		}

		report.Steps = append(report.Steps, result)
	}

	return report, nil
}

func stringField(fields map[string]*structpb.Value, name string) string {
	return fields[name].GetStringValue()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", value, err)
	}

	return t, nil
}
