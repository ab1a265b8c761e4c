package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"carboncore/internal/blob"
	"carboncore/internal/core"
)

// ReportFormat identifies a report artifact encoding.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ReportStatus describes the lifecycle stage of a report request.
type ReportStatus string

const (
	ReportStatusQueued    ReportStatus = "queued"
	ReportStatusRunning   ReportStatus = "running"
	ReportStatusSucceeded ReportStatus = "succeeded"
	ReportStatusFailed    ReportStatus = "failed"
)

// ReportArtifact captures a stored report artifact.
type ReportArtifact struct {
	Key         string       `json:"key"`
	Format      ReportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ReportRecord tracks a report request and resulting artifacts.
type ReportRecord struct {
	ID          string           `json:"id"`
	RunID       string           `json:"run_id"`
	Formats     []ReportFormat   `json:"formats"`
	Status      ReportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ReportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ReportInput represents an enqueue request for the worker.
type ReportInput struct {
	RunID       string
	Formats     []ReportFormat
	RequestedBy string
	Reason      string
}

// ReportScheduler queues report requests and exposes status.
type ReportScheduler interface {
	EnqueueReport(ctx context.Context, input ReportInput) (ReportRecord, error)
	GetReport(id string) (ReportRecord, bool)
}

// RunSource resolves stored simulation runs for rendering.
type RunSource interface {
	GetRun(id string) (core.Run, bool)
}

// AuditLogger records report audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for report generation.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	RunID      string       `json:"run_id"`
	Status     ReportStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Worker renders report artifacts asynchronously.
type Worker struct {
	runs  RunSource
	store blob.Store
	audit AuditLogger

	queue chan reportTask
	mu    sync.RWMutex
	jobs  map[string]*ReportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type reportTask struct {
	id    string
	input ReportInput
}

type renderedArtifact struct {
	Artifact ReportArtifact
	Payload  []byte
}

// NewWorker constructs a report worker.
func NewWorker(runs RunSource, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		runs:   runs,
		store:  store,
		audit:  audit,
		queue:  make(chan reportTask, 32),
		jobs:   make(map[string]*ReportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing report requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueReport schedules a report job and returns the queued record.
func (w *Worker) EnqueueReport(ctx context.Context, input ReportInput) (ReportRecord, error) {
	if w.runs == nil {
		return ReportRecord{}, fmt.Errorf("run source not configured")
	}
	runID := strings.TrimSpace(input.RunID)
	if runID == "" {
		return ReportRecord{}, fmt.Errorf("run id required")
	}
	if _, ok := w.runs.GetRun(runID); !ok {
		return ReportRecord{}, fmt.Errorf("run %s not found", runID)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ReportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ReportFormat, 0, len(formats))
	seen := make(map[ReportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return ReportRecord{}, fmt.Errorf("unsupported report format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := ReportRecord{
		ID:          id,
		RunID:       runID,
		Formats:     uniq,
		Status:      ReportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	if w.audit != nil {
		w.audit.Record(ctx, AuditEntry{
			ID:         newID(),
			Action:     "report_export",
			Actor:      input.RequestedBy,
			RunID:      runID,
			Status:     ReportStatusQueued,
			Reason:     input.Reason,
			OccurredAt: now,
		})
	}

	select {
	case w.queue <- reportTask{id: id, input: input}:
	default:
		return ReportRecord{}, fmt.Errorf("report queue full")
	}

	return queued, nil
}

// GetReport returns a snapshot of the report record.
func (w *Worker) GetReport(id string) (ReportRecord, bool) {
	w.mu.RLock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.RUnlock()
		return ReportRecord{}, false
	}
	snapshot := record.copy()
	w.mu.RUnlock()
	return snapshot, true
}

func (w *Worker) process(task reportTask) {
	record, ok := w.GetReport(task.id)
	if !ok {
		return
	}

	run, ok := w.runs.GetRun(record.RunID)
	if !ok {
		w.fail(task.id, fmt.Sprintf("run %s missing", record.RunID))
		return
	}

	w.updateStatus(task.id, ReportStatusRunning, "")

	artifacts := make([]ReportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		rendered, err := materialize(format, record.ID, run)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, rendered.Artifact.Key, bytes.NewReader(rendered.Payload), blob.PutOptions{
				ContentType: rendered.Artifact.ContentType,
				Metadata:    map[string]string{"run_id": run.ID, "report_id": record.ID},
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			rendered.Artifact.URL = info.URL
			if info.Size > 0 {
				rendered.Artifact.SizeBytes = info.Size
			}
		}
		artifacts = append(artifacts, rendered.Artifact)
	}

	w.complete(task.id, artifacts)
}

func (w *Worker) updateStatus(id string, status ReportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, runID string
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor = record.RequestedBy
		runID = record.RunID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "report_export",
			Actor:      actor,
			RunID:      runID,
			Status:     status,
			Note:       message,
			OccurredAt: now,
		})
	}
}

func (w *Worker) complete(id string, artifacts []ReportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, runID string
	if record, ok := w.jobs[id]; ok {
		record.Status = ReportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
		runID = record.RunID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "report_export",
			Actor:      actor,
			RunID:      runID,
			Status:     ReportStatusSucceeded,
			OccurredAt: now,
		})
	}
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	var actor, runID string
	if record, ok := w.jobs[id]; ok {
		record.Status = ReportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
		runID = record.RunID
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, AuditEntry{
			ID:         newID(),
			Action:     "report_export",
			Actor:      actor,
			RunID:      runID,
			Status:     ReportStatusFailed,
			Note:       reason,
			OccurredAt: now,
		})
	}
}

func materialize(format ReportFormat, reportID string, run core.Run) (renderedArtifact, error) {
	now := time.Now().UTC()
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(run)
		if err != nil {
			return renderedArtifact{}, fmt.Errorf("marshal json: %w", err)
		}
		return renderedArtifact{
			Artifact: ReportArtifact{
				Key:         fmt.Sprintf("reports/%s/%s.json", reportID, run.ID),
				Format:      FormatJSON,
				ContentType: "application/json",
				SizeBytes:   int64(len(payload)),
				CreatedAt:   now,
			},
			Payload: payload,
		}, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(seriesHeader()); err != nil {
			return renderedArtifact{}, err
		}
		for _, year := range run.Series {
			if err := writer.Write(seriesRow(year)); err != nil {
				return renderedArtifact{}, err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return renderedArtifact{}, err
		}
		payload := buf.Bytes()
		return renderedArtifact{
			Artifact: ReportArtifact{
				Key:         fmt.Sprintf("reports/%s/%s.csv", reportID, run.ID),
				Format:      FormatCSV,
				ContentType: "text/csv",
				SizeBytes:   int64(len(payload)),
				CreatedAt:   now,
			},
			Payload: payload,
		}, nil
	default:
		return renderedArtifact{}, fmt.Errorf("unsupported report format %s", format)
	}
}

func seriesHeader() []string {
	return []string{"year", "trees_total", "biomass_t", "carbon_t", "co2e_gross_t", "soil_co2e_gross_t", "co2e_net_t", "co2e_buffer_t"}
}

func seriesRow(year core.YearlyResult) []string {
	return []string{
		strconv.Itoa(year.Year),
		strconv.Itoa(year.Trees),
		formatFloat(year.BiomassT),
		formatFloat(year.CarbonT),
		formatFloat(year.GrossCO2eT),
		formatFloat(year.SoilCO2eT),
		formatFloat(year.NetCO2eT),
		formatFloat(year.BufferCO2eT),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (r ReportRecord) copy() ReportRecord {
	dup := r
	dup.Formats = append([]ReportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ReportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
