package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// resultRetention is how long a finished load stays queryable.
const resultRetention = 5 * time.Minute

// ServiceConfig holds the tunables of a Service. Zero values take defaults.
type ServiceConfig struct {
	MaxConcurrent  int
	MaxWaitTime    time.Duration
	BatchSize      int
	Timeout        time.Duration
	ConnectTimeout time.Duration
	PreviewRows    int
	ODBCDriver     string // default for specs that name none
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = 5
	}
	return c
}

// Service provides the business logic for inspecting files and loading them
// into destination databases. It is safe for concurrent use.
type Service struct {
	cfg     ServiceConfig
	limiter *LoadLimiter
	history *HistoryStore

	mu    sync.RWMutex
	loads map[string]*activeLoad
}

type activeLoad struct {
	ID         string
	Job        *LoadJob
	Cancel     context.CancelFunc
	Result     *LoadResult
	Done       chan struct{}
	Progress   LoadProgress
	Listeners  []chan LoadProgress
	ListenerMu sync.Mutex
	finished   bool
}

// NewService creates a Service. history may be nil, in which case loads are
// not recorded.
func NewService(cfg ServiceConfig, history *HistoryStore) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		limiter: NewLoadLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		history: history,
		loads:   make(map[string]*activeLoad),
	}
}

// Inspection is a parsed file together with its default column plan and a
// preview of the leading rows.
type Inspection struct {
	FileName string
	Table    *Table
	Plan     ColumnPlan
	Preview  Preview
}

// Inspect parses an uploaded file.
func (s *Service) Inspect(fileName string, data []byte) (*Inspection, error) {
	if fileName == "" && len(data) == 0 {
		return nil, ErrNoFile
	}

	t, err := ParseFile(fileName, data)
	if err != nil {
		return nil, err
	}

	return &Inspection{
		FileName: fileName,
		Table:    t,
		Plan:     NewColumnPlan(t),
		Preview:  BuildPreview(t, s.cfg.PreviewRows),
	}, nil
}

// Prepared is a table after the column plan was applied.
type Prepared struct {
	Table    *Table
	Warnings []CoercionWarning
	Preview  Preview
}

// Prepare applies plan to t. Columns that cannot be converted are kept as
// they are and reported as warnings.
func (s *Service) Prepare(t *Table, plan ColumnPlan) *Prepared {
	filtered, warnings := ApplyPlan(t, plan)
	return &Prepared{
		Table:    filtered,
		Warnings: warnings,
		Preview:  BuildPreview(filtered, s.cfg.PreviewRows),
	}
}

// ValidateJob rejects a job that cannot be loaded. It performs no I/O.
func ValidateJob(job *LoadJob) error {
	if job == nil || job.Table == nil {
		return ErrNoFile
	}
	if strings.TrimSpace(job.Request.TableName) == "" {
		return ErrEmptyTableName
	}
	if len(job.Table.Columns) == 0 {
		return ErrNoColumns
	}
	if _, err := ParseConflictPolicy(string(job.Request.Policy)); err != nil {
		return err
	}
	return ValidateConnection(job.Conn)
}

// Load runs job to completion and returns its outcome. progress, if non-nil,
// is called as the load advances. Validation errors are returned in the
// result like any other failure.
func (s *Service) Load(ctx context.Context, job *LoadJob, progress ProgressCallback) *LoadResult {
	loadID := uuid.New().String()

	if err := ValidateJob(job); err != nil {
		return failedResult(loadID, job, err)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return failedResult(loadID, job, err)
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	return s.runLoad(ctx, loadID, job, progress)
}

// StartLoad validates job and begins loading it in the background. It
// returns the load ID immediately; use SubscribeProgress and GetLoadResult to
// follow it.
//
// Returns ErrTooManyLoads if no load slot frees up in time.
func (s *Service) StartLoad(ctx context.Context, job *LoadJob) (string, error) {
	if err := ValidateJob(job); err != nil {
		return "", err
	}
	if job.ClientIP == "" {
		job.ClientIP = GetIPAddressFromContext(ctx)
	}
	if job.UserAgent == "" {
		job.UserAgent = GetUserAgentFromContext(ctx)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	loadID := uuid.New().String()
	loadCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)

	load := &activeLoad{
		ID:     loadID,
		Job:    job,
		Cancel: cancel,
		Done:   make(chan struct{}),
		Progress: LoadProgress{
			LoadID:    loadID,
			Phase:     PhaseStarting,
			TotalRows: job.Table.Rows,
		},
	}

	s.mu.Lock()
	s.loads[loadID] = load
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in load", "load_id", loadID, "panic", r)
				load.Result = failedResult(loadID, job, fmt.Errorf("internal error: %v", r))
				load.update(func(p *LoadProgress) {
					p.Phase = PhaseFailed
					p.Error = load.Result.Error
				})
			}
			load.finish()
			s.cleanup(loadID, resultRetention)
		}()

		load.Result = s.runLoad(loadCtx, loadID, job, func(p LoadProgress) {
			load.update(func(cur *LoadProgress) { *cur = p })
		})
	}()

	return loadID, nil
}

// SubscribeProgress returns a channel that receives progress updates. The
// current progress is sent first; the channel is closed when the load ends.
func (s *Service) SubscribeProgress(loadID string) (<-chan LoadProgress, error) {
	load, err := s.get(loadID)
	if err != nil {
		return nil, err
	}

	ch := make(chan LoadProgress, 16)

	load.ListenerMu.Lock()
	defer load.ListenerMu.Unlock()

	ch <- load.Progress
	if load.finished {
		close(ch)
		return ch, nil
	}
	load.Listeners = append(load.Listeners, ch)
	return ch, nil
}

// GetLoadProgress returns the current progress without blocking.
func (s *Service) GetLoadProgress(loadID string) (LoadProgress, error) {
	load, err := s.get(loadID)
	if err != nil {
		return LoadProgress{}, err
	}

	load.ListenerMu.Lock()
	defer load.ListenerMu.Unlock()
	return load.Progress, nil
}

// GetLoadResult waits for the load to finish and returns its result.
func (s *Service) GetLoadResult(ctx context.Context, loadID string) (*LoadResult, error) {
	load, err := s.get(loadID)
	if err != nil {
		return nil, err
	}

	select {
	case <-load.Done:
		return load.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelLoad cancels an in-progress load. Cancelling a finished load is a
// no-op.
func (s *Service) CancelLoad(loadID string) error {
	load, err := s.get(loadID)
	if err != nil {
		return err
	}
	load.Cancel()
	return nil
}

// ConnectionString builds the connection string for spec with the
// service's defaults applied.
func (s *Service) ConnectionString(spec ConnectionSpec) (string, error) {
	if spec.ODBCDriver == "" {
		spec.ODBCDriver = s.cfg.ODBCDriver
	}
	return BuildConnectionString(spec)
}

// TestConnection opens and pings the destination without writing anything.
func (s *Service) TestConnection(ctx context.Context, spec ConnectionSpec) error {
	if err := ValidateConnection(spec); err != nil {
		return err
	}
	dialect, _ := Get(spec.Kind)

	connString, err := s.ConnectionString(spec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	dest, err := dialect.Open(ctx, connString)
	if err != nil {
		return err
	}
	return dest.Close()
}

// History returns the most recent load attempts, newest first. It returns
// nil when history is disabled.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}

// HistoryEnabled reports whether load attempts are recorded.
func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

// LimiterStatus reports load slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForLoads blocks until no load is running or ctx is done.
func (s *Service) WaitForLoads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every running load.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, load := range s.loads {
		load.Cancel()
	}
}

func (s *Service) get(loadID string) (*activeLoad, error) {
	s.mu.RLock()
	load, ok := s.loads[loadID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLoadNotFound, loadID)
	}
	return load, nil
}

// cleanup removes the load from tracking after a delay.
func (s *Service) cleanup(loadID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.loads, loadID)
		s.mu.Unlock()
	})
}

// update mutates the progress and sends it to all listeners.
func (load *activeLoad) update(fn func(*LoadProgress)) {
	load.ListenerMu.Lock()
	defer load.ListenerMu.Unlock()

	fn(&load.Progress)
	for _, ch := range load.Listeners {
		select {
		case ch <- load.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish delivers the final progress, closes all listener channels and
// marks the load done.
func (load *activeLoad) finish() {
	load.ListenerMu.Lock()
	defer load.ListenerMu.Unlock()

	for _, ch := range load.Listeners {
		// The final state must not be dropped; make room for it.
		select {
		case ch <- load.Progress:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- load.Progress
		}
		close(ch)
	}
	load.Listeners = nil
	load.finished = true
	close(load.Done)
}

// runLoad connects, prepares the table and writes all rows. Every error is
// caught here and reported once in the result.
func (s *Service) runLoad(ctx context.Context, loadID string, job *LoadJob, report ProgressCallback) *LoadResult {
	start := time.Now()
	logger := slog.With("load_id", loadID, "kind", job.Conn.Kind, "table", job.Request.TableName)

	result := &LoadResult{
		LoadID:    loadID,
		Kind:      job.Conn.Kind,
		TableName: job.Request.TableName,
		Policy:    job.Request.Policy,
		FileName:  job.FileName,
		Warnings:  job.Warnings,
	}
	tracker := newProgressTracker(loadID, job.Table.Rows, report)
	tracker.phase(PhaseStarting, 0)

	written, err := s.write(ctx, logger, job, tracker)
	result.RowsWritten = written
	result.Duration = time.Since(start)

	status := StatusSucceeded
	switch {
	case err == nil:
		result.Success = true
		tracker.phase(PhaseComplete, 100)
		logger.Info("load complete",
			"rows", written,
			"duration_ms", result.Duration.Milliseconds(),
		)
	case errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %w", ErrLoadCancelled, err)
		fallthrough
	default:
		result.setError(err)
		phase := PhaseFailed
		status = StatusFailed
		if errors.Is(err, ErrLoadCancelled) {
			phase = PhaseCancelled
			status = StatusCancelled
		}
		tracker.fail(phase, result.Error)
		logger.Warn("load failed",
			"error", err,
			"code", result.ErrorCode,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}

	s.record(job, result, status, start)
	return result
}

func (s *Service) write(ctx context.Context, logger *slog.Logger, job *LoadJob, tracker *progressTracker) (int, error) {
	dialect, ok := Get(job.Conn.Kind)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, job.Conn.Kind)
	}

	connString, err := s.ConnectionString(job.Conn)
	if err != nil {
		return 0, fmt.Errorf("build connection string: %w", err)
	}
	logger.Info("connecting", "target", RedactConnectionString(connString))

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	dest, err := dialect.Open(connectCtx, connString)
	cancel()
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := dest.Close(); err != nil {
			logger.Warn("close destination", "error", err)
		}
	}()
	tracker.phase(PhaseConnecting, 5)

	name := job.Request.TableName
	exists, err := dest.TableExists(ctx, name)
	if err != nil {
		return 0, err
	}
	if exists && job.Request.Policy == PolicyFail {
		return 0, fmt.Errorf("table %q: %w", name, ErrTableExists)
	}
	tracker.phase(PhasePreparing, 10)

	return dest.WriteTable(ctx, WriteSpec{
		Name:      name,
		Table:     job.Table,
		Policy:    job.Request.Policy,
		Exists:    exists,
		BatchSize: s.cfg.BatchSize,
		Written:   tracker.rows,
	})
}

func (s *Service) record(job *LoadJob, result *LoadResult, status string, start time.Time) {
	if s.history == nil {
		return
	}

	entry := HistoryEntry{
		ID:          result.LoadID,
		FileName:    job.FileName,
		Kind:        job.Conn.Kind,
		Host:        job.Conn.Host,
		Database:    job.Conn.Database,
		TableName:   job.Request.TableName,
		Policy:      job.Request.Policy,
		Columns:     job.Table.ColumnNames(),
		RowsWritten: result.RowsWritten,
		Status:      status,
		Error:       result.Error,
		ClientIP:    job.ClientIP,
		UserAgent:   job.UserAgent,
		StartedAt:   start,
		Duration:    result.Duration,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Record(ctx, entry); err != nil {
		slog.Error("record load history", "load_id", result.LoadID, "error", err)
	}
}

func failedResult(loadID string, job *LoadJob, err error) *LoadResult {
	r := &LoadResult{LoadID: loadID}
	r.setError(err)
	if job != nil {
		r.Kind = job.Conn.Kind
		r.TableName = job.Request.TableName
		r.Policy = job.Request.Policy
		r.FileName = job.FileName
		r.Warnings = job.Warnings
	}
	return r
}

// progressTracker turns load events into LoadProgress values whose percent
// never decreases.
type progressTracker struct {
	mu     sync.Mutex
	p      LoadProgress
	report ProgressCallback
}

func newProgressTracker(loadID string, totalRows int, report ProgressCallback) *progressTracker {
	return &progressTracker{
		p:      LoadProgress{LoadID: loadID, TotalRows: totalRows},
		report: report,
	}
}

func (t *progressTracker) phase(phase LoadPhase, percent int) {
	t.emit(func(p *LoadProgress) {
		p.Phase = phase
		p.Percent = max(p.Percent, percent)
	})
}

// rows maps rows written onto 10..99 percent.
func (t *progressTracker) rows(written int) {
	t.emit(func(p *LoadProgress) {
		p.Phase = PhaseWriting
		p.RowsWritten = written
		if p.TotalRows > 0 {
			p.Percent = max(p.Percent, min(10+written*89/p.TotalRows, 99))
		}
	})
}

func (t *progressTracker) fail(phase LoadPhase, msg string) {
	t.emit(func(p *LoadProgress) {
		p.Phase = phase
		p.Error = msg
	})
}

func (t *progressTracker) emit(fn func(*LoadProgress)) {
	t.mu.Lock()
	fn(&t.p)
	p := t.p
	t.mu.Unlock()

	if t.report != nil {
		t.report(p)
	}
}
