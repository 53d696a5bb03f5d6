package analyses

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"insight-backend/internal/capabilities"
	"insight-backend/internal/dataset"
	"insight-backend/internal/queries"
	"insight-backend/internal/risk"
	"insight-backend/internal/schema"
	"insight-backend/internal/sessions"
	"insight-backend/internal/shared/metrics"
	"insight-backend/internal/shared/storage/object"
	"insight-backend/internal/shared/telemetry"
)

const (
	DefaultLimit       = 10
	DefaultMaxLimit    = 100
	DefaultPreviewRows = 100
	MaxPreviewRows     = 1000
	DefaultMaxUpload   = 50 << 20

	defaultGrain = schema.GrainDay
	auditTimeout = 5 * time.Second
)

// Service owns the analysis workflow: upload, inspect and dispatch.
type Service struct {
	Sessions *sessions.Store
	Risk     *risk.Evaluator
	// Repo records datasets and runs. Nil disables the audit trail.
	Repo Repo
	// Store keeps the raw upload. Nil skips persistence.
	Store object.ObjectStore

	MaxLimit        int
	PreviewRows     int
	MaxUploadBytes  int64
	PurgeRawOnEvict bool
	Now             func() time.Time

	group      singleflight.Group
	queryCalls atomic.Int64
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) maxLimit() int {
	if s.MaxLimit > 0 {
		return s.MaxLimit
	}
	return DefaultMaxLimit
}

func (s *Service) maxUpload() int64 {
	if s.MaxUploadBytes > 0 {
		return s.MaxUploadBytes
	}
	return DefaultMaxUpload
}

func (s *Service) evaluator() *risk.Evaluator {
	if s.Risk != nil {
		return s.Risk
	}
	return risk.NewEvaluator(risk.DefaultThresholds())
}

// QueryExecutions reports how many aggregation queries actually ran.
func (s *Service) QueryExecutions() int64 {
	return s.queryCalls.Load()
}

// Bootstrap reads an upload, infers its schema and opens a session. The raw
// bytes are kept in the object store under namespace when one is configured;
// uploads that fail to parse are never stored.
func (s *Service) Bootstrap(ctx context.Context, namespace, fileName string, r io.Reader) (Summary, error) {
	if !dataset.SupportedExtension(fileName) {
		metrics.IncBootstrap("unsupported")
		return Summary{}, fmt.Errorf("%w: %s", dataset.ErrUnsupportedFormat, path.Ext(fileName))
	}
	data, err := s.readLimited(r)
	if err != nil {
		metrics.IncBootstrap("rejected")
		return Summary{}, err
	}

	start := s.now()
	frame, sch, err := parse(fileName, data)
	if err != nil {
		return Summary{}, err
	}

	meta := sessions.Meta{FileName: fileName, SizeBytes: int64(len(data))}
	if s.Store != nil {
		key, _, _, err := s.Store.Save(ctx, namespace, fileName, bytes.NewReader(data))
		if err != nil {
			_ = frame.Close()
			metrics.IncBootstrap("failed")
			return Summary{}, fmt.Errorf("store upload: %w", err)
		}
		meta.StorageKey = key
	}
	return s.open(ctx, frame, sch, meta, start)
}

// BootstrapFromObject opens a session from an object uploaded earlier, for
// example through a presigned URL.
func (s *Service) BootstrapFromObject(ctx context.Context, storageKey, fileName string) (Summary, error) {
	if s.Store == nil {
		return Summary{}, errors.New("object store not configured")
	}
	if strings.TrimSpace(storageKey) == "" {
		return Summary{}, invalid("storageKey", "is required")
	}
	if fileName == "" {
		fileName = path.Base(storageKey)
	}
	if !dataset.SupportedExtension(fileName) {
		metrics.IncBootstrap("unsupported")
		return Summary{}, fmt.Errorf("%w: %s", dataset.ErrUnsupportedFormat, path.Ext(fileName))
	}

	rc, err := s.Store.Open(ctx, storageKey)
	if err != nil {
		metrics.IncBootstrap("failed")
		return Summary{}, fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()
	data, err := s.readLimited(rc)
	if err != nil {
		metrics.IncBootstrap("rejected")
		return Summary{}, err
	}
	start := s.now()
	frame, sch, err := parse(fileName, data)
	if err != nil {
		return Summary{}, err
	}
	return s.open(ctx, frame, sch, sessions.Meta{
		FileName:   fileName,
		StorageKey: storageKey,
		SizeBytes:  int64(len(data)),
	}, start)
}

func (s *Service) readLimited(r io.Reader) ([]byte, error) {
	limit := s.maxUpload()
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, limit)
	}
	return data, nil
}

func parse(fileName string, data []byte) (*dataset.Frame, schema.Schema, error) {
	frame, err := dataset.Read(fileName, data)
	if err != nil {
		metrics.IncBootstrap("invalid")
		return nil, schema.Schema{}, err
	}
	return frame, schema.Infer(frame), nil
}

func (s *Service) open(ctx context.Context, frame *dataset.Frame, sch schema.Schema, meta sessions.Meta, start time.Time) (Summary, error) {
	id := s.Sessions.Create(frame, sch, meta)

	metrics.IncBootstrap("ok")
	metrics.ObserveBootstrapRows(sch.RowCount)
	metrics.SetActiveSessions(s.Sessions.Len())
	telemetry.Info("analysis.bootstrap", logFields(ctx, id,
		"file_name", meta.FileName,
		"size_bytes", meta.SizeBytes,
		"rows", sch.RowCount,
		"columns", len(sch.Columns),
		"skipped_rows", frame.SkippedRows(),
		"time_column", sch.TimeColumn,
		"duration_ms", s.now().Sub(start).Milliseconds(),
	))

	if s.Repo != nil {
		rec := Dataset{
			ID:          id,
			FileName:    meta.FileName,
			StorageKey:  meta.StorageKey,
			SizeBytes:   meta.SizeBytes,
			RowCount:    sch.RowCount,
			ColumnCount: len(sch.Columns),
			TimeColumn:  sch.TimeColumn,
			CreatedAt:   start.UTC(),
		}
		if err := s.Repo.CreateDataset(ctx, rec); err != nil {
			telemetry.Error("analysis.audit_failed", logFields(ctx, id, "err", err))
		}
	}

	return s.Summary(ctx, id)
}

// Summary returns the schema and data-quality digest of a session and
// refreshes its recency.
func (s *Service) Summary(ctx context.Context, id string) (Summary, error) {
	sess, release, err := s.Sessions.Get(id)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	if err := s.Sessions.Touch(id); err != nil {
		return Summary{}, err
	}
	lastUsed, err := s.Sessions.LastUsed(id)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		AnalysisID: id,
		FileName:   sess.Meta.FileName,
		CreatedAt:  sess.CreatedAt.UTC(),
		LastUsedAt: lastUsed.UTC(),
		Schema:     sess.Schema,
		Overview:   schema.BuildOverview(sess.Frame, sess.Schema, sess.Meta.SizeBytes, s.now()),
	}
	if ttl := s.Sessions.TTL(); ttl > 0 {
		exp := lastUsed.Add(ttl).UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

// Preview returns the first limit rows; zero selects the default.
func (s *Service) Preview(ctx context.Context, id string, limit int) (Preview, error) {
	if limit == 0 {
		limit = s.PreviewRows
		if limit <= 0 {
			limit = DefaultPreviewRows
		}
	}
	if limit < 1 || limit > MaxPreviewRows {
		return Preview{}, invalid("limit", "must be between 1 and %d", MaxPreviewRows)
	}
	sess, release, err := s.Sessions.Get(id)
	if err != nil {
		return Preview{}, err
	}
	defer release()
	_ = s.Sessions.Touch(id)

	return Preview{
		Columns:   sess.Frame.Headers(),
		Rows:      sess.Frame.Preview(limit),
		TotalRows: sess.Frame.Len(),
	}, nil
}

// Distinct lists the most frequent values of a column.
func (s *Service) Distinct(ctx context.Context, id, column string, limit int) (DistinctValues, error) {
	if limit == 0 {
		limit = DefaultPreviewRows
	}
	if limit < 1 || limit > MaxPreviewRows {
		return DistinctValues{}, invalid("limit", "must be between 1 and %d", MaxPreviewRows)
	}
	if strings.TrimSpace(column) == "" {
		return DistinctValues{}, invalid("column", "is required")
	}
	sess, release, err := s.Sessions.Get(id)
	if err != nil {
		return DistinctValues{}, err
	}
	defer release()

	idx, ok := sess.Frame.Index(column)
	if !ok {
		return DistinctValues{}, invalid("column", "unknown column %q", column)
	}
	_ = s.Sessions.Touch(id)
	return DistinctValues{Column: column, Values: sess.Frame.Distinct(idx, limit)}, nil
}

// Close evicts a session explicitly.
func (s *Service) Close(ctx context.Context, id string) error {
	if err := s.Sessions.Evict(id); err != nil {
		return err
	}
	metrics.SetActiveSessions(s.Sessions.Len())
	return nil
}

// Runs returns the audit history of an analysis, newest first.
func (s *Service) Runs(ctx context.Context, id string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if s.Repo == nil {
		return []Run{}, nil
	}
	return s.Repo.ListRuns(ctx, id, limit)
}

// Capabilities lists every capability with its availability on a session.
// Capabilities with a granularity are judged at the default grain.
func (s *Service) Capabilities(ctx context.Context, id string) ([]CapabilityStatus, error) {
	sess, release, err := s.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	defer release()

	ev := s.evaluator()
	list := capabilities.List()
	out := make([]CapabilityStatus, 0, len(list))
	for _, d := range list {
		var grain schema.Grain
		if d.SupportsGranularity {
			grain = defaultGrain
		}
		findings := ev.Evaluate(sess.Schema, d, grain)
		out = append(out, CapabilityStatus{
			Descriptor: d,
			Available:  len(risk.Blocking(findings)) == 0,
			Findings:   findings,
		})
	}
	return out, nil
}

// Run dispatches a capability on a session. Block findings stop the run
// before any query touches the data; the remaining findings travel with the
// result. Identical concurrent runs share one execution.
func (s *Service) Run(ctx context.Context, id, key string, p Params) (RunResult, error) {
	start := s.now()

	sess, release, err := s.Sessions.Get(id)
	if err != nil {
		metrics.IncRun(key, "not_found")
		return RunResult{}, err
	}
	defer release()

	desc, err := capabilities.Get(key)
	if err != nil {
		metrics.IncRun("unknown", "unknown_capability")
		return RunResult{}, err
	}

	np, err := normalizeParams(desc, p, s.maxLimit())
	if err != nil {
		s.record(ctx, id, desc.Key, RunParams{}, OutcomeInvalid, 0, start)
		return RunResult{}, err
	}

	findings := s.evaluator().Evaluate(sess.Schema, desc, np.grain)
	for _, f := range findings {
		metrics.IncFinding(f.Code, f.Severity.String())
	}
	if blocks := risk.Blocking(findings); len(blocks) > 0 {
		s.record(ctx, id, desc.Key, np.echo(), OutcomeBlocked, len(findings), start)
		return RunResult{}, &BlockedError{Capability: string(desc.Key), Findings: blocks}
	}

	v, err, _ := s.group.Do(id+"|"+string(desc.Key)+"|"+np.key(), func() (any, error) {
		return s.execute(sess, desc, np)
	})
	if err != nil {
		s.record(ctx, id, desc.Key, np.echo(), OutcomeFailed, len(findings), start)
		telemetry.Error("analysis.run_failed", logFields(ctx, id,
			"capability", desc.Key,
			"err", err,
		))
		return RunResult{}, fmt.Errorf("run %s: %w", desc.Key, err)
	}
	_ = s.Sessions.Touch(id)

	s.record(ctx, id, desc.Key, np.echo(), OutcomeOK, len(findings), start)
	return RunResult{
		AnalysisID: id,
		Capability: desc.Key,
		Chart:      desc.Chart,
		Shape:      desc.Shape,
		Params:     np.echo(),
		Result:     v.(Result),
		Findings:   risk.NonBlocking(findings),
	}, nil
}

func (s *Service) execute(sess *sessions.Session, d capabilities.Descriptor, np runParams) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("query panicked: %v", rec)
		}
	}()
	s.queryCalls.Add(1)

	f, sch := sess.Frame, sess.Schema
	switch d.Key {
	case capabilities.TimeTrend:
		series, err := queries.TimeTrend(f, sch, np.grain)
		if err != nil {
			return nil, err
		}
		return SeriesResult{series}, nil
	case capabilities.AOV:
		series, err := queries.AOV(f, sch, np.grain)
		if err != nil {
			return nil, err
		}
		return SeriesResult{series}, nil
	case capabilities.TopProducts:
		items, err := queries.TopN(f, sch, queries.ByProduct, np.limit)
		if err != nil {
			return nil, err
		}
		return ItemsResult{items}, nil
	case capabilities.TopMembers:
		items, err := queries.TopN(f, sch, queries.ByMember, np.limit)
		if err != nil {
			return nil, err
		}
		return ItemsResult{items}, nil
	case capabilities.NewVsReturning:
		items, err := queries.NewVsReturning(f, sch, np.period)
		if err != nil {
			return nil, err
		}
		return ItemsResult{items}, nil
	default:
		return nil, fmt.Errorf("no query for capability %s", d.Key)
	}
}

func (s *Service) record(ctx context.Context, id string, key capabilities.Key, params RunParams, outcome string, findingCount int, start time.Time) {
	elapsed := s.now().Sub(start)
	metrics.IncRun(string(key), outcome)
	metrics.ObserveRunDurationMs(string(key), float64(elapsed.Microseconds())/1000.0)
	telemetry.Info("analysis.run", logFields(ctx, id,
		"capability", key,
		"outcome", outcome,
		"finding_count", findingCount,
		"duration_ms", float64(elapsed.Microseconds()) / 1000.0,
	))
	if s.Repo == nil {
		return
	}
	run := Run{
		ID:           uuid.NewString(),
		AnalysisID:   id,
		Capability:   string(key),
		Params:       params,
		Outcome:      outcome,
		FindingCount: findingCount,
		DurationMs:   elapsed.Milliseconds(),
		CreatedAt:    start.UTC(),
	}
	if err := s.Repo.CreateRun(ctx, run); err != nil {
		telemetry.Error("analysis.audit_failed", logFields(ctx, id,
			"capability", key,
			"err", err,
		))
	}
}

// OnEvict is the session store's eviction hook. It records the close and
// optionally removes the raw upload.
func (s *Service) OnEvict(e sessions.Evicted) {
	metrics.IncEviction(string(e.Reason))
	telemetry.Info("session.evicted", map[string]any{
		"analysis_id": e.ID,
		"reason":      e.Reason,
		"lifetime_ms": e.Lifetime.Milliseconds(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if s.Repo != nil {
		if err := s.Repo.CloseDataset(ctx, e.ID, string(e.Reason), s.now().UTC()); err != nil && !errors.Is(err, ErrNotFound) {
			telemetry.Error("analysis.audit_failed", map[string]any{"analysis_id": e.ID, "err": err})
		}
	}
	if s.PurgeRawOnEvict && s.Store != nil && e.Meta.StorageKey != "" {
		if err := s.Store.Delete(ctx, e.Meta.StorageKey); err != nil {
			telemetry.Warn("analysis.purge_failed", map[string]any{
				"analysis_id": e.ID,
				"storage_key": e.Meta.StorageKey,
				"err":         err,
			})
		}
	}
}
