// Package field applies the toggle transform to the encryption-enabled fields of whole
// documents, driven by the hook table of a compiled model.
package field

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/audit"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/datecipher"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/interfaces"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/internal/document"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

var (
	// ErrEncryptionDisabled indicates that encryption is not enabled
	ErrEncryptionDisabled = errors.New("encryption is disabled")
	// ErrNilModel indicates a transform was requested without a compiled model
	ErrNilModel = errors.New("model cannot be nil")
)

// Phase is the persistence phase a hook runs in
type Phase string

const (
	PhaseSave Phase = "save"
	PhaseRead Phase = "read"
)

type parityCounter struct {
	saves uint64
	reads uint64
}

// Service invokes the registered hooks of a model on documents
type Service struct {
	prim     *crypt.Primitive
	dates    *datecipher.Type
	logger   interfaces.AuditLogger
	recorder interfaces.HookRecorder

	stats   types.FieldStats
	statsMu sync.Mutex

	// model -> hook path -> counter
	parity sync.Map
}

// Option configures a Service
type Option func(*Service)

// WithAuditLogger emits one audit event per Save and Read call
func WithAuditLogger(l interfaces.AuditLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRecorder reports hook invocations and toggles, typically to metrics
func WithRecorder(r interfaces.HookRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a field service over an injected primitive
func NewService(prim *crypt.Primitive, opts ...Option) (*Service, error) {
	dates, err := datecipher.New(prim)
	if err != nil {
		return nil, err
	}
	s := &Service{prim: prim, dates: dates}
	for _, opt := range opts {
		opt(s)
	}

	log.Debug().
		Bool("hasLogger", s.logger != nil).
		Bool("hasRecorder", s.recorder != nil).
		Msg("Field service created")

	return s, nil
}

// Primitive returns the injected crypt primitive
func (s *Service) Primitive() *crypt.Primitive {
	return s.prim
}

// Save runs every hook of m over doc for the save phase
func (s *Service) Save(ctx context.Context, m *schema.Model, doc any) error {
	return s.apply(ctx, m, doc, PhaseSave)
}

// Read runs every hook of m over doc for the read phase
func (s *Service) Read(ctx context.Context, m *schema.Model, doc any) error {
	return s.apply(ctx, m, doc, PhaseRead)
}

func (s *Service) apply(ctx context.Context, m *schema.Model, doc any, phase Phase) error {
	if m == nil {
		return ErrNilModel
	}
	if !document.IsDocument(doc) {
		return fmt.Errorf("%w: %T", document.ErrUnsupportedDocument, doc)
	}

	ctx = audit.WithPhase(audit.WithContext(ctx, m.Name, m.Collection), string(phase))

	var errs []error
	for _, hook := range m.Hooks {
		if err := s.Invoke(ctx, m, hook, doc, phase); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	s.track(phase, err)
	s.auditApply(ctx, m, phase, err)

	if err != nil {
		log.Error().
			Err(err).
			Str("model", m.Name).
			Str("phase", string(phase)).
			Msg("Field transform failed")
	}
	return err
}

// Invoke runs one hook over doc. This is the single call the persistence adapter makes
// per field and phase; every call is counted for the parity check.
func (s *Service) Invoke(ctx context.Context, m *schema.Model, hook schema.Hook, doc any, phase Phase) error {
	s.countInvocation(m.Name, hook.Path, phase)

	value, ok, err := document.Get(doc, hook.Path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	out, err := WalkAt(value, hook.Rule, []string{hook.Path}, s.leafFunc(m, phase))
	if setErr := document.Set(doc, hook.Path, out); setErr != nil {
		return setErr
	}

	return err
}

func (s *Service) leafFunc(m *schema.Model, phase Phase) LeafFunc {
	return func(path []string, rule *schema.Rule, v any) (any, error) {
		if phase == PhaseRead && rule != nil && rule.DateCipher {
			out, err := s.dates.Cast(v)
			if err != nil && s.recorder != nil {
				s.recorder.RecordCastFailure(m.Name)
			}
			return out, err
		}
		out, state, err := s.prim.ToggleState(v)
		if err == nil && state != crypt.Unchanged && s.recorder != nil {
			s.recorder.RecordToggle(m.Name, state.String())
		}
		return out, err
	}
}

func (s *Service) countInvocation(model, path string, phase Phase) {
	byPath, _ := s.parity.LoadOrStore(model, &sync.Map{})
	c, _ := byPath.(*sync.Map).LoadOrStore(path, &parityCounter{})
	counter := c.(*parityCounter)
	if phase == PhaseSave {
		atomic.AddUint64(&counter.saves, 1)
	} else {
		atomic.AddUint64(&counter.reads, 1)
	}
	if s.recorder != nil {
		s.recorder.RecordHook(model, path, string(phase))
	}
}

// Parity returns the per-hook invocation counts observed for a model
func (s *Service) Parity(model string) []types.HookParity {
	byPath, ok := s.parity.Load(model)
	if !ok {
		return nil
	}
	var out []types.HookParity
	byPath.(*sync.Map).Range(func(k, v any) bool {
		c := v.(*parityCounter)
		out = append(out, types.HookParity{
			Path:  k.(string),
			Saves: atomic.LoadUint64(&c.saves),
			Reads: atomic.LoadUint64(&c.reads),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Service) track(phase Phase, err error) {
	now := time.Now().UTC()
	if phase == PhaseSave {
		atomic.AddUint64(&s.stats.TotalSaves, 1)
	} else {
		atomic.AddUint64(&s.stats.TotalReads, 1)
	}
	if err != nil {
		atomic.AddUint64(&s.stats.TotalFailures, 1)
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.LastOpTime = now
	if phase == PhaseSave {
		s.stats.LastSaveTime = now
	} else {
		s.stats.LastReadTime = now
	}
	if err != nil {
		s.stats.LastFailureTime = now
	}
}

// GetStats returns field transform statistics
func (s *Service) GetStats(ctx context.Context) (*types.FieldStats, error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return &types.FieldStats{
		TotalSaves:      atomic.LoadUint64(&s.stats.TotalSaves),
		TotalReads:      atomic.LoadUint64(&s.stats.TotalReads),
		TotalFailures:   atomic.LoadUint64(&s.stats.TotalFailures),
		LastSaveTime:    s.stats.LastSaveTime,
		LastReadTime:    s.stats.LastReadTime,
		LastOpTime:      s.stats.LastOpTime,
		LastFailureTime: s.stats.LastFailureTime,
	}, nil
}

// Stats returns the crypt and field statistics together
func (s *Service) Stats(ctx context.Context) types.Stats {
	fs, _ := s.GetStats(ctx)
	return types.Stats{CryptStats: s.prim.Stats(), FieldStats: *fs}
}

func (s *Service) auditApply(ctx context.Context, m *schema.Model, phase Phase, err error) {
	if s.logger == nil {
		return
	}
	eventType := audit.EventTypeFieldSave
	if phase == PhaseRead {
		eventType = audit.EventTypeFieldRead
	}
	event := audit.NewAuditEvent(eventType, audit.OperationToggle, m.Name)
	audit.FromContext(ctx, event)
	event.Metadata["hooks"] = len(m.Hooks)
	if err != nil {
		event.Status = audit.StatusFailed
		event.Context[string(audit.KeyError)] = err.Error()
	}
	if logErr := s.logger.LogEvent(ctx, event); logErr != nil {
		log.Warn().Err(logErr).Str("model", m.Name).Msg("Failed to log audit event")
	}
}
