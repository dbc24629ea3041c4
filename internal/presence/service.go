package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"logbook/internal/ledger"
	"logbook/internal/registry"
	"logbook/internal/token"
)

// Scan failure kinds. Each maps to a distinct caller-facing message; none
// are presented generically.
var (
	// ErrInvalidFormat: the scanned string does not decode. No ledger
	// interaction has happened.
	ErrInvalidFormat = errors.New("invalid token format")

	// ErrUnknownIdentity: the token decoded but no registered identity
	// matches its name and external id.
	ErrUnknownIdentity = errors.New("identity not registered")
)

// LedgerError wraps a ledger mutation that failed against a row the state
// machine expected to be present.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string { return fmt.Sprintf("ledger %s: %v", e.Op, e.Err) }
func (e *LedgerError) Unwrap() error { return e.Err }

// Outcome of a resolved scan.
const (
	OutcomeArrival   = "arrival"
	OutcomeDeparture = "departure"
)

// ScanResult reports what one scan did. Duration and DepartedAt are set for
// departures only.
type ScanResult struct {
	Outcome    string            `json:"outcome"`
	Identity   registry.Identity `json:"identity"`
	VisitID    int64             `json:"visit_id"`
	ArrivedAt  time.Time         `json:"arrived_at"`
	DepartedAt *time.Time        `json:"departed_at,omitempty"`
	Duration   string            `json:"duration,omitempty"`
}

// identityResolver resolves decoded tokens against the registry.
type identityResolver interface {
	FindByToken(ctx context.Context, displayName, externalID string) (*registry.Identity, error)
}

// visitLedger is the slice of the ledger the state machine drives.
type visitLedger interface {
	FindOpen(ctx context.Context, identityID int64) (*ledger.Visit, error)
	Open(ctx context.Context, identityID int64, nameSnapshot, affiliationSnapshot string, arrivedAt time.Time) (int64, error)
	Close(ctx context.Context, visitID int64, departedAt time.Time) (ledger.Visit, error)
}

// txRunner gives each scan a single transactional boundary.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service is the presence state machine: one call per scan event.
type Service struct {
	db       txRunner
	registry identityResolver
	ledger   visitLedger
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the state machine.
func NewService(db txRunner, reg identityResolver, led visitLedger, metrics *Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		registry: reg,
		ledger:   led,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Scan processes one raw token string. Whether it records an arrival or a
// departure is purely a function of ledger state at lookup time; nothing in
// the token decides it and no cooldown applies. Resolution and the ledger
// mutation share one transaction so a partial failure is never observable
// by the next scan.
func (s *Service) Scan(ctx context.Context, raw string) (ScanResult, error) {
	start := s.now()
	result, err := s.scan(ctx, raw)
	s.metrics.ObserveLatency(s.now().Sub(start))

	switch {
	case err == nil:
		s.metrics.IncrementOutcome(result.Outcome)
	case errors.Is(err, ErrInvalidFormat):
		s.metrics.IncrementOutcome("invalid_format")
	case errors.Is(err, ErrUnknownIdentity):
		s.metrics.IncrementOutcome("unknown_identity")
	default:
		var lerr *LedgerError
		if errors.As(err, &lerr) {
			s.metrics.IncrementOutcome("ledger_error")
		} else {
			s.metrics.IncrementOutcome("persistence_error")
		}
	}
	return result, err
}

func (s *Service) scan(ctx context.Context, raw string) (ScanResult, error) {
	data, err := token.Decode(raw)
	if err != nil {
		return ScanResult{}, ErrInvalidFormat
	}

	var result ScanResult
	err = s.db.WithinTx(ctx, func(ctx context.Context) error {
		// The stored identity is the source of truth; the decoded category
		// and affiliation are discarded once the lookup succeeds.
		identity, err := s.registry.FindByToken(ctx, data.DisplayName, data.ExternalID)
		if err != nil {
			return fmt.Errorf("resolve identity: %w", err)
		}
		if identity == nil {
			return ErrUnknownIdentity
		}

		open, err := s.ledger.FindOpen(ctx, identity.ID)
		if err != nil {
			return fmt.Errorf("find open visit: %w", err)
		}

		now := s.now()
		if open != nil {
			closed, err := s.ledger.Close(ctx, open.ID, now)
			if err != nil {
				return &LedgerError{Op: "close", Err: err}
			}
			result = ScanResult{
				Outcome:    OutcomeDeparture,
				Identity:   *identity,
				VisitID:    closed.ID,
				ArrivedAt:  closed.ArrivedAt,
				DepartedAt: closed.DepartedAt,
			}
			if closed.Duration != nil {
				result.Duration = *closed.Duration
			}
			return nil
		}

		visitID, err := s.ledger.Open(ctx, identity.ID, identity.DisplayName, identity.Affiliation, now)
		if err != nil {
			return &LedgerError{Op: "open", Err: err}
		}
		result = ScanResult{
			Outcome:   OutcomeArrival,
			Identity:  *identity,
			VisitID:   visitID,
			ArrivedAt: now,
		}
		return nil
	})
	if err != nil {
		return ScanResult{}, err
	}

	s.logger.Info("scan resolved",
		zap.String("outcome", result.Outcome),
		zap.Int64("identity_id", result.Identity.ID),
		zap.Int64("visit_id", result.VisitID))
	return result, nil
}
