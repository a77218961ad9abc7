// Package recovery implements failure classification and retry with
// category-specific recovery strategies and exponential backoff.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Category classifies a failure by its origin.
type Category string

const (
	CategoryNetwork       Category = "network"
	CategoryModel         Category = "model"
	CategoryValidation    Category = "validation"
	CategoryParsing       Category = "parsing"
	CategoryConfiguration Category = "configuration"
	CategoryWorkflow      Category = "workflow"
	CategoryResource      Category = "resource"
	CategoryUnknown       Category = "unknown"
)

// Severity grades a failure. Critical failures are never retried.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorInfo is the immutable record of one classified failure.
type ErrorInfo struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Kind      string         `json:"exception_type"`
	Context   map[string]any `json:"context,omitempty"`

	RecoveryAttempted  bool `json:"recovery_attempted"`
	RecoverySuccessful bool `json:"recovery_successful"`
	RetryCount         int  `json:"retry_count"`
	MaxRetries         int  `json:"max_retries"`
}

// Strategy is category-specific logic attempted before a retry. It reports
// whether retrying is worthwhile; a false return stops further attempts for
// the current call.
type Strategy func(ctx context.Context, info ErrorInfo) bool

// Operation is the unit of work WithRecovery protects.
type Operation func(ctx context.Context) (any, error)

// ExhaustedError is returned when all attempts failed. It embeds the last
// classified failure and wraps the underlying error, so errors.Is/As see
// through it to cancellation and typed failures.
type ExhaustedError struct {
	Attempts int
	Last     ErrorInfo
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts, last error: %s", e.Attempts, e.Last.Message)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// fatalError marks a failure as a non-recoverable system-level condition.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps an error so classification grades it critical and no retry
// is attempted.
func Fatal(err error) error {
	return &fatalError{err: err}
}

// classification is ordered: the first keyword group that matches wins.
var classification = []struct {
	keywords []string
	category Category
	severity Severity
}{
	{[]string{"connection", "timeout", "network", "http"}, CategoryNetwork, SeverityHigh},
	{[]string{"model", "api key", "rate limit", "quota"}, CategoryModel, SeverityHigh},
	{[]string{"validation", "invalid", "missing"}, CategoryValidation, SeverityMedium},
	{[]string{"json", "parse", "decode", "format"}, CategoryParsing, SeverityMedium},
	{[]string{"config", "setting", "parameter"}, CategoryConfiguration, SeverityHigh},
	{[]string{"memory", "disk", "file not found"}, CategoryResource, SeverityHigh},
	{[]string{"workflow", "step", "agent"}, CategoryWorkflow, SeverityMedium},
}

// System classifies failures and retries operations with per-category
// recovery strategies. Strategies are fixed at construction; there is no
// runtime mutation of the dispatch table.
type System struct {
	maxRetries int
	retryDelay time.Duration
	strategies map[Category]Strategy

	// mu guards history: parallel steps may run recoveries concurrently.
	mu      sync.Mutex
	history []ErrorInfo
}

// Option configures a System.
type Option func(*System)

// WithMaxRetries sets the default number of additional attempts.
func WithMaxRetries(n int) Option {
	return func(s *System) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *System) {
		s.retryDelay = d
	}
}

// WithStrategy replaces the recovery strategy for a category.
func WithStrategy(c Category, strategy Strategy) Option {
	return func(s *System) {
		s.strategies[c] = strategy
	}
}

// NewSystem creates a recovery system with default strategies: network and
// rate-limited model failures retry, everything else opts out.
func NewSystem(opts ...Option) *System {
	s := &System{
		maxRetries: 3,
		retryDelay: time.Second,
		strategies: map[Category]Strategy{
			CategoryNetwork: func(ctx context.Context, info ErrorInfo) bool {
				return true
			},
			CategoryModel: func(ctx context.Context, info ErrorInfo) bool {
				return strings.Contains(strings.ToLower(info.Message), "rate limit")
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify derives category and severity for an error. The keyword table
// inspects the lowercased message; severity is critical for cancellation
// and Fatal-wrapped errors regardless of category.
func (s *System) Classify(err error, errCtx map[string]any) ErrorInfo {
	msg := strings.ToLower(err.Error())

	category := CategoryUnknown
	severity := SeverityMedium
	for _, rule := range classification {
		if containsAny(msg, rule.keywords) {
			category = rule.category
			severity = rule.severity
			break
		}
	}

	var fatal *fatalError
	if errors.Is(err, context.Canceled) || errors.As(err, &fatal) {
		severity = SeverityCritical
	}

	return ErrorInfo{
		Timestamp:  time.Now(),
		Category:   category,
		Severity:   severity,
		Message:    err.Error(),
		Kind:       fmt.Sprintf("%T", err),
		Context:    errCtx,
		MaxRetries: s.maxRetries,
	}
}

// CallOption tweaks a single WithRecovery call.
type CallOption func(*callConfig)

type callConfig struct {
	maxRetries int
}

// MaxRetries overrides the system default for one call. Non-positive
// values keep the default.
func MaxRetries(n int) CallOption {
	return func(c *callConfig) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithRecovery invokes op, classifying failures and retrying with
// exponential backoff. Before each retry the category strategy runs; a
// strategy opting out stops further attempts for this call. Critical
// failures are never retried. All classified failures are appended to the
// history. On exhaustion the last classified failure is returned inside an
// ExhaustedError.
func (s *System) WithRecovery(ctx context.Context, op Operation, errCtx map[string]any, opts ...CallOption) (any, error) {
	cfg := callConfig{maxRetries: s.maxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}

	var last ErrorInfo
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		attempts++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		info := s.Classify(err, errCtx)
		info.RetryCount = attempt
		info.MaxRetries = cfg.maxRetries

		if info.Severity == SeverityCritical || attempt >= cfg.maxRetries {
			s.record(info)
			last, lastErr = info, err
			break
		}

		info.RecoveryAttempted = true
		retryWorthwhile := true
		if strategy, ok := s.strategies[info.Category]; ok {
			retryWorthwhile = strategy(ctx, info)
		}
		info.RecoverySuccessful = retryWorthwhile
		s.record(info)
		last, lastErr = info, err

		if !retryWorthwhile {
			// Strategy opted out: stop burning attempts on this call.
			break
		}

		if err := s.backoff(ctx, attempt); err != nil {
			break
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, Last: last, Err: lastErr}
}

// backoff sleeps retryDelay * 2^attempt, honoring cancellation.
func (s *System) backoff(ctx context.Context, attempt int) error {
	delay := s.retryDelay * (1 << attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *System) record(info ErrorInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, info)
}

// History returns a copy of the recorded failures.
func (s *System) History() []ErrorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorInfo, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory discards the recorded failures.
func (s *System) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Summary aggregates the recorded failures: totals, recovery rate and
// breakdowns by category and severity, plus the last 10 entries.
type Summary struct {
	TotalErrors          int              `json:"total_errors"`
	RecoveryAttempts     int              `json:"recovery_attempts"`
	SuccessfulRecoveries int              `json:"successful_recoveries"`
	RecoveryRate         float64          `json:"recovery_rate"`
	ByCategory           map[Category]int `json:"by_category,omitempty"`
	BySeverity           map[Severity]int `json:"by_severity,omitempty"`
	Recent               []ErrorInfo      `json:"error_history,omitempty"`
}

// Summarize computes the summary over the full history.
func (s *System) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.history)
	if total == 0 {
		return Summary{}
	}

	summary := Summary{
		TotalErrors: total,
		ByCategory:  make(map[Category]int),
		BySeverity:  make(map[Severity]int),
	}
	for _, info := range s.history {
		summary.ByCategory[info.Category]++
		summary.BySeverity[info.Severity]++
		if info.RecoveryAttempted {
			summary.RecoveryAttempts++
		}
		if info.RecoverySuccessful {
			summary.SuccessfulRecoveries++
		}
	}
	if summary.RecoveryAttempts > 0 {
		summary.RecoveryRate = float64(summary.SuccessfulRecoveries) / float64(summary.RecoveryAttempts)
	}

	recent := s.history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	summary.Recent = make([]ErrorInfo, len(recent))
	copy(summary.Recent, recent)

	return summary
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
