package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"multi-org-integration-platform/internal/logger"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypePermanent  ErrorType = "permanent"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeAuth       ErrorType = "authentication"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCircuit    ErrorType = "circuit_breaker"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeCancelled  ErrorType = "cancelled"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// ErrorSeverity represents error severity levels
type ErrorSeverity string

const (
	SeverityLow    ErrorSeverity = "low"
	SeverityMedium ErrorSeverity = "medium"
	SeverityHigh   ErrorSeverity = "high"
)

// ErrCircuitOpen is returned while a circuit breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// HTTPStatusError reports a non-success response from an organisation instance
type HTTPStatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s returned HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s returned HTTP %d", e.Method, e.URL, e.StatusCode)
}

// ClassifiedError represents an error with classification information
type ClassifiedError struct {
	OriginalError error
	Type          ErrorType
	Severity      ErrorSeverity
	StatusCode    int
	Message       string
	Retryable     bool
	Operation     string
	Timestamp     time.Time
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Severity, e.Message, e.OriginalError)
}

func (e *ClassifiedError) Unwrap() error { return e.OriginalError }

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerOpen     CircuitBreakerState = "open"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
)

// CircuitBreaker stops calling an instance after repeated failures and probes it
// again once resetTimeout has passed
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	state         CircuitBreakerState
	failures      int
	nextAttempt   time.Time
	mutex         sync.Mutex
	onStateChange func(name string, from, to CircuitBreakerState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker is open. Only errors for which countsAsFailure
// returns true trip the breaker.
func (cb *CircuitBreaker) Execute(fn func() error, countsAsFailure func(error) bool) error {
	if !cb.allow() {
		return &ClassifiedError{
			OriginalError: ErrCircuitOpen,
			Type:          ErrorTypeCircuit,
			Severity:      SeverityHigh,
			StatusCode:    http.StatusServiceUnavailable,
			Message:       fmt.Sprintf("circuit breaker '%s' is open", cb.name),
			Timestamp:     time.Now(),
		}
	}

	err := fn()
	if err != nil && countsAsFailure(err) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case CircuitBreakerOpen:
		if time.Now().Before(cb.nextAttempt) {
			return false
		}
		cb.setState(CircuitBreakerHalfOpen)
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	if cb.state == CircuitBreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.setState(CircuitBreakerOpen)
		cb.nextAttempt = time.Now().Add(cb.resetTimeout)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.setState(CircuitBreakerClosed)
}

// setState must be called with the mutex held
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	oldState := cb.state
	cb.state = newState

	if cb.onStateChange != nil && oldState != newState {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryPolicy returns a default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// ErrorHandler classifies outbound failures and applies retry and circuit breaking
type ErrorHandler struct {
	logger          *logger.Logger
	circuitBreakers map[string]*CircuitBreaker
	retryPolicy     *RetryPolicy
	maxFailures     int
	resetTimeout    time.Duration
	mutex           sync.RWMutex
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:          logger,
		circuitBreakers: make(map[string]*CircuitBreaker),
		retryPolicy:     DefaultRetryPolicy(),
		maxFailures:     5,
		resetTimeout:    30 * time.Second,
	}
}

// ClassifyError classifies an error for retry decisions
func (eh *ErrorHandler) ClassifyError(err error, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	classified = &ClassifiedError{
		OriginalError: err,
		Operation:     operation,
		Timestamp:     time.Now(),
	}

	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		classified.Type, classified.Message = ErrorTypeCancelled, "operation cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		classified.Type, classified.Message, classified.Retryable = ErrorTypeTimeout, "request timeout", true
		classified.StatusCode = http.StatusGatewayTimeout
	case errors.As(err, &statusErr):
		eh.classifyByHTTPStatus(classified, statusErr.StatusCode)
	case errors.As(err, &netErr) && netErr.Timeout():
		classified.Type, classified.Message, classified.Retryable = ErrorTypeTimeout, "request timeout", true
		classified.StatusCode = http.StatusGatewayTimeout
	default:
		eh.classifyByContent(classified)
	}

	eh.classifyBySeverity(classified)
	return classified
}

func (eh *ErrorHandler) classifyByContent(err *ClassifiedError) {
	msg := strings.ToLower(err.OriginalError.Error())

	switch {
	case containsAny(msg, "connection refused", "connection reset", "no such host", "network is unreachable", "eof"):
		err.Type = ErrorTypeConnection
		err.StatusCode = http.StatusBadGateway
		err.Retryable = true
		err.Message = "connection error"
	case containsAny(msg, "timeout", "deadline exceeded"):
		err.Type = ErrorTypeTimeout
		err.StatusCode = http.StatusGatewayTimeout
		err.Retryable = true
		err.Message = "request timeout"
	default:
		err.Type = ErrorTypeUnknown
		err.StatusCode = http.StatusInternalServerError
		err.Message = "unexpected error"
	}
}

func (eh *ErrorHandler) classifyByHTTPStatus(err *ClassifiedError, statusCode int) {
	err.StatusCode = statusCode

	switch {
	case statusCode >= 500:
		err.Type, err.Retryable = ErrorTypeTransient, true
		err.Message = fmt.Sprintf("server error (HTTP %d)", statusCode)
	case statusCode == http.StatusTooManyRequests:
		err.Type, err.Retryable = ErrorTypeRateLimit, true
		err.Message = "rate limit exceeded"
	case statusCode == http.StatusRequestTimeout:
		err.Type, err.Retryable = ErrorTypeTimeout, true
		err.Message = "request timeout"
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		err.Type = ErrorTypeAuth
		err.Message = "authentication rejected"
	case statusCode >= 400:
		err.Type = ErrorTypeValidation
		err.Message = fmt.Sprintf("client error (HTTP %d)", statusCode)
	default:
		err.Type = ErrorTypePermanent
		err.Message = fmt.Sprintf("unexpected status (HTTP %d)", statusCode)
	}
}

func (eh *ErrorHandler) classifyBySeverity(err *ClassifiedError) {
	switch err.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeConnection, ErrorTypeCancelled:
		err.Severity = SeverityLow
	case ErrorTypeAuth, ErrorTypeValidation:
		err.Severity = SeverityMedium
	default:
		err.Severity = SeverityHigh
	}
}

// IsUnavailable reports whether err means the remote system could not serve requests
func (eh *ErrorHandler) IsUnavailable(err error) bool {
	classified := eh.ClassifyError(err, "")
	if classified == nil {
		return false
	}
	switch classified.Type {
	case ErrorTypeTransient, ErrorTypeTimeout, ErrorTypeConnection, ErrorTypeCircuit, ErrorTypeRateLimit:
		return true
	}
	return false
}

// ExecuteWithRetry executes operation, retrying retryable failures with backoff
func (eh *ErrorHandler) ExecuteWithRetry(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	for attempt := 0; attempt < eh.retryPolicy.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		classified := eh.ClassifyError(err, operationName)
		lastErr = classified

		if !classified.Retryable || attempt == eh.retryPolicy.MaxAttempts-1 {
			break
		}

		delay := eh.calculateDelay(attempt)
		eh.logger.WithError(err).
			WithField("operation", operationName).
			WithField("attempt", attempt+1).
			WithField("delay_ms", delay.Milliseconds()).
			Warn("Operation failed, retrying")

		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// ExecuteWithFullProtection retries operation behind the named circuit breaker.
// Only unavailability failures count against the breaker.
func (eh *ErrorHandler) ExecuteWithFullProtection(ctx context.Context, operation func() error, breakerName string) error {
	breaker := eh.getOrCreateCircuitBreaker(breakerName)

	return breaker.Execute(func() error {
		return eh.ExecuteWithRetry(ctx, operation, breakerName)
	}, eh.IsUnavailable)
}

func (eh *ErrorHandler) calculateDelay(attempt int) time.Duration {
	delay := float64(eh.retryPolicy.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= eh.retryPolicy.BackoffFactor
	}

	if eh.retryPolicy.Jitter {
		jitterFactor := float64(time.Now().UnixNano()%100) / 100.0
		delay += delay * 0.1 * (2*jitterFactor - 1)
	}

	if delay > float64(eh.retryPolicy.MaxDelay) {
		delay = float64(eh.retryPolicy.MaxDelay)
	}
	return time.Duration(delay)
}

func (eh *ErrorHandler) getOrCreateCircuitBreaker(name string) *CircuitBreaker {
	eh.mutex.RLock()
	breaker, exists := eh.circuitBreakers[name]
	eh.mutex.RUnlock()

	if exists {
		return breaker
	}

	eh.mutex.Lock()
	defer eh.mutex.Unlock()

	if breaker, exists := eh.circuitBreakers[name]; exists {
		return breaker
	}

	breaker = NewCircuitBreaker(name, eh.maxFailures, eh.resetTimeout)
	breaker.onStateChange = eh.onCircuitBreakerStateChange
	eh.circuitBreakers[name] = breaker

	return breaker
}

func (eh *ErrorHandler) onCircuitBreakerStateChange(name string, from, to CircuitBreakerState) {
	eh.logger.WithField("breaker_name", name).
		WithField("from_state", string(from)).
		WithField("to_state", string(to)).
		Info("Circuit breaker state changed")
}

// CircuitBreakerStatus returns the state of every circuit breaker
func (eh *ErrorHandler) CircuitBreakerStatus() map[string]CircuitBreakerState {
	eh.mutex.RLock()
	defer eh.mutex.RUnlock()

	status := make(map[string]CircuitBreakerState, len(eh.circuitBreakers))
	for name, breaker := range eh.circuitBreakers {
		status[name] = breaker.State()
	}
	return status
}

// SetRetryPolicy sets a custom retry policy
func (eh *ErrorHandler) SetRetryPolicy(policy *RetryPolicy) {
	eh.retryPolicy = policy
}

// SetCircuitBreakerLimits configures breakers created after the call
func (eh *ErrorHandler) SetCircuitBreakerLimits(maxFailures int, resetTimeout time.Duration) {
	eh.mutex.Lock()
	defer eh.mutex.Unlock()
	eh.maxFailures = maxFailures
	eh.resetTimeout = resetTimeout
}

func containsAny(s string, substrings ...string) bool {
	for _, substring := range substrings {
		if strings.Contains(s, substring) {
			return true
		}
	}
	return false
}
