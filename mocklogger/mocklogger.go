// mocklogger/mocklogger.go
package mocklogger

import (
	"errors"

	"github.com/deploymenttheory/go-api-auth-client/logger"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockLogger is a testify mock for logger.Logger. Level bookkeeping is not mocked so that
// code reading GetLogLevel does not need an expectation.
type MockLogger struct {
	mock.Mock
	logLevel logger.LogLevel
}

// NewMockLogger creates a new MockLogger at debug level.
func NewMockLogger() *MockLogger {
	return &MockLogger{logLevel: logger.LogLevelDebug}
}

var _ logger.Logger = (*MockLogger)(nil)

// GetLogLevel returns the level set with SetLevel.
func (m *MockLogger) GetLogLevel() logger.LogLevel {
	return m.logLevel
}

// SetLevel sets the logging level of the MockLogger.
func (m *MockLogger) SetLevel(level logger.LogLevel) {
	m.logLevel = level
}

// With returns the same mock so that expectations cover child loggers too.
func (m *MockLogger) With(fields ...zap.Field) logger.Logger {
	return m
}

// Debug logs a message at the Debug level.
func (m *MockLogger) Debug(msg string, fields ...zap.Field) {
	m.Called(msg, fields)
}

// Info logs a message at the Info level.
func (m *MockLogger) Info(msg string, fields ...zap.Field) {
	m.Called(msg, fields)
}

// Warn logs a message at the Warn level.
func (m *MockLogger) Warn(msg string, fields ...zap.Field) {
	m.Called(msg, fields)
}

// Error logs a message at the Error level and returns it as an error.
func (m *MockLogger) Error(msg string, fields ...zap.Field) error {
	m.Called(msg, fields)
	return errors.New(msg)
}

// Panic logs a message at the Panic level and then panics.
func (m *MockLogger) Panic(msg string, fields ...zap.Field) {
	m.Called(msg, fields)
	panic(msg)
}

// Fatal records the call. It does not exit.
func (m *MockLogger) Fatal(msg string, fields ...zap.Field) {
	m.Called(msg, fields)
}

// AllowAll registers permissive expectations for every level, for tests that only assert
// on a subset of calls.
func (m *MockLogger) AllowAll() *MockLogger {
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Panic", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Maybe()
	}
	return m
}
