package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			if err := Initialize(tt.jsonOutput); err != nil {
				t.Fatalf("Initialize() error = %v", err)
			}
			if Logger == nil {
				t.Fatal("Initialize() did not set global Logger")
			}
			if JSONOutput != tt.jsonOutput {
				t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
			}

			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{VerbosityUser, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
		{7, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(LevelName(tt.verbosity), func(t *testing.T) {
			if got := VerbosityToLevel(tt.verbosity); got != tt.want {
				t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
			}
		})
	}
}

func TestIsProductionEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    bool
	}{
		{"AECOA_ENV=production", map[string]string{"AECOA_ENV": "production"}, true},
		{"AECOA_ENV=Prod mixed case", map[string]string{"AECOA_ENV": "Prod"}, true},
		{"LOG_LEVEL=warn lowercase", map[string]string{"LOG_LEVEL": "warn"}, true},
		{"LOG_LEVEL=ERROR", map[string]string{"LOG_LEVEL": "ERROR"}, true},
		{"no env vars", map[string]string{}, false},
		{"AECOA_ENV=development", map[string]string{"AECOA_ENV": "development"}, false},
		{"LOG_LEVEL=DEBUG", map[string]string{"LOG_LEVEL": "DEBUG"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AECOA_ENV", "")
			t.Setenv("LOG_LEVEL", "")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			if got := isProductionEnvironment(); got != tt.want {
				t.Errorf("isProductionEnvironment() = %v, want %v (env vars: %v)", got, tt.want, tt.envVars)
			}
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Logger = zap.New(core).Sugar()
	defer func() { Logger = zap.NewNop().Sugar() }()

	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithComponent(ctx, "gate")

	LoggerFromContext(ctx).Infow("Gate approved", FieldStage, "INPUT")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields[FieldRunID] != "run-42" {
		t.Errorf("run_id = %v, want run-42", fields[FieldRunID])
	}
	if fields[FieldComponent] != "gate" {
		t.Errorf("component = %v, want gate", fields[FieldComponent])
	}
	if fields[FieldStage] != "INPUT" {
		t.Errorf("stage = %v, want INPUT", fields[FieldStage])
	}
}

func TestLoggingFunctionsWithNilLogger(t *testing.T) {
	Logger = nil
	defer func() { Logger = zap.NewNop().Sugar() }()

	// Must not panic
	Infow("test", "key", "value")
	Errorw("test", "key", "value")
	Warnw("test", "key", "value")
	Debugw("test", "key", "value")
	Cleanup()
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := zap.NewNop().Sugar()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
}
