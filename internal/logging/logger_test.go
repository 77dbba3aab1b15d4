package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"rag-memory/internal/logging"
)

func TestNewRespectsLevel(t *testing.T) {
	testCases := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warning", false, false, true},
		{"ERROR", false, false, false},
		{"", false, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)
			logger.Debug("debug line")
			logger.Info("info line")
			logger.Warn("warn line")

			out := buf.String()
			gt.Equal(t, strings.Contains(out, "debug line"), tc.wantDebug)
			gt.Equal(t, strings.Contains(out, "info line"), tc.wantInfo)
			gt.Equal(t, strings.Contains(out, "warn line"), tc.wantWarn)
		})
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	_, ok := logging.ParseLevel("verbose")
	gt.False(t, ok)

	buf := &bytes.Buffer{}
	logger := logging.New("verbose", buf)
	logger.Info("still logged")
	gt.S(t, buf.String()).Contains("invalid log level")
	gt.S(t, buf.String()).Contains("still logged")
}

func TestContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("info", buf).With("component", "retrieval")
	ctx := logging.With(context.Background(), logger)

	gt.Equal(t, logging.From(ctx), logger)
	logging.From(ctx).Info("hello")
	gt.S(t, buf.String()).Contains("retrieval")

	gt.Equal(t, logging.From(context.Background()), logging.Default())
}

func TestSetDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	replaced := logging.New("warn", buf)
	logging.SetDefault(replaced)
	logging.From(context.Background()).Warn("from default")
	gt.S(t, buf.String()).Contains("from default")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.log")
	logger, closer, err := logging.NewFile("info", path)
	gt.NoError(t, err)
	logger.Info("to file")
	gt.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	gt.NoError(t, err)
	gt.S(t, string(data)).Contains("to file")
}
