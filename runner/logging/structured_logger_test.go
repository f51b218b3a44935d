package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/logger"
)

func newTestLogger(t *testing.T) (*StructuredLogger, *bytes.Buffer) {
	registry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(registry)
	buf := &bytes.Buffer{}
	return NewStructuredLogger(logFactory, buf), buf
}

func TestStructuredLoggerBlocks(t *testing.T) {
	log, buf := newTestLogger(t)

	log.WriteLine("starting")
	jobLog := log.Wrap("test", "Running job test...")
	jobLog.WriteLine("hello")
	stepLog := jobLog.Wrap("lint", "Running step lint...")
	stepLog.WriteError("flake8 found problems")
	require.Equal(t, jobLog, stepLog.Unwrap())

	expected := "starting\n" +
		"Running job test...\n" +
		"[test] hello\n" +
		"[test] Running step lint...\n" +
		"[test/lint] ERROR: flake8 found problems\n"
	require.Equal(t, expected, buf.String())
}

func TestLineWriterSplitsLines(t *testing.T) {
	log, buf := newTestLogger(t)
	block := log.Wrap("job", "start")
	buf.Reset()

	w := block.LineWriter()
	_, err := w.Write([]byte("first line\nsecond "))
	require.NoError(t, err)
	_, err = w.Write([]byte("line\ntrailing"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	expected := "[job] first line\n" +
		"[job] second line\n" +
		"[job] trailing\n"
	require.Equal(t, expected, buf.String())
}
