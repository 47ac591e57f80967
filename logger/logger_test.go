package logger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keeferrourke/rhpman-sim/logger"
)

func TestParseLine(t *testing.T) {
	e := logger.ParseLine("[10.1.0.4] [INFO] became replicating")
	require.Equal(t, "10.1.0.4", e.Node)
	require.Equal(t, "INFO", e.Level)
	require.Equal(t, "became replicating", e.Message)

	e = logger.ParseLine("[ERROR] bind failed")
	require.Equal(t, "system", e.Node)
	require.Equal(t, "ERROR", e.Level)

	e = logger.ParseLine("plain line")
	require.Equal(t, "system", e.Node)
	require.Empty(t, e.Level)
	require.Equal(t, "plain line", e.Message)
}

func TestLogBufferWriter_SplitsLines(t *testing.T) {
	buf := logger.NewLogBuffer(2)
	w := logger.NewLogBufferWriter(buf)

	_, err := w.Write([]byte("[a] [INFO] one\n[b] tw"))
	require.NoError(t, err)
	require.Len(t, buf.GetAll(), 1)

	_, err = w.Write([]byte("o\n[c] [WARN] three\n"))
	require.NoError(t, err)

	all := buf.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, "b", all[0].Node)
	require.Equal(t, "two", all[0].Message)
	require.Equal(t, "c", all[1].Node)
	require.Len(t, buf.ForNode("c"), 1)
	require.Contains(t, logger.FormatLogEntry(all[1]), "WARN")
}

func TestGlobalLoggerFeedsBuffer(t *testing.T) {
	logger.Init("", false)
	buf := logger.NewLogBuffer(10)
	w := logger.NewLogBufferWriter(buf)
	require.NoError(t, logger.AddOutput(w))
	defer func() { _ = logger.RemoveOutput(w) }()

	logger.ForNode("10.0.0.1").Infof("hello %d", 1)
	logger.ForNode("10.0.0.1").Debugf("hidden")
	logger.Named("transport").Info("relay", "hops", 2)

	entries := buf.GetAll()
	require.GreaterOrEqual(t, len(entries), 2)
	require.Equal(t, "10.0.0.1", entries[0].Node)
	require.Equal(t, "hello 1", entries[0].Message)
	require.Contains(t, entries[1].Message, "relay")

	require.NoError(t, logger.RemoveOutput(w))
	logger.Infof("after removal")
	require.Len(t, buf.GetAll(), len(entries))
}
