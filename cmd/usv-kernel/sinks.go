package main

import (
	"io"
	"log/slog"
	"time"

	"usv-kernel/internal/config"
	"usv-kernel/internal/sink"
)

const (
	batchSize     = 200
	batchInterval = time.Second
)

// newWriters sets up the storage writer based on flags and configuration.
// It returns nil when nothing should be stored, and a cleanup function that
// flushes and closes what was opened.
func newWriters(cfg *config.Config, printOnly bool, logFile string, out io.Writer, colorize bool, logger *slog.Logger) (sink.Writer, func(), error) {
	base, err := baseWriters(cfg, printOnly, out, colorize, logger)
	if err != nil {
		return nil, nil, err
	}
	flush := func() {
		if bw, ok := base.(*sink.BatchWriter); ok {
			if err := bw.Flush(); err != nil {
				logger.Error("final flush failed", "error", err)
			}
		}
	}
	if logFile == "" {
		return base, flush, nil
	}

	fw, err := sink.NewFileWriter(logFile, logFile+".state", logFile+".actuator")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		flush()
		if err := fw.Close(); err != nil {
			logger.Error("closing log files", "error", err)
		}
	}
	return sink.NewMultiWriter(base, fw), cleanup, nil
}

// baseWriters chooses GreptimeDB when an endpoint is configured and STDOUT
// otherwise. A nil out disables the STDOUT fallback.
func baseWriters(cfg *config.Config, printOnly bool, out io.Writer, colorize bool, logger *slog.Logger) (sink.Writer, error) {
	if printOnly || cfg.Storage.Endpoint == "" {
		if out == nil {
			return nil, nil
		}
		return sink.NewStdoutWriter(out, colorize), nil
	}
	w, err := sink.NewGreptimeDBWriter(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	return sink.NewBatchWriter(w, batchSize, batchInterval), nil
}

// batchWriters finds the batching writers in w that need a flush loop.
func batchWriters(w sink.Writer) []*sink.BatchWriter {
	switch v := w.(type) {
	case *sink.BatchWriter:
		return []*sink.BatchWriter{v}
	case *sink.MultiWriter:
		var out []*sink.BatchWriter
		for _, inner := range v.Writers() {
			out = append(out, batchWriters(inner)...)
		}
		return out
	}
	return nil
}
