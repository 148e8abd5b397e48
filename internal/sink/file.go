package sink

import (
	"encoding/json"
	"errors"
	"os"
	"sync"

	"usv-kernel/internal/telemetry"
)

// FileWriter writes rows to JSONL files, one file per row kind.
type FileWriter struct {
	mu          sync.Mutex
	sensorFile  *os.File
	stateFile   *os.File
	actFile     *os.File
	sensorEnc   *json.Encoder
	stateEnc    *json.Encoder
	actuatorEnc *json.Encoder
}

// NewFileWriter creates a FileWriter. statePath or actuatorPath may be empty
// to skip those logs.
func NewFileWriter(sensorPath, statePath, actuatorPath string) (*FileWriter, error) {
	sf, err := os.Create(sensorPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{sensorFile: sf, sensorEnc: json.NewEncoder(sf)}
	if statePath != "" {
		f, err := os.Create(statePath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.stateFile = f
		fw.stateEnc = json.NewEncoder(f)
	}
	if actuatorPath != "" {
		f, err := os.Create(actuatorPath)
		if err != nil {
			fw.Close()
			return nil, err
		}
		fw.actFile = f
		fw.actuatorEnc = json.NewEncoder(f)
	}
	return fw, nil
}

// WriteSensor logs a single sensor row.
func (f *FileWriter) WriteSensor(row telemetry.SensorRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sensorEnc.Encode(row)
}

// WriteSensors logs multiple sensor rows.
func (f *FileWriter) WriteSensors(rows []telemetry.SensorRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.sensorEnc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteState logs a mode transition, if enabled.
func (f *FileWriter) WriteState(row telemetry.StateRow) error {
	if f.stateEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateEnc.Encode(row)
}

// WriteActuator logs actuator output, if enabled.
func (f *FileWriter) WriteActuator(row telemetry.ActuatorRow) error {
	if f.actuatorEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actuatorEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, file := range []*os.File{f.sensorFile, f.stateFile, f.actFile} {
		if file != nil {
			errs = append(errs, file.Close())
		}
	}
	return errors.Join(errs...)
}
