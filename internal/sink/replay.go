package sink

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"usv-kernel/internal/telemetry"
)

// ReplayLog replays sensor rows from r to writer. A speed >0 scales the
// recorded gaps between rows; if speed <= 0, no artificial delay is inserted.
func ReplayLog(r io.Reader, writer SensorWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row telemetry.SensorRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.WriteSensor(row); err != nil {
			return n, err
		}
		n++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its sensor rows.
func ReplayLogFile(path string, writer SensorWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
