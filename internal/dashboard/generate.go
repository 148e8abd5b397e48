// Package dashboard renders Grafana dashboards for the tables the GreptimeDB
// sink writes.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"usv-kernel/internal/telemetry"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Sensor is one per-sensor panel.
type Sensor struct {
	Kind   telemetry.SensorKind
	Table  string
	Fields []string
}

// Data fills the dashboard templates.
type Data struct {
	VesselID      string
	StateTable    string
	ActuatorTable string
	Sensors       []Sensor
}

// NewData describes the tables written for vesselID, one panel per sensor.
func NewData(vesselID string) Data {
	d := Data{
		VesselID:      vesselID,
		StateTable:    telemetry.StateTableName,
		ActuatorTable: telemetry.ActuatorTableName,
	}
	for _, k := range telemetry.SensorKinds {
		r, ok := telemetry.NewReading(k, make([]float64, telemetry.FieldCount(k)), time.Time{})
		if !ok {
			continue
		}
		var fields []string
		for _, f := range r.Fields() {
			fields = append(fields, f.Name)
		}
		table := telemetry.SensorRow{Sensor: k}.TableName()
		d.Sensors = append(d.Sensors, Sensor{Kind: k, Table: table, Fields: fields})
	}
	return d
}

var funcs = template.FuncMap{
	"env": func(key string) (string, error) {
		v := os.Getenv(key)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", key)
		}
		return v, nil
	},
	"add":  func(a, b int) int { return a + b },
	"mul":  func(a, b int) int { return a * b },
	"half": func(a int) int { return a / 2 },
	"even": func(a int) bool { return a%2 == 0 },
	"join": strings.Join,
}

// Render parses dashboard templates and writes rendered dashboards to outDir.
func Render(outDir string, data Data) error {
	tpls, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, t := range tpls.Templates() {
		if t.Name() == "" {
			continue
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(t.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
