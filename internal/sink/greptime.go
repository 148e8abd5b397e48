package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"usv-kernel/internal/config"
	"usv-kernel/internal/telemetry"
)

// client is the part of the ingester client the writer needs.
type client interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

const writeTimeout = 5 * time.Second

// GreptimeDBWriter writes rows to GreptimeDB via the ingester client. Each
// sensor gets its own table; GreptimeDB creates tables on first write.
type GreptimeDBWriter struct {
	client        client
	sensorPrefix  string
	stateTable    string
	actuatorTable string
	log           *slog.Logger
}

// NewGreptimeDBWriter connects to the configured GreptimeDB instance.
func NewGreptimeDBWriter(st config.Storage, logger *slog.Logger) (*GreptimeDBWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := greptime.NewConfig(st.Endpoint).WithPort(st.Port).WithDatabase(st.Database)
	cli, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return newGreptimeDBWriter(cli, logger), nil
}

func newGreptimeDBWriter(c client, logger *slog.Logger) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:        c,
		sensorPrefix:  telemetry.SensorTablePrefix,
		stateTable:    telemetry.StateTableName,
		actuatorTable: telemetry.ActuatorTableName,
		log:           logger.With("component", "greptimedb"),
	}
}

// WriteSensor inserts a single sensor row.
func (w *GreptimeDBWriter) WriteSensor(row telemetry.SensorRow) error {
	return w.WriteSensors([]telemetry.SensorRow{row})
}

// WriteSensors inserts rows, one table per sensor tag.
func (w *GreptimeDBWriter) WriteSensors(rows []telemetry.SensorRow) error {
	if len(rows) == 0 {
		return nil
	}
	bySensor := make(map[telemetry.SensorKind][]telemetry.SensorRow)
	var order []telemetry.SensorKind
	for _, r := range rows {
		if _, ok := bySensor[r.Sensor]; !ok {
			order = append(order, r.Sensor)
		}
		bySensor[r.Sensor] = append(bySensor[r.Sensor], r)
	}

	tables := make([]*table.Table, 0, len(order))
	for _, k := range order {
		tbl, err := w.sensorTable(bySensor[k])
		if err != nil {
			return err
		}
		tables = append(tables, tbl)
	}
	return w.write(tables, len(rows))
}

func (w *GreptimeDBWriter) sensorTable(rows []telemetry.SensorRow) (*table.Table, error) {
	tbl, err := table.New(w.sensorPrefix + strings.ToLower(string(rows[0].Sensor)))
	if err != nil {
		return nil, err
	}
	names := fieldNames(rows[0])
	if err := tbl.AddTagColumn("vessel_id", types.STRING); err != nil {
		return nil, err
	}
	for _, n := range names {
		if err := tbl.AddFieldColumn(n, types.FLOAT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, r := range rows {
		vals := make([]any, 0, len(names)+2)
		vals = append(vals, r.VesselID)
		for _, n := range names {
			vals = append(vals, r.Values[n])
		}
		vals = append(vals, r.Timestamp)
		if err := tbl.AddRow(vals...); err != nil {
			return nil, fmt.Errorf("%s row: %w", r.Sensor, err)
		}
	}
	return tbl, nil
}

// WriteState inserts a mode transition.
func (w *GreptimeDBWriter) WriteState(row telemetry.StateRow) error {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("vessel_id", types.STRING); err != nil {
		return err
	}
	for _, c := range []string{"from_state", "to_state", "reason"} {
		if err := tbl.AddFieldColumn(c, types.STRING); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.VesselID, row.From.String(), row.To.String(), row.Reason, row.Timestamp); err != nil {
		return err
	}
	return w.write([]*table.Table{tbl}, 1)
}

// WriteActuator inserts the output of one control cycle.
func (w *GreptimeDBWriter) WriteActuator(row telemetry.ActuatorRow) error {
	tbl, err := table.New(w.actuatorTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("vessel_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("state", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("rudder_angle", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("motor_power", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(row.VesselID, row.State.String(), int64(row.RudderAngle), int64(row.MotorPower), row.Timestamp); err != nil {
		return err
	}
	return w.write([]*table.Table{tbl}, 1)
}

func (w *GreptimeDBWriter) write(tables []*table.Table, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tables...); err != nil {
		w.log.Error("write failed", "error", err)
		return err
	}
	w.log.Debug("wrote rows", "rows", rows, "tables", len(tables))
	return nil
}

// fieldNames returns the value names of r in a stable order.
func fieldNames(r telemetry.SensorRow) []string {
	names := make([]string, 0, len(r.Values))
	for n := range r.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
