package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Measurement names in the telemetry bucket.
const (
	measTileRho   = "tile_rho"
	measGatePulse = "gate_pulse"
	measPumpTone  = "pump_tone"
	measDuty      = "duty_cycle"
)

// #region config

// InfluxConfig locates the telemetry bucket.
type InfluxConfig struct {
	URL      string
	Token    string
	Org      string
	Bucket   string
	Lookback time.Duration // query range; must cover the evaluator's freshness window
}

// DefaultInfluxConfig returns local-development defaults.
func DefaultInfluxConfig() InfluxConfig {
	return InfluxConfig{
		URL:      "http://localhost:8086",
		Org:      "casimirbot",
		Bucket:   "hull-telemetry",
		Lookback: 2 * time.Minute,
	}
}

// #endregion config

// #region influx-feed

// InfluxFeed reads tile, pulse, pump, and duty series from an InfluxDB
// bucket.
type InfluxFeed struct {
	client influxdb2.Client
	query  api.QueryAPI
	cfg    InfluxConfig
}

// NewInfluxFeed connects to the bucket described by cfg.
func NewInfluxFeed(cfg InfluxConfig) *InfluxFeed {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultInfluxConfig().Lookback
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxFeed{
		client: client,
		query:  client.QueryAPI(cfg.Org),
		cfg:    cfg,
	}
}

// NewInfluxFeedWithQuery creates a feed with an injected query API.
// Used for testing without a live server.
func NewInfluxFeedWithQuery(q api.QueryAPI, cfg InfluxConfig) *InfluxFeed {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultInfluxConfig().Lookback
	}
	return &InfluxFeed{query: q, cfg: cfg}
}

// Close shuts down the underlying client.
func (f *InfluxFeed) Close() {
	if f.client != nil {
		f.client.Close()
	}
}

// #endregion influx-feed

// #region snapshot

// Snapshot pulls all four sample series over the configured lookback.
func (f *InfluxFeed) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	tiles, err := f.readTiles(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("tile query: %w", err)
	}
	snap.Tiles = tiles

	pulses, err := f.readPulses(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("gate pulse query: %w", err)
	}
	snap.Pulses = pulses

	pumps, err := f.readPumps(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pump tone query: %w", err)
	}
	snap.Pumps = pumps

	duty, err := f.readDuty(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("duty query: %w", err)
	}
	snap.Duty = duty

	return snap, nil
}

func (f *InfluxFeed) readTiles(ctx context.Context) ([]TileSample, error) {
	result, err := f.query.Query(ctx, fluxQuery(f.cfg.Bucket, f.cfg.Lookback, measTileRho))
	if err != nil {
		return nil, err
	}
	var tiles []TileSample
	for result.Next() {
		record := result.Record()
		sample := TileSample{At: record.Time(), Weight: 1.0}
		if src, ok := record.ValueByKey("source").(string); ok {
			sample.Source = src
		}
		if rho, ok := record.ValueByKey("rho").(float64); ok {
			sample.RhoJm3 = rho
		}
		if w, ok := record.ValueByKey("weight").(float64); ok {
			sample.Weight = w
		}
		tiles = append(tiles, sample)
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return tiles, nil
}

func (f *InfluxFeed) readPulses(ctx context.Context) ([]GatePulse, error) {
	result, err := f.query.Query(ctx, fluxQuery(f.cfg.Bucket, f.cfg.Lookback, measGatePulse))
	if err != nil {
		return nil, err
	}
	var pulses []GatePulse
	for result.Next() {
		record := result.Record()
		pulse := GatePulse{At: record.Time()}
		if src, ok := record.ValueByKey("source").(string); ok {
			pulse.Source = src
		}
		if rho, ok := record.ValueByKey("rho").(float64); ok {
			pulse.RhoJm3 = rho
		}
		pulses = append(pulses, pulse)
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return pulses, nil
}

// readPumps groups tone rows sharing a command timestamp into one
// PumpCommand.
func (f *InfluxFeed) readPumps(ctx context.Context) ([]PumpCommand, error) {
	result, err := f.query.Query(ctx, fluxQuery(f.cfg.Bucket, f.cfg.Lookback, measPumpTone))
	if err != nil {
		return nil, err
	}
	var pumps []PumpCommand
	byStamp := map[time.Time]int{}
	for result.Next() {
		record := result.Record()
		at := record.Time()
		idx, ok := byStamp[at]
		if !ok {
			cmd := PumpCommand{At: at}
			if src, okSrc := record.ValueByKey("source").(string); okSrc {
				cmd.Source = src
			}
			if rho0, okRho := record.ValueByKey("rho0").(float64); okRho {
				cmd.Rho0 = rho0
			}
			pumps = append(pumps, cmd)
			idx = len(pumps) - 1
			byStamp[at] = idx
		}
		tone := Tone{}
		if d, okD := record.ValueByKey("depth").(float64); okD {
			tone.DepthJm3 = d
		}
		if fr, okF := record.ValueByKey("freq").(float64); okF {
			tone.FreqHz = fr
		}
		if ph, okP := record.ValueByKey("phase").(float64); okP {
			tone.PhaseRad = ph
		}
		pumps[idx].Tones = append(pumps[idx].Tones, tone)
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return pumps, nil
}

func (f *InfluxFeed) readDuty(ctx context.Context) ([]DutySample, error) {
	result, err := f.query.Query(ctx, fluxQuery(f.cfg.Bucket, f.cfg.Lookback, measDuty))
	if err != nil {
		return nil, err
	}
	var duty []DutySample
	for result.Next() {
		record := result.Record()
		sample := DutySample{At: record.Time()}
		if d, ok := record.ValueByKey("duty").(float64); ok {
			sample.Duty = d
		}
		duty = append(duty, sample)
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return duty, nil
}

// fluxQuery builds the shared measurement query: range over the lookback,
// fields pivoted into columns, oldest first.
func fluxQuery(bucket string, lookback time.Duration, measurement string) string {
	return fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -%ds)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, bucket, int(lookback.Seconds()), measurement)
}

// #endregion snapshot
