package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	aggregate "energyiq/internal/analytics/domain/aggregate"
	insights "energyiq/internal/insights/domain"
)

// HourWindow is a half-open [start_hour, end_hour) range of hours of day.
type HourWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// TariffConfig defines the rates used by aggregation and the query layer.
type TariffConfig struct {
	PeakRate         float64 `yaml:"peak_rate"`
	OffPeakRate      float64 `yaml:"off_peak_rate"`
	ElectricityPrice float64 `yaml:"electricity_price"`
	GridTariff       float64 `yaml:"grid_tariff"`
	TaxesAndFees     float64 `yaml:"taxes_and_fees"`
	Currency         string  `yaml:"currency"`
}

// InsightRulesConfig defines insight thresholds and relevancy weights.
type InsightRulesConfig struct {
	PeakWeight      float64 `yaml:"peak_weight"`
	EnergyThreshold float64 `yaml:"energy_threshold_kwh"`
	EnergyWeight    float64 `yaml:"energy_weight"`
	CostThreshold   float64 `yaml:"cost_threshold"`
	CostWeight      float64 `yaml:"cost_weight"`
}

// ScheduleConfig defines job cron specs and per-run timeouts.
type ScheduleConfig struct {
	Aggregator        string        `yaml:"aggregator"`
	Insights          string        `yaml:"insights"`
	AggregatorTimeout time.Duration `yaml:"aggregator_timeout"`
	InsightsTimeout   time.Duration `yaml:"insights_timeout"`
}

// Pipeline is the immutable configuration injected into the aggregator,
// the insight generator and the stats service.
type Pipeline struct {
	Timezone        string             `yaml:"timezone"`
	AggregationPeak HourWindow         `yaml:"aggregation_peak"`
	StatsPeak       HourWindow         `yaml:"stats_peak"`
	Tariff          TariffConfig       `yaml:"tariff"`
	InsightRules    InsightRulesConfig `yaml:"insight_rules"`
	InsightLimit    int                `yaml:"insight_limit"`
	Schedule        ScheduleConfig     `yaml:"schedule"`

	location *time.Location
}

// DefaultPipeline returns the built-in pipeline settings.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Timezone:        "UTC",
		AggregationPeak: HourWindow{StartHour: 18, EndHour: 23},
		StatsPeak:       HourWindow{StartHour: 7, EndHour: 19},
		Tariff: TariffConfig{
			PeakRate:    0.20,
			OffPeakRate: 0.10,
			Currency:    "USD",
		},
		InsightRules: InsightRulesConfig{
			PeakWeight:      10,
			EnergyThreshold: 1000,
			EnergyWeight:    5,
			CostThreshold:   500,
			CostWeight:      2,
		},
		InsightLimit: 3,
		Schedule: ScheduleConfig{
			Aggregator:        "*/15 * * * *",
			Insights:          "0 0 * * *",
			AggregatorTimeout: 5 * time.Minute,
			InsightsTimeout:   10 * time.Minute,
		},
	}
}

// LoadPipeline loads pipeline config from defaults, an optional YAML file
// named by PIPELINE_CONFIG and environment overrides, in that order.
func LoadPipeline() (Pipeline, error) {
	cfg := DefaultPipeline()

	if path := os.Getenv("PIPELINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("pipeline config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("pipeline config: %w", err)
		}
	}

	cfg.Timezone = getenvDefault("TIMEZONE", cfg.Timezone)
	cfg.Tariff.PeakRate = getenvFloatDefault("PEAK_RATE", cfg.Tariff.PeakRate)
	cfg.Tariff.OffPeakRate = getenvFloatDefault("OFF_PEAK_RATE", cfg.Tariff.OffPeakRate)
	cfg.Tariff.ElectricityPrice = getenvFloatDefault("ELECTRICITY_PRICE", cfg.Tariff.ElectricityPrice)
	cfg.Tariff.GridTariff = getenvFloatDefault("GRID_TARIFF", cfg.Tariff.GridTariff)
	cfg.Tariff.TaxesAndFees = getenvFloatDefault("TAXES_AND_FEES", cfg.Tariff.TaxesAndFees)
	cfg.Schedule.Aggregator = getenvDefault("AGGREGATOR_SCHEDULE", cfg.Schedule.Aggregator)
	cfg.Schedule.Insights = getenvDefault("INSIGHTS_SCHEDULE", cfg.Schedule.Insights)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the config and resolves the timezone.
func (c *Pipeline) Validate() error {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("pipeline config: timezone: %w", err)
	}
	c.location = loc

	if err := validateWindow("aggregation_peak", c.AggregationPeak); err != nil {
		return err
	}
	if err := validateWindow("stats_peak", c.StatsPeak); err != nil {
		return err
	}
	if c.Tariff.PeakRate < 0 || c.Tariff.OffPeakRate < 0 {
		return errors.New("pipeline config: negative tariff rate")
	}
	if c.Tariff.ElectricityPrice < 0 || c.Tariff.GridTariff < 0 || c.Tariff.TaxesAndFees < 0 {
		return errors.New("pipeline config: negative unit price component")
	}
	if c.InsightLimit <= 0 {
		c.InsightLimit = 3
	}
	if c.Schedule.Aggregator == "" || c.Schedule.Insights == "" {
		return errors.New("pipeline config: schedule required")
	}
	if c.Schedule.AggregatorTimeout <= 0 {
		c.Schedule.AggregatorTimeout = 5 * time.Minute
	}
	if c.Schedule.InsightsTimeout <= 0 {
		c.Schedule.InsightsTimeout = 10 * time.Minute
	}
	return nil
}

// Location returns the resolved calendar location, UTC when unresolved.
func (c Pipeline) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// AggregationPolicy builds the aggregator's peak window and tariff.
func (c Pipeline) AggregationPolicy() aggregate.Policy {
	return aggregate.Policy{
		PeakWindow:  aggregate.HourWindow{Start: c.AggregationPeak.StartHour, End: c.AggregationPeak.EndHour},
		PeakRate:    c.Tariff.PeakRate,
		OffPeakRate: c.Tariff.OffPeakRate,
		Location:    c.Location(),
	}
}

// StatsPeakWindow returns the daytime peak window used by hourly queries.
func (c Pipeline) StatsPeakWindow() aggregate.HourWindow {
	return aggregate.HourWindow{Start: c.StatsPeak.StartHour, End: c.StatsPeak.EndHour}
}

// UnitPrice is the all-in price per kWh used by cost queries and projections.
func (c Pipeline) UnitPrice() float64 {
	return c.Tariff.ElectricityPrice + c.Tariff.GridTariff + c.Tariff.TaxesAndFees
}

// Rules builds the insight rule set.
func (c Pipeline) Rules() insights.RuleSet {
	return insights.RuleSet{
		PeakWeight:      c.InsightRules.PeakWeight,
		EnergyThreshold: c.InsightRules.EnergyThreshold,
		EnergyWeight:    c.InsightRules.EnergyWeight,
		CostThreshold:   c.InsightRules.CostThreshold,
		CostWeight:      c.InsightRules.CostWeight,
	}
}

func validateWindow(name string, w HourWindow) error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 1 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return fmt.Errorf("pipeline config: invalid %s window [%d,%d)", name, w.StartHour, w.EndHour)
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
