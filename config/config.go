package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de lotbot.
type Config struct {
	Cycle     CycleConfig     `yaml:"cycle"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Score     ScoreConfig     `yaml:"score"`
	Policy    PolicyConfig    `yaml:"policy"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Storage   StorageConfig   `yaml:"storage"`
	Feed      FeedConfig      `yaml:"feed"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// CycleConfig controla el loop.
type CycleConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// LifecycleConfig controla las transiciones automáticas.
type LifecycleConfig struct {
	// Minutos sin ver un lote con tiempo indeterminado antes de darlo por cerrado.
	// Obligatorio: no hay default. 0 desactiva el cierre por staleness.
	StaleAfterMinutes *int `yaml:"stale_after_minutes"`
}

// ScoreConfig son los pesos del edge score.
// Los punteros distinguen "ausente" (default) de un 0 explícito.
type ScoreConfig struct {
	UndervalueWeight *float64          `yaml:"undervalue_weight"` // nil = 40
	VelocityWeight   *float64          `yaml:"velocity_weight"`   // nil = 10
	TimeTiers        []domain.TimeTier `yaml:"time_tiers"`
}

// PolicyConfig son los parámetros económicos de la puja máxima.
type PolicyConfig struct {
	LowThreshold       *float64        `yaml:"low_threshold"`        // nil = 50
	LowProfit          *float64        `yaml:"low_profit"`           // nil = 15
	MidThreshold       *float64        `yaml:"mid_threshold"`        // nil = 200
	MidProfit          *float64        `yaml:"mid_profit"`           // nil = 40
	HighProfitPercent  *float64        `yaml:"high_profit_percent"`  // nil = 0.25
	MarketplaceFeeRate *float64        `yaml:"marketplace_fee_rate"` // nil = 0.13
	TaxRate            *float64        `yaml:"tax_rate"`             // nil = 0.08
	HardBidCeiling     *float64        `yaml:"hard_bid_ceiling"`     // nil = 200
	Logistics          LogisticsConfig `yaml:"logistics"`
}

// LogisticsConfig elige cómo se estima el coste de recoger o enviar un lote.
type LogisticsConfig struct {
	Mode         string  `yaml:"mode"` // pickup | shipping | per_lot, obligatorio
	PickupCost   float64 `yaml:"pickup_cost"`
	ShippingCost float64 `yaml:"shipping_cost"`
}

// AlertsConfig controla qué se notifica y a qué ritmo.
type AlertsConfig struct {
	Threshold *float64 `yaml:"threshold"`  // nil = 50
	Top       *int     `yaml:"top"`        // nil = 5, 0 = sin límite
	PerSecond float64  `yaml:"per_second"` // líneas de alerta por segundo, 0 = sin límite
	Table     bool     `yaml:"table"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// FeedConfig indica de dónde llegan los datos de los colaboradores externos.
// Si URL está definida se usa el servicio HTTP; si no, el directorio de drop.
type FeedConfig struct {
	Dir string `yaml:"dir"`
	URL string `yaml:"url"`
}

// MetricsConfig controla el endpoint /metrics.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = deshabilitado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Interval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Cycle.IntervalSeconds) * time.Second
}

// Validate rechaza configuraciones que darían resultados sin sentido.
// Modo de logística y ventana de staleness no tienen default y son obligatorios.
// Asume una Config salida de Load, con los defaults ya aplicados.
func (c *Config) Validate() error {
	var errs []error

	if c.Lifecycle.StaleAfterMinutes == nil {
		errs = append(errs, errors.New("lifecycle.stale_after_minutes is required"))
	} else if *c.Lifecycle.StaleAfterMinutes < 0 {
		errs = append(errs, errors.New("lifecycle.stale_after_minutes must be >= 0"))
	}

	if _, err := domain.ParseLogisticsMode(c.Policy.Logistics.Mode); err != nil {
		errs = append(errs, fmt.Errorf("policy.logistics.mode: %w", err))
	}
	if c.Policy.Logistics.PickupCost < 0 || c.Policy.Logistics.ShippingCost < 0 {
		errs = append(errs, errors.New("policy.logistics costs must be >= 0"))
	}

	p := c.Policy
	if *p.LowThreshold < 0 || *p.LowProfit < 0 || *p.MidProfit < 0 || *p.HardBidCeiling < 0 {
		errs = append(errs, errors.New("policy thresholds, profits and hard_bid_ceiling must be >= 0"))
	}
	if *p.LowThreshold >= *p.MidThreshold {
		errs = append(errs, fmt.Errorf("policy.low_threshold (%.2f) must be below mid_threshold (%.2f)",
			*p.LowThreshold, *p.MidThreshold))
	}
	if hp := *p.HighProfitPercent; hp < 0 || hp >= 1 {
		errs = append(errs, errors.New("policy.high_profit_percent must be in [0, 1)"))
	}
	if fee := *p.MarketplaceFeeRate; fee < 0 || fee >= 1 {
		errs = append(errs, errors.New("policy.marketplace_fee_rate must be in [0, 1)"))
	}
	if *p.TaxRate < 0 {
		errs = append(errs, errors.New("policy.tax_rate must be >= 0"))
	}

	if *c.Score.UndervalueWeight < 0 || *c.Score.VelocityWeight < 0 {
		errs = append(errs, errors.New("score weights must be >= 0"))
	}
	for i, t := range c.Score.TimeTiers {
		if t.MaxMinutes < 0 {
			errs = append(errs, fmt.Errorf("score.time_tiers[%d].max_minutes must be >= 0", i))
		}
	}
	if *c.Alerts.Top < 0 || c.Alerts.PerSecond < 0 {
		errs = append(errs, errors.New("alerts.top and alerts.per_second must be >= 0"))
	}

	return errors.Join(errs...)
}

// Tuning arma la configuración numérica que consume el ciclo.
func (c *Config) Tuning() domain.Tuning {
	mode, _ := domain.ParseLogisticsMode(c.Policy.Logistics.Mode)

	var stale time.Duration
	if c.Lifecycle.StaleAfterMinutes != nil {
		stale = time.Duration(*c.Lifecycle.StaleAfterMinutes) * time.Minute
	}

	return domain.Tuning{
		Lifecycle: domain.LifecycleConfig{StaleAfter: stale},
		Score: domain.ScoreConfig{
			UndervalueWeight: *c.Score.UndervalueWeight,
			VelocityWeight:   *c.Score.VelocityWeight,
			Tiers:            append([]domain.TimeTier(nil), c.Score.TimeTiers...),
		},
		Policy: domain.PolicyConfig{
			Schedule: domain.ProfitSchedule{
				LowThreshold: *c.Policy.LowThreshold,
				LowFlat:      *c.Policy.LowProfit,
				MidThreshold: *c.Policy.MidThreshold,
				MidFlat:      *c.Policy.MidProfit,
				HighPercent:  *c.Policy.HighProfitPercent,
			},
			MarketplaceFeeRate: *c.Policy.MarketplaceFeeRate,
			TaxRate:            *c.Policy.TaxRate,
			HardBidCeiling:     *c.Policy.HardBidCeiling,
			Logistics: domain.LogisticsConfig{
				Mode:         mode,
				PickupCost:   c.Policy.Logistics.PickupCost,
				ShippingCost: c.Policy.Logistics.ShippingCost,
			},
		},
		Alert: domain.AlertConfig{Threshold: *c.Alerts.Threshold, Top: *c.Alerts.Top},
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOTBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOTBOT_FEED_DIR"); v != "" {
		cfg.Feed.Dir = v
	}
	if v := os.Getenv("LOTBOT_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Cycle.IntervalSeconds <= 0 {
		cfg.Cycle.IntervalSeconds = 900
	}

	defaultTo(&cfg.Score.UndervalueWeight, 40)
	defaultTo(&cfg.Score.VelocityWeight, 10)
	if len(cfg.Score.TimeTiers) == 0 {
		cfg.Score.TimeTiers = []domain.TimeTier{
			{MaxMinutes: 30, Bonus: 25},
			{MaxMinutes: 60, Bonus: 20},
			{MaxMinutes: 180, Bonus: 10},
		}
	}

	defaultTo(&cfg.Policy.LowThreshold, 50)
	defaultTo(&cfg.Policy.LowProfit, 15)
	defaultTo(&cfg.Policy.MidThreshold, 200)
	defaultTo(&cfg.Policy.MidProfit, 40)
	defaultTo(&cfg.Policy.HighProfitPercent, 0.25)
	defaultTo(&cfg.Policy.MarketplaceFeeRate, 0.13)
	defaultTo(&cfg.Policy.TaxRate, 0.08)
	defaultTo(&cfg.Policy.HardBidCeiling, 200)

	defaultTo(&cfg.Alerts.Threshold, 50)
	defaultTo(&cfg.Alerts.Top, 5)

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "lotbot.db"
	}
	if cfg.Feed.Dir == "" {
		cfg.Feed.Dir = "feed"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// defaultTo asigna v solo si la key no vino en el YAML.
func defaultTo[T any](p **T, v T) {
	if *p == nil {
		*p = &v
	}
}
