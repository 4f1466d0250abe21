package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot. Se construye una vez en el
// arranque y se pasa por referencia; ningún componente lee estado global.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Signal   SignalConfig   `yaml:"signal"`
	Risk     RiskConfig     `yaml:"risk"`
	Executor ExecutorConfig `yaml:"executor"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
}

// BotConfig controla el loop principal.
type BotConfig struct {
	ScanIntervalSeconds int    `yaml:"scan_interval_seconds"`
	DryRun              bool   `yaml:"dry_run"`
	SeriesSlug          string `yaml:"series_slug"` // prefijo del slug del slot de 15m
	// BalanceFailLimit son los fallos de balance consecutivos que paran las
	// órdenes nuevas. Un fallo suelto puede ser una carrera contra un
	// settlement pendiente; una racha significa cuenta seca.
	BalanceFailLimit int `yaml:"balance_fail_limit"`
}

// SignalConfig controla el SignalEngine.
type SignalConfig struct {
	MinVolume     float64   `yaml:"min_volume"`
	MaxBetUSD     float64   `yaml:"max_bet_usd"`
	MinThreshold  float64   `yaml:"min_threshold"` // banda de entrada del precio
	MaxThreshold  float64   `yaml:"max_threshold"`
	PreferredSide string    `yaml:"preferred_side"` // "YES" | "NO", desempate
	VigTiers      []VigTier `yaml:"vig_tiers"`
}

// VigTier define la tolerancia de vig máxima a partir de un volumen mínimo.
// Los tiers van ordenados por volumen ascendente y la tolerancia se estrecha
// monótonamente: más volumen → menos vig permitido.
type VigTier struct {
	MinVolume float64 `yaml:"min_volume"`
	MaxVig    float64 `yaml:"max_vig"`
}

// RiskConfig contiene los límites estáticos del RiskGate.
type RiskConfig struct {
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	MaxDailyTrades         int     `yaml:"max_daily_trades"`
	MaxExposureUSD         float64 `yaml:"max_exposure_usd"`
	MaxPositionUSD         float64 `yaml:"max_position_usd"`
	DailyLossLimitUSD      float64 `yaml:"daily_loss_limit_usd"`
	LossStreakLimit        int     `yaml:"loss_streak_limit"`
	DownsizeToHeadroom     bool    `yaml:"downsize_to_headroom"`
	MinOrderUSD            float64 `yaml:"min_order_usd"` // tamaño mínimo tras downsizing
}

// ExecutorConfig contiene los knobs de ejecución. Los defaults (3 intentos,
// backoff 4s, umbral 95%) son constantes de política, no óptimos probados.
type ExecutorConfig struct {
	MaxAttempts          int     `yaml:"max_attempts"`
	BackoffBaseMs        int     `yaml:"backoff_base_ms"`
	BackoffCapSeconds    int     `yaml:"backoff_cap_seconds"`
	PartialFillThreshold float64 `yaml:"partial_fill_threshold"`
	VenueTimeoutSeconds  int     `yaml:"venue_timeout_seconds"`
}

// MonitorConfig controla las ventanas y umbrales del monitor.
type MonitorConfig struct {
	WindowTrades        int `yaml:"window_trades"`         // ventana trailing-N
	RejectionAlertCount int `yaml:"rejection_alert_count"` // rechazos repetidos → anomaly
}

// APIConfig contiene los base URLs de las APIs del venue.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// TelegramConfig controla las notificaciones por Telegram.
// El token se carga desde .env (TELEGRAM_BOT_TOKEN), nunca desde el YAML.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ChatID   string `yaml:"chat_id"`
	BotToken string `yaml:"-"`
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

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Bot.ScanIntervalSeconds) * time.Second
}

// BackoffBase devuelve la espera base del backoff exponencial.
func (c ExecutorConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffCap devuelve el tope de espera entre reintentos.
func (c ExecutorConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// VenueTimeout devuelve el timeout por llamada al venue.
func (c ExecutorConfig) VenueTimeout() time.Duration {
	return time.Duration(c.VenueTimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bot.DryRun = b
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.ScanIntervalSeconds <= 0 {
		cfg.Bot.ScanIntervalSeconds = 60
	}
	if cfg.Bot.SeriesSlug == "" {
		cfg.Bot.SeriesSlug = "btc-updown-15m"
	}
	if cfg.Bot.BalanceFailLimit <= 0 {
		cfg.Bot.BalanceFailLimit = 3
	}
	if cfg.Signal.MinVolume <= 0 {
		cfg.Signal.MinVolume = 10000
	}
	if cfg.Signal.MaxBetUSD <= 0 {
		cfg.Signal.MaxBetUSD = 2.50
	}
	if cfg.Signal.MinThreshold <= 0 {
		cfg.Signal.MinThreshold = 0.70
	}
	if cfg.Signal.MaxThreshold <= 0 {
		cfg.Signal.MaxThreshold = 0.98
	}
	if cfg.Signal.PreferredSide == "" {
		cfg.Signal.PreferredSide = "YES"
	}
	if len(cfg.Signal.VigTiers) == 0 {
		// Tres tiers: la tolerancia se estrecha al crecer el volumen.
		cfg.Signal.VigTiers = []VigTier{
			{MinVolume: 0, MaxVig: 0.10},
			{MinVolume: 5000, MaxVig: 0.05},
			{MinVolume: 10000, MaxVig: 0.02},
		}
	}
	if cfg.Risk.MaxConcurrentPositions <= 0 {
		cfg.Risk.MaxConcurrentPositions = 5
	}
	if cfg.Risk.MaxDailyTrades <= 0 {
		cfg.Risk.MaxDailyTrades = 20
	}
	if cfg.Risk.MaxExposureUSD <= 0 {
		cfg.Risk.MaxExposureUSD = 100
	}
	if cfg.Risk.MaxPositionUSD <= 0 {
		cfg.Risk.MaxPositionUSD = 100
	}
	if cfg.Risk.DailyLossLimitUSD <= 0 {
		cfg.Risk.DailyLossLimitUSD = 50
	}
	if cfg.Risk.LossStreakLimit <= 0 {
		cfg.Risk.LossStreakLimit = 3
	}
	if cfg.Risk.MinOrderUSD <= 0 {
		cfg.Risk.MinOrderUSD = 1.0
	}
	if cfg.Executor.MaxAttempts <= 0 {
		cfg.Executor.MaxAttempts = 3
	}
	if cfg.Executor.BackoffBaseMs <= 0 {
		cfg.Executor.BackoffBaseMs = 500
	}
	if cfg.Executor.BackoffCapSeconds <= 0 {
		cfg.Executor.BackoffCapSeconds = 4
	}
	if cfg.Executor.PartialFillThreshold <= 0 {
		cfg.Executor.PartialFillThreshold = 0.95
	}
	if cfg.Executor.VenueTimeoutSeconds <= 0 {
		cfg.Executor.VenueTimeoutSeconds = 10
	}
	if cfg.Monitor.WindowTrades <= 0 {
		cfg.Monitor.WindowTrades = 20
	}
	if cfg.Monitor.RejectionAlertCount <= 0 {
		cfg.Monitor.RejectionAlertCount = 5
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "crowdbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate rechaza combinaciones de límites incoherentes en el arranque.
// Fallar aquí es barato; fallar en medio de un ciclo no.
func (c *Config) Validate() error {
	if c.Signal.MinThreshold < 0 || c.Signal.MinThreshold > 1 {
		return fmt.Errorf("signal.min_threshold fuera de [0,1]: %v", c.Signal.MinThreshold)
	}
	if c.Signal.MaxThreshold < 0 || c.Signal.MaxThreshold > 1 {
		return fmt.Errorf("signal.max_threshold fuera de [0,1]: %v", c.Signal.MaxThreshold)
	}
	if c.Signal.MinThreshold > c.Signal.MaxThreshold {
		return fmt.Errorf("signal.min_threshold (%v) > max_threshold (%v)",
			c.Signal.MinThreshold, c.Signal.MaxThreshold)
	}
	if c.Signal.PreferredSide != "YES" && c.Signal.PreferredSide != "NO" {
		return fmt.Errorf("signal.preferred_side debe ser YES o NO: %q", c.Signal.PreferredSide)
	}
	if len(c.Signal.VigTiers) < 3 {
		return fmt.Errorf("signal.vig_tiers necesita al menos 3 tiers, hay %d", len(c.Signal.VigTiers))
	}
	for i := 1; i < len(c.Signal.VigTiers); i++ {
		prev, cur := c.Signal.VigTiers[i-1], c.Signal.VigTiers[i]
		if cur.MinVolume <= prev.MinVolume {
			return fmt.Errorf("signal.vig_tiers[%d]: min_volume no ascendente (%v ≤ %v)",
				i, cur.MinVolume, prev.MinVolume)
		}
		if cur.MaxVig >= prev.MaxVig {
			return fmt.Errorf("signal.vig_tiers[%d]: max_vig no estrecha con el volumen (%v ≥ %v)",
				i, cur.MaxVig, prev.MaxVig)
		}
	}
	if c.Signal.MaxBetUSD > c.Risk.MaxPositionUSD {
		return fmt.Errorf("signal.max_bet_usd (%v) > risk.max_position_usd (%v)",
			c.Signal.MaxBetUSD, c.Risk.MaxPositionUSD)
	}
	if c.Executor.PartialFillThreshold <= 0 || c.Executor.PartialFillThreshold > 1 {
		return fmt.Errorf("executor.partial_fill_threshold fuera de (0,1]: %v",
			c.Executor.PartialFillThreshold)
	}
	if c.Telegram.Enabled && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id requerido cuando telegram.enabled")
	}
	return nil
}
