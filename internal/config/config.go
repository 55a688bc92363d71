package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"gridbot/internal/models"
)

const (
	mainnetBaseURL = "https://api.binance.com"
	mainnetWSURL   = "wss://stream.binance.com:9443"
	testnetBaseURL = "https://testnet.binance.vision"
	testnetWSURL   = "wss://testnet.binance.vision"
)

type Config struct {
	Exchange ExchangeConfig
	Bot      BotConfig
	Store    StoreConfig
	Runtime  RuntimeConfig
}

type ExchangeConfig struct {
	BaseUrl         string
	WSUrl           string
	Testnet         bool
	ApiKey          string
	Secret          string
	UseTickerStream bool
}

type BotConfig struct {
	Pair             string
	AnchorPrice      float64
	CheckIntervalSec int
	SafetyMargin     float64
	Grid             models.GridConfig
}

type StoreConfig struct {
	Driver string
	DSN    string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type RuntimeConfig struct {
	DryRun      bool
	MetricsAddr string
	Log         LogConfig
}

type gridRaw struct {
	LevelsPct           []float64 `mapstructure:"levels_pct"`
	AllocWeights        []float64 `mapstructure:"alloc_weights"`
	MaxGridCapitalQuote float64   `mapstructure:"max_grid_capital_quote"`
	TPStartPct          float64   `mapstructure:"tp_start_pct"`
	TPStepPct           float64   `mapstructure:"tp_step_pct"`
	TPMinPct            float64   `mapstructure:"tp_min_pct"`
	TP2DeltaPct         float64   `mapstructure:"tp2_delta_pct"`
	TP1Share            float64   `mapstructure:"tp1_share"`
	TP2Share            float64   `mapstructure:"tp2_share"`
	TrailShare          float64   `mapstructure:"trail_share"`
	TrailingCallbackPct float64   `mapstructure:"trailing_callback_pct"`
	HardStopMode        string    `mapstructure:"hard_stop_mode"`
	HardStopPct         float64   `mapstructure:"hard_stop_pct"`
	PlaceMode           string    `mapstructure:"place_mode"`
	KNext               int       `mapstructure:"k_next"`
	ReanchorCloseRatio  float64   `mapstructure:"reanchor_close_ratio"`
	ReanchorTTLSec      int64     `mapstructure:"reanchor_ttl_sec"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("configs")
		viper.SetConfigName("config")
	}
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
	}

	viper.SetDefault("bot.check_interval_sec", 5)
	viper.SetDefault("bot.safety_margin", 0.03)
	viper.SetDefault("grid.hard_stop_mode", string(models.HardStopNone))
	viper.SetDefault("grid.place_mode", string(models.PlaceModeAllUnfilled))
	viper.SetDefault("store.driver", "postgres")
	viper.SetDefault("runtime.log.level", "info")

	cfg.Exchange = ExchangeConfig{
		BaseUrl:         viper.GetString("exchange.base_url"),
		WSUrl:           viper.GetString("exchange.ws_url"),
		Testnet:         viper.GetBool("exchange.testnet"),
		ApiKey:          envSub("exchange.api_key"),
		Secret:          envSub("exchange.secret"),
		UseTickerStream: viper.GetBool("exchange.use_ticker_stream"),
	}
	if cfg.Exchange.BaseUrl == "" {
		if cfg.Exchange.Testnet {
			cfg.Exchange.BaseUrl = testnetBaseURL
		} else {
			cfg.Exchange.BaseUrl = mainnetBaseURL
		}
	}
	if cfg.Exchange.WSUrl == "" {
		if cfg.Exchange.Testnet {
			cfg.Exchange.WSUrl = testnetWSURL
		} else {
			cfg.Exchange.WSUrl = mainnetWSURL
		}
	}

	var grid gridRaw
	if err := viper.UnmarshalKey("grid", &grid); err != nil {
		return nil, fmt.Errorf("Не удалось разобрать настройки сетки: %w", err)
	}
	if grid.HardStopMode == "" {
		grid.HardStopMode = string(models.HardStopNone)
	}
	if grid.PlaceMode == "" {
		grid.PlaceMode = string(models.PlaceModeAllUnfilled)
	}

	cfg.Bot = BotConfig{
		Pair:             strings.ToUpper(strings.TrimSpace(viper.GetString("bot.pair"))),
		AnchorPrice:      viper.GetFloat64("bot.anchor_price"),
		CheckIntervalSec: viper.GetInt("bot.check_interval_sec"),
		SafetyMargin:     viper.GetFloat64("bot.safety_margin"),
		Grid: models.GridConfig{
			LevelsPct:           grid.LevelsPct,
			AllocWeights:        grid.AllocWeights,
			MaxGridCapitalQuote: grid.MaxGridCapitalQuote,
			TPStartPct:          grid.TPStartPct,
			TPStepPct:           grid.TPStepPct,
			TPMinPct:            grid.TPMinPct,
			TP2DeltaPct:         grid.TP2DeltaPct,
			TP1Share:            grid.TP1Share,
			TP2Share:            grid.TP2Share,
			TrailShare:          grid.TrailShare,
			TrailingCallbackPct: grid.TrailingCallbackPct,
			HardStopMode:        models.HardStopMode(grid.HardStopMode),
			HardStopPct:         grid.HardStopPct,
			PlaceMode:           models.PlaceMode(grid.PlaceMode),
			KNext:               grid.KNext,
			ReanchorCloseRatio:  grid.ReanchorCloseRatio,
			ReanchorTTLSec:      grid.ReanchorTTLSec,
		},
	}

	cfg.Store = StoreConfig{
		Driver: viper.GetString("store.driver"),
		DSN:    envSub("store.dsn"),
	}

	cfg.Runtime = RuntimeConfig{
		DryRun:      viper.GetBool("runtime.dry_run"),
		MetricsAddr: viper.GetString("runtime.metrics_addr"),
		Log: LogConfig{
			Level:      viper.GetString("runtime.log.level"),
			Format:     viper.GetString("runtime.log.format"),
			File:       viper.GetString("runtime.log.file"),
			MaxSize:    viper.GetInt("runtime.log.max_size"),
			MaxBackups: viper.GetInt("runtime.log.max_backups"),
			MaxAge:     viper.GetInt("runtime.log.max_age"),
			Compress:   viper.GetBool("runtime.log.compress"),
		},
	}

	if cfg.Bot.Pair == "" {
		return nil, fmt.Errorf("Не задана торговая пара.")
	}
	if err := ValidateGrid(cfg.Bot.Grid); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateGrid фиксирует единицы измерения: уровни задаются в процентах
// (-5 означает 0.95 от якоря), параметры тейк-профита и защит — долями.
// Значение не в своей единице отклоняется при загрузке.
func ValidateGrid(grid models.GridConfig) error {
	if len(grid.LevelsPct) == 0 {
		return fmt.Errorf("Не заданы уровни сетки.")
	}
	if len(grid.LevelsPct) != len(grid.AllocWeights) {
		return fmt.Errorf("Число уровней не совпадает с числом весов: %d != %d", len(grid.LevelsPct), len(grid.AllocWeights))
	}

	for _, pct := range grid.LevelsPct {
		if pct >= 0 {
			return fmt.Errorf("Уровень должен быть отрицательным процентом: %v", pct)
		}
		if pct > -1 {
			return fmt.Errorf("Уровень %v похож на долю, ожидаются проценты (например -5).", pct)
		}
		if pct <= -100 {
			return fmt.Errorf("Уровень %v опускает цену ниже нуля.", pct)
		}
	}

	var weightSum float64
	for _, weight := range grid.AllocWeights {
		if weight <= 0 {
			return fmt.Errorf("Вес уровня должен быть положительным: %v", weight)
		}
		weightSum += weight
	}
	if math.Abs(weightSum-1) > 1e-6 {
		return fmt.Errorf("Сумма весов должна равняться 1, получено %v.", weightSum)
	}

	shareSum := grid.TP1Share + grid.TP2Share + grid.TrailShare
	if math.Abs(shareSum-1) > 1e-6 {
		return fmt.Errorf("Сумма долей выхода должна равняться 1, получено %v.", shareSum)
	}

	for name, val := range map[string]float64{
		"tp_start_pct":          grid.TPStartPct,
		"tp_min_pct":            grid.TPMinPct,
		"trailing_callback_pct": grid.TrailingCallbackPct,
	} {
		if val <= 0 || val >= 1 {
			return fmt.Errorf("Параметр %s задаётся долей в (0, 1), получено %v.", name, val)
		}
	}
	if grid.TPStepPct < 0 || grid.TPStepPct >= 1 {
		return fmt.Errorf("Параметр tp_step_pct задаётся долей в [0, 1), получено %v.", grid.TPStepPct)
	}
	if grid.TP2DeltaPct < 0 || grid.TP2DeltaPct >= 1 {
		return fmt.Errorf("Параметр tp2_delta_pct задаётся долей в [0, 1), получено %v.", grid.TP2DeltaPct)
	}
	if grid.TPMinPct > grid.TPStartPct {
		return fmt.Errorf("tp_min_pct не может превышать tp_start_pct.")
	}

	switch grid.HardStopMode {
	case models.HardStopNone:
	case models.HardStopHard, models.HardStopExtendZone:
		if grid.HardStopPct <= 0 || grid.HardStopPct >= 1 {
			return fmt.Errorf("Параметр hard_stop_pct задаётся долей в (0, 1), получено %v.", grid.HardStopPct)
		}
	default:
		return fmt.Errorf("Неизвестный режим защиты зоны: %q", grid.HardStopMode)
	}

	switch grid.PlaceMode {
	case models.PlaceModeAllUnfilled:
	case models.PlaceModeOnlyNextK:
		if grid.KNext < 1 {
			return fmt.Errorf("Для режима only_next_k требуется k_next >= 1.")
		}
	default:
		return fmt.Errorf("Неизвестный режим постановки: %q", grid.PlaceMode)
	}

	if grid.MaxGridCapitalQuote <= 0 {
		return fmt.Errorf("Капитал сетки должен быть положительным: %v", grid.MaxGridCapitalQuote)
	}

	return nil
}

func envSub(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}

	re := regexp.MustCompile(`\$\{(\w+)\}`)
	return re.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
