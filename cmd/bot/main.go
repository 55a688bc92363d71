package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gridbot/internal/config"
	"gridbot/internal/emergency"
	"gridbot/internal/exchange"
	"gridbot/internal/exchange/binance"
	"gridbot/internal/exchange/binance/ws"
	"gridbot/internal/executor"
	"gridbot/internal/filters"
	"gridbot/internal/gate"
	"gridbot/internal/logger"
	"gridbot/internal/metrics"
	"gridbot/internal/orchestrator"
	"gridbot/internal/store"
)

var (
	cfgFile      string
	basketFlag   string
	createBasket bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridbot",
		Short: "Спотовый сеточный бот",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "путь к файлу конфигурации")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Запустить основной цикл",
		RunE:  runBot,
	}
	runCmd.Flags().BoolVar(&createBasket, "create-basket", false, "создать корзину, если активной нет")

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Аварийно закрыть корзину",
		RunE:  runClose,
	}
	closeCmd.Flags().StringVar(&basketFlag, "basket", "", "идентификатор корзины")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Управление тумблером торговли",
	}
	statusCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Включить торговлю",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGate(func(ctx context.Context, g *gate.Gate) error {
					return g.Start(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Остановить торговлю",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGate(func(ctx context.Context, g *gate.Gate) error {
					return g.Stop(ctx)
				})
			},
		},
	)

	rootCmd.AddCommand(runCmd, closeCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  store.Store
	client *binance.Client
	cache  *filters.Cache
	ticker *ws.Ticker
}

func buildApp() (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = store.NewMemory()
	case "postgres", "":
		pg, err := store.NewPostgres(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		st = pg
	default:
		return nil, fmt.Errorf("Неизвестный драйвер хранилища: %q", cfg.Store.Driver)
	}

	client := binance.New(cfg.Exchange.BaseUrl, cfg.Exchange.ApiKey, cfg.Exchange.Secret, log)

	return &app{
		cfg:    cfg,
		log:    log,
		store:  st,
		client: client,
		cache:  filters.NewCache(client, log),
	}, nil
}

func runBot(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info("Бот запущен.")

	if a.cfg.Exchange.UseTickerStream {
		ticker := ws.New(a.cfg.Exchange.WSUrl, a.cfg.Bot.Pair, a.log)
		if err := ticker.Connect(ctx); err != nil {
			a.log.WithError(err).Warn("WS-поток недоступен, цена берётся по REST.")
		} else {
			a.client.UseTickerStream(ticker)
			a.ticker = ticker
			defer ticker.Close()
		}
	}

	if a.cfg.Runtime.MetricsAddr != "" {
		metrics.Serve(a.cfg.Runtime.MetricsAddr, a.log)
	}

	if createBasket {
		if _, err := orchestrator.EnsureBasket(ctx, a.store, a.client, a.log, a.cfg.Bot.Pair, a.cfg.Bot.AnchorPrice, a.cfg.Bot.Grid); err != nil {
			return err
		}
	}

	g := gate.New(a.store, a.log)
	exec := executor.New(a.client, a.store, a.cache, a.log, a.cfg.Runtime.DryRun)
	orch := orchestrator.New(a.client, a.store, a.cache, g, exec, a.log, time.Duration(a.cfg.Bot.CheckIntervalSec)*time.Second)

	go func() {
		<-sigCh
		a.log.Info("Получен сигнал остановки.")
		cancel()
	}()

	if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	a.log.Info("Бот остановлен.")
	return nil
}

func runClose(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	basketID := basketFlag
	if basketID == "" {
		baskets, err := a.store.ActiveBaskets(ctx)
		if err != nil {
			return err
		}
		for _, basket := range baskets {
			if basket.Pair == a.cfg.Bot.Pair {
				basketID = basket.ID
				break
			}
		}
	}
	if basketID == "" {
		return fmt.Errorf("Активная корзина не найдена, укажите --basket.")
	}

	closer := emergency.New(a.client, a.store, a.cache, a.log, a.cfg.Bot.SafetyMargin)
	result := closer.Close(ctx, basketID)

	fmt.Printf("success=%v canceled=%d exit_order=%v message=%s\n",
		result.Success, result.CanceledCount, result.ExitOrderPlaced, result.Message)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func withGate(fn func(context.Context, *gate.Gate) error) error {
	a, err := buildApp()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return fn(ctx, gate.New(a.store, a.log))
}

var _ exchange.Client = (*binance.Client)(nil)
