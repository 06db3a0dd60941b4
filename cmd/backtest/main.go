package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"signal_bot/internal/backtest"
	"signal_bot/internal/modules/config"
	strategy "signal_bot/internal/modules/strategy/service"
	"signal_bot/pkg/logger"
)

const envPrefix = "BACKTEST"

func flags() *pflag.FlagSet {
	def := backtest.DefaultParams()
	fs := pflag.NewFlagSet("backtest", pflag.ExitOnError)
	fs.String("csv", "", "candles csv: timestamp,open,high,low,close[,volume]")
	fs.String("rules", strings.Join(strategy.KnownRules(), ","), "comma separated rules, evaluation order")
	fs.String("config", "", "optional service yaml to take strategy tuning from")
	fs.String("symbol", "XAUUSD", "symbol label for candles")
	fs.String("timeframe", "1h", "timeframe label for candles")
	fs.Float64("balance", def.InitialBalance, "initial balance")
	fs.Float64("risk", def.RiskFraction, "risk fraction of equity per trade")
	fs.Float64("min-rr", def.MinRiskReward, "minimum risk:reward to open")
	fs.Int("window", def.WindowSize, "rolling window size")
	fs.Int("max-open", def.MaxOpenTrades, "max concurrent positions, 0 = no limit")
	fs.Float64("commission", def.Commission, "flat commission per side")
	fs.Float64("slippage", def.Slippage, "entry slippage in price units")
	fs.String("out", "", "write json report to this path")
	fs.String("log-level", "warn", "log level")
	return fs
}

// load связывает флаги с env BACKTEST_*: флаг из командной строки сильнее env.
func load(args []string) (*viper.Viper, error) {
	fs := flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	return v, nil
}

func strategyParams(v *viper.Viper) (strategy.Params, error) {
	params := strategy.DefaultParams()
	if path := v.GetString("config"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return params, errors.Wrap(err, "open config")
		}
		defer func() { _ = f.Close() }()
		cfg, err := config.Load(f)
		if err != nil {
			return params, err
		}
		params = cfg.Strategy
	}

	var enabled []string
	for _, name := range strings.Split(v.GetString("rules"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			enabled = append(enabled, name)
		}
	}
	params.Enabled = enabled
	return params, nil
}

func run(ctx context.Context, v *viper.Viper) error {
	if err := logger.Init(v.GetString("log-level")); err != nil {
		return err
	}
	defer logger.Sync()

	csvPath := v.GetString("csv")
	if csvPath == "" {
		return errors.New("--csv is required")
	}
	candles, err := backtest.LoadCSVFile(csvPath, v.GetString("symbol"), v.GetString("timeframe"))
	if err != nil {
		return err
	}

	sp, err := strategyParams(v)
	if err != nil {
		return err
	}
	rules, err := strategy.BuildRules(sp)
	if err != nil {
		return errors.Wrap(err, "rules")
	}

	params := backtest.Params{
		InitialBalance: v.GetFloat64("balance"),
		RiskFraction:   v.GetFloat64("risk"),
		MinRiskReward:  v.GetFloat64("min-rr"),
		WindowSize:     v.GetInt("window"),
		MaxOpenTrades:  v.GetInt("max-open"),
		Commission:     v.GetFloat64("commission"),
		Slippage:       v.GetFloat64("slippage"),
	}
	res, err := backtest.Run(ctx, candles, strategy.NewEngine(rules), params)
	if err != nil {
		return err
	}

	fmt.Print(res.Summary())
	if out := v.GetString("out"); out != "" {
		if err := res.WriteJSON(out); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", out)
	}
	return nil
}

func main() {
	v, err := load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, v); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %+v\n", err)
		os.Exit(1)
	}
}
