package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ritbot-go/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== RITBot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit LT3 tender knobs")
		fmt.Println("3) Edit SOR routing knobs")
		fmt.Println("4) Edit VaR knobs")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch trader")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editLT3(reader, cfg)
		case "3":
			editSOR(reader, cfg)
		case "4":
			editVaR(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchTrader(reader, cfg)
		case "7":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Mode: %s | exchange %s:%d\n", cfg.App.Mode, cfg.Exchange.Host, cfg.Exchange.Port)
	fmt.Printf("LT3: trade until tick %d, depth %d, VWAP margin %.2f\n", cfg.LT3.TradeUntilTick, cfg.LT3.MarketDepth, cfg.LT3.MinVWAPMargin)
	fmt.Printf("LT3 limits: net %d | gross %d | batch %d\n", cfg.LT3.NetLimit, cfg.LT3.GrossLimit, cfg.LT3.BatchSize)
	fmt.Printf("SOR: tickers %s, block %d, slippage %.2f\n", strings.Join(cfg.SOR.Tickers, "/"), cfg.SOR.BlockQuantity, cfg.SOR.SlippageMargin)
	fmt.Printf("VaR: assets %s, ceiling %.0f, confidence %.2f%%\n", strings.Join(cfg.VaR.Assets, ", "), cfg.VaR.Ceiling, cfg.VaR.Confidence*100)
	if cfg.Journal.FillsPath != "" {
		fmt.Println("Fill journal:", cfg.Journal.FillsPath)
	}
}

func editLT3(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit LT3 ---")
	cfg.LT3.TradeUntilTick = promptInt(reader, "Trade until tick", cfg.LT3.TradeUntilTick)
	cfg.LT3.MarketDepth = promptInt(reader, "Market depth", cfg.LT3.MarketDepth)
	cfg.LT3.MinVWAPMargin = promptFloat(reader, "Min VWAP margin", cfg.LT3.MinVWAPMargin)
	cfg.LT3.NetLimit = promptInt(reader, "Net position limit", cfg.LT3.NetLimit)
	cfg.LT3.GrossLimit = promptInt(reader, "Gross position limit", cfg.LT3.GrossLimit)
	cfg.LT3.BatchSize = promptInt(reader, "Unwind batch size", cfg.LT3.BatchSize)
}

func editSOR(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit SOR ---")
	fmt.Printf("Current tickers: %s\n", strings.Join(cfg.SOR.Tickers, ", "))
	fmt.Print("Enter the two tickers comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		var tickers []string
		for _, p := range strings.Split(strings.TrimSpace(line), ",") {
			if trimmed := strings.ToUpper(strings.TrimSpace(p)); trimmed != "" {
				tickers = append(tickers, trimmed)
			}
		}
		if len(tickers) == 2 {
			cfg.SOR.Tickers = tickers
		} else {
			fmt.Println("need exactly two tickers, keeping current")
		}
	}
	cfg.SOR.TradeUntilTick = promptInt(reader, "Trade until tick", cfg.SOR.TradeUntilTick)
	cfg.SOR.MinVWAPMargin = promptFloat(reader, "Min VWAP margin", cfg.SOR.MinVWAPMargin)
	cfg.SOR.SlippageMargin = promptFloat(reader, "Slippage margin", cfg.SOR.SlippageMargin)
	cfg.SOR.BlockQuantity = promptInt(reader, "Block quantity", cfg.SOR.BlockQuantity)
}

func editVaR(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit VaR ---")
	cfg.VaR.Ceiling = promptFloat(reader, "VaR ceiling", cfg.VaR.Ceiling)
	cfg.VaR.Confidence = promptPercent(reader, "Confidence (%)", cfg.VaR.Confidence)
	cfg.VaR.UnitBudget = promptFloat(reader, "Per-asset VaR budget", cfg.VaR.UnitBudget)
	cfg.VaR.TrimQuantity = promptInt(reader, "Trim quantity", cfg.VaR.TrimQuantity)
}

func launchTrader(reader *bufio.Reader, cfg *config.Config) {
	fmt.Printf("Mode [%s]: ", cfg.App.Mode)
	mode, _ := reader.ReadString('\n')
	if mode = strings.TrimSpace(mode); mode == "" {
		mode = cfg.App.Mode
	}
	if err := cfg.ValidateStrategy(mode); err != nil {
		fmt.Fprintf(os.Stderr, "cannot launch: %v\n", err)
		return
	}
	fmt.Printf("Launching %s trader (Ctrl+C to stop)...\n", mode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/trader", "-config", locateConfig(), "-mode", mode)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start trader: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the trader and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4g]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4g\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil {
		fmt.Printf("invalid integer, keeping %d\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
