package infra

import (
	"fmt"
	"strings"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
)

// PrintBanner displays the startup banner with mode-specific warnings.
func PrintBanner(cfg *Config) {
	mode := strings.ToUpper(cfg.Trading.Mode)

	color := colorCyan
	modeDesc := "INTERNAL SIMULATION"
	if mode == "LIVE" {
		color = colorRed
		modeDesc = "REAL MONEY TRADING"
	}

	fmt.Println()
	fmt.Printf("%s#########################################################%s\n", color, colorReset)
	fmt.Printf("%s#                  bbot momentum trader                 #%s\n", color, colorReset)
	fmt.Printf("%s#   MODE:    %-42s #%s\n", color, mode, colorReset)
	fmt.Printf("%s#   TYPE:    %-42s #%s\n", color, modeDesc, colorReset)
	fmt.Printf("%s#   VERSION: %-42s #%s\n", color, cfg.App.Version, colorReset)
	if mode == "LIVE" {
		fmt.Printf("%s#   WARNING: orders will be placed with real funds      #%s\n", colorRed, colorReset)
	}
	fmt.Printf("%s#########################################################%s\n", color, colorReset)
	fmt.Println()
}
