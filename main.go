package main

import (
	"fmt"
	"os"

	"device_inventory_tool/app"
	"device_inventory_tool/config"

	"go.uber.org/zap"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		// 配置尚未加载，按环境变量里的级别建一个临时 logger
		if log, lerr := app.NewLogger(config.Get("LOG_LEVEL", "info")); lerr == nil {
			log.Warn("env file ignored", zap.Error(err))
			_ = log.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
