package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"hotelops/internal/config"
	"hotelops/internal/models"
	"hotelops/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var runCmd = &cobra.Command{
	Use:   "run <automation-id>",
	Short: "Run one automation immediately, bypassing its schedule",
	Args:  cobra.ExactArgs(1),
	Run:   runAutomation,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAutomation(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		logrus.Fatalf("Invalid automation id %q: %v", args[0], err)
	}

	cfg := config.Load()
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	db, err := gorm.Open(postgres.Open(cliDSN(cfg)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}

	var notifier services.Notifier
	if cfg.Notify.Enabled {
		notifier = services.NewQueueNotifier(db, appLogger, cfg.Notify.SubjectPrefix)
	} else {
		notifier = services.NewLogNotifier(appLogger)
	}
	engine := services.NewAutomationService(
		db, appLogger, services.DefaultCheckRegistry(),
		services.NewRecipientService(db, appLogger), notifier, cfg.Scheduler)

	outcome, err := engine.RunAutomation(context.Background(), uint(id), models.TriggerManual)
	if err != nil {
		if errors.Is(err, services.ErrAutomationNotFound) {
			appLogger.Fatalf("Automation %d not found", id)
		}
		appLogger.Fatalf("Failed to run automation %d: %v", id, err)
	}
	fmt.Printf("automation %d: status=%s affected=%d message=%s\n",
		id, outcome.Status, outcome.AffectedCount, outcome.Message)
}
