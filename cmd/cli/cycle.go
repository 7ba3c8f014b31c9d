package cli

import (
	"context"
	"fmt"
	"os"
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

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one automation cycle and exit",
	Long:  `Evaluates every active automation once, executes the due ones and prints the cycle report.`,
	Run:   runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) {
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

	report := engine.RunCycle(context.Background(), models.TriggerManual)
	fmt.Printf("cycle %s: checked=%d executed=%d skipped=%d errored=%d in %s\n",
		report.CycleID, report.Checked, report.Executed, report.Skipped, report.Errored, report.Duration)
}

func cliDSN(cfg *config.Config) string {
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name,
		strconv.Itoa(cfg.Database.Port), cfg.Database.SSLMode, cfg.Scheduler.Timezone)
}
