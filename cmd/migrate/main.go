package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"hotelops/internal/config"
	"hotelops/internal/models"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.Database.Host, cfg.Database.User, cfg.Database.Password,
			cfg.Database.Name, strconv.Itoa(cfg.Database.Port), cfg.Database.SSLMode)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Starting database migration...")

	// 自动迁移所有模型
	if err := db.AutoMigrate(
		&models.Hotel{},
		&models.User{},
		&models.HotelMember{},
		&models.Room{},
		&models.CleaningDispatch{},
		&models.MaintenanceOrder{},
		&models.LeaveRequest{},
		&models.OpsTask{},
		&models.Notification{},
		&models.Automation{},
		&models.AutomationHotelScope{},
		&models.AutomationRecipient{},
		&models.AutomationRun{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 部分唯一索引需要手工建
	if err := models.MigrateAutomationIndexes(db); err != nil {
		log.Fatalf("Failed to create automation indexes: %v", err)
	}

	log.Println("Database migration completed")
}
