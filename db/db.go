package db

import (
	"device_inventory_tool/models"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Debug    bool
}

func (o Options) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		o.Host, o.User, o.Password, o.Name, o.Port, o.SSLMode,
	)
}

func ConnectDB(opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if opts.Debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	conn, err := gorm.Open(postgres.Open(opts.DSN()), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Device{},
		&models.Student{},
		&models.Assignment{},
		&models.Contract{},
		&models.GlobalSettings{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	// 同一设备、同一学生最多一条 active 分配
	stmts := []string{
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_device
		  ON %s (device_id) WHERE active`, models.AssignmentTable, models.AssignmentTable),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_student
		  ON %s (student_id) WHERE active`, models.AssignmentTable, models.AssignmentTable),
		// 合同对账时按设备号 + active 查
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_active_device_assignedat
		  ON %s (device_id, assigned_at DESC) WHERE active`, models.AssignmentTable, models.AssignmentTable),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
