package orm

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chainvend.com/pkg/logger"
	"chainvend.com/pkg/metrics"
)

type Config struct {
	DSN         string // user:pass@tcp(host:3306)/db
	MaxIdle     int
	MaxOpen     int
	MaxLifetime int // seconds
	LogLevel    string
}

// NewMySQL opens gorm on MySQL. The DSN is forced to parseTime and UTC so decimal and
// timestamp columns round-trip the same way on every replica.
func NewMySQL(c *Config) *gorm.DB {
	dsn, err := normalizeDSN(c.DSN)
	if err != nil {
		panic("invalid mysql dsn: " + err.Error())
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLevel(c.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		panic("failed to connect database: " + err.Error())
	}
	if err := InstrumentQueries(db); err != nil {
		panic("register gorm metrics: " + err.Error())
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxIdleConns(c.MaxIdle)
	sqlDB.SetMaxOpenConns(c.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)

	return db
}

func normalizeDSN(raw string) (string, error) {
	cfg, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func gormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// Migrate creates or alters the tables for models.
func Migrate(db *gorm.DB, models ...interface{}) error {
	return db.AutoMigrate(models...)
}

// ReportPoolStats copies sql.DBStats into the pool gauges until ctx is done.
func ReportPoolStats(ctx context.Context, db *gorm.DB, every time.Duration) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn(ctx, "pool stats disabled", zap.Error(err))
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var lastWait int64
	var lastWaitDur time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := sqlDB.Stats()
			metrics.DbPoolOpen.Set(float64(st.OpenConnections))
			metrics.DbPoolIdle.Set(float64(st.Idle))
			metrics.DbPoolInuse.Set(float64(st.InUse))
			// counters only move forward
			if d := st.WaitCount - lastWait; d > 0 {
				metrics.DbPoolWaitCount.Add(float64(d))
			}
			if d := st.WaitDuration - lastWaitDur; d > 0 {
				metrics.DbPoolWaitDuration.Add(d.Seconds())
			}
			lastWait, lastWaitDur = st.WaitCount, st.WaitDuration
		}
	}
}
