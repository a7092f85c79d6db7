package tctx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/webtrekk/webtrekk-go/client/data"
	gormtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorm.io/gorm.v1"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Needed to use sqlite without CGO
	"github.com/glebarez/sqlite"
)

var (
	webtrekkLogger *logrus.Logger
	getLoggerOnce  sync.Once
)

func GetLogger() *logrus.Logger {
	getLoggerOnce.Do(func() {
		err := MakeWebtrekkDir()
		if err != nil {
			panic(err)
		}

		lumberjackLogger := &lumberjack.Logger{
			Filename:   path.Join(data.GetWebtrekkPath(), data.LOG_PATH),
			MaxSize:    1, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}

		webtrekkLogger = NewLogger(lumberjackLogger)
	})
	return webtrekkLogger
}

// NewLogger returns a logger formatted the same way as the file logger but writing to w.
func NewLogger(w io.Writer) *logrus.Logger {
	logFormatter := new(logrus.TextFormatter)
	logFormatter.TimestampFormat = time.RFC3339
	logFormatter.FullTimestamp = true

	l := logrus.New()
	l.SetFormatter(logFormatter)
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(w)
	return l
}

func MakeWebtrekkDir() error {
	err := os.MkdirAll(data.GetWebtrekkPath(), 0o744)
	if err != nil {
		return fmt.Errorf("failed to create webtrekk dir: %w", err)
	}
	return nil
}

// OpenLocalSqliteDb opens the tracking database in the webtrekk dir. Queries are traced with
// dd-trace-go when config enables tracing.
func OpenLocalSqliteDb(config *Config) (*gorm.DB, error) {
	err := MakeWebtrekkDir()
	if err != nil {
		return nil, err
	}
	traced := config != nil && config.EnableTracing
	return openSqliteDb(path.Join(data.GetWebtrekkPath(), data.DB_PATH), GetLogger(), traced)
}

// OpenSqliteDb opens (creating if needed) the tracking database at dbFilePath and migrates
// the queue and preference tables. The pool is capped at a single connection so that every
// transaction is serialized against all other callers in this process.
func OpenSqliteDb(dbFilePath string, l *logrus.Logger) (*gorm.DB, error) {
	return openSqliteDb(dbFilePath, l, false)
}

func openSqliteDb(dbFilePath string, l *logrus.Logger, traced bool) (*gorm.DB, error) {
	newLogger := logger.New(
		l.WithField("fromSQL", true),
		logger.Config{
			SlowThreshold:             100 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL", dbFilePath)
	gormConfig := &gorm.Config{SkipDefaultTransaction: true, Logger: newLogger}
	var db *gorm.DB
	var err error
	if traced {
		db, err = gormtrace.Open(sqlite.Open(dsn), gormConfig, gormtrace.WithServiceName("webtrekk-db"))
	} else {
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the DB: %w", err)
	}
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxOpenConns(1)
	err = sqlDb.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping the DB: %w", err)
	}
	err = db.AutoMigrate(&data.TrackRequest{}, &data.CustomParam{}, &data.Preference{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate the DB: %w", err)
	}
	db.Exec("PRAGMA journal_mode = WAL")
	return db, nil
}

func CloseDb(db *gorm.DB) error {
	sqlDb, err := db.DB()
	if err != nil {
		return fmt.Errorf("db.DB: %w", err)
	}
	return sqlDb.Close()
}

type webtrekkContextKey string

func MakeContext() context.Context {
	ctx := context.Background()
	config, err := GetConfig()
	if err != nil {
		panic(fmt.Errorf("failed to retrieve config: %w", err))
	}
	ctx = context.WithValue(ctx, webtrekkContextKey("config"), &config)
	db, err := OpenLocalSqliteDb(&config)
	if err != nil {
		panic(fmt.Errorf("failed to open local DB: %w", err))
	}
	ctx = context.WithValue(ctx, webtrekkContextKey("db"), db)
	return ctx
}

func GetConf(ctx context.Context) *Config {
	v := ctx.Value(webtrekkContextKey("config"))
	if v != nil {
		return v.(*Config)
	}
	panic(fmt.Errorf("failed to find config in ctx"))
}

func GetDb(ctx context.Context) *gorm.DB {
	v := ctx.Value(webtrekkContextKey("db"))
	if v != nil {
		return v.(*gorm.DB)
	}
	panic(fmt.Errorf("failed to find db in ctx"))
}
