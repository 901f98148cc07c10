/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

type gormLogger struct {
	logf     Logf
	logLevel gormlogger.LogLevel
}

func newGormLogger(logf Logf) gormlogger.Interface {
	return &gormLogger{logf: orNop(logf), logLevel: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logf("STORE: "+msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logf("STORE: "+msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logf("STORE: "+msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.logLevel >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logf("STORE: Query failed after %s (%d rows): %v | %s", elapsed.Round(time.Microsecond), rows, err, sql)
	case elapsed > slowQueryThreshold && l.logLevel >= gormlogger.Warn:
		sql, rows := fc()
		l.logf("STORE: Slow query %s (%d rows) | %s", elapsed.Round(time.Microsecond), rows, sql)
	case l.logLevel >= gormlogger.Info:
		sql, rows := fc()
		l.logf("STORE: %s (%d rows) | %s", elapsed.Round(time.Microsecond), rows, sql)
	}
}
