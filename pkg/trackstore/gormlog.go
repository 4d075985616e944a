package trackstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const maxLoggedSQL = 512

// gormLogger routes GORM's logging into the store Logger. Statement errors
// are returned to callers, so they are only traced at debug level.
type gormLogger struct {
	log   Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(log Logger, slow time.Duration, trace bool) gormlogger.Interface {
	level := gormlogger.Warn
	if trace {
		level = gormlogger.Info
	}
	return &gormLogger{log: log, level: level, slow: slow}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Debugf("sql failed after %s (rows=%d): %v: %s", elapsed, rows, err, clipSQL(sql))
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warnf("slow sql %s (rows=%d): %s", elapsed, rows, clipSQL(sql))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debugf("sql %s (rows=%d): %s", elapsed, rows, clipSQL(sql))
	}
}

// clipSQL keeps code IN lists from flooding the log.
func clipSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}
