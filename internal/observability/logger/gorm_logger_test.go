package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestSQLVerb(t *testing.T) {
	assert.Equal(t, "SELECT", sqlVerb("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "INSERT", sqlVerb("insert into kv_properties values (?)"))
	assert.Equal(t, "OTHER", sqlVerb(""))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        10 * time.Millisecond,
		IgnoreRecordNotFound: true,
	})
	sql := func() (string, int64) { return "SELECT * FROM companies", 1 }

	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk full"))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	slow := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if assert.Len(t, slow, 1) {
		assert.Equal(t, "SELECT", slow[0].ContextMap()["operation"])
	}

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}
