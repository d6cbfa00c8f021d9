// Package logging builds the process-wide zap logger.
package logging

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON console logger. With otel set, records are also handed to the
// global OTel logger provider, so SetupLoggingSDK must run first.
func New(service string, otel bool) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), zap.InfoLevel)

	if otel {
		core = zapcore.NewTee(
			otelzap.NewCore(service, otelzap.WithLoggerProvider(global.GetLoggerProvider())),
			core,
		)
	}
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", service)),
	)
}
