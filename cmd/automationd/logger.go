package main

import (
	"context"

	"github.com/goliatone/go-logger/glog"
	automation "github.com/livingstone45/stayspot-sub007"
)

// glogAdapter bridges a glog.Logger to the automation Logger contract.
type glogAdapter struct {
	logger glog.Logger
}

func (l glogAdapter) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogAdapter) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogAdapter) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogAdapter) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l glogAdapter) WithContext(ctx context.Context) automation.Logger {
	return glogAdapter{logger: l.logger.WithContext(ctx)}
}

func (l glogAdapter) WithFields(fields map[string]any) automation.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogAdapter{logger: fl.WithFields(fields)}
	}
	return l
}

func newLogger(level string, jsonOutput bool) automation.Logger {
	opts := []glog.Option{glog.WithLevel(level)}
	if jsonOutput {
		opts = append(opts, glog.WithLoggerTypeJSON())
	}
	return glogAdapter{logger: glog.NewLogger(opts...)}
}
