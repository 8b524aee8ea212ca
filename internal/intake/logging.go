// Soko - Realtime Commerce Event Gateway
// Copyright 2026 Soko Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sokolive/soko

package intake

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/sokolive/soko/internal/logging"
)

// wmLogger adapts the global zerolog logger to watermill's LoggerAdapter
// so broker plumbing logs land in the same stream as everything else.
// Watermill's trace level is very chatty; it maps to zerolog trace and
// stays silent at the default level.
type wmLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &wmLogger{}
}

func (l *wmLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.emit(logging.Error().Err(err), msg, fields)
}

func (l *wmLogger) Info(msg string, fields watermill.LogFields) {
	l.emit(logging.Info(), msg, fields)
}

func (l *wmLogger) Debug(msg string, fields watermill.LogFields) {
	l.emit(logging.Debug(), msg, fields)
}

func (l *wmLogger) Trace(msg string, fields watermill.LogFields) {
	l.emit(logging.Trace(), msg, fields)
}

func (l *wmLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &wmLogger{fields: l.fields.Add(fields)}
}

func (l *wmLogger) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// natsLogger adapts zerolog to the embedded NATS server's logger
// interface. Fatalf logs at error level instead of exiting: the broker
// lives inside the gateway process and a broker fault is the intake
// service's failure to report, not the whole process's.
type natsLogger struct{}

func (natsLogger) Noticef(format string, v ...interface{}) {
	logging.Info().Msgf(format, v...)
}

func (natsLogger) Warnf(format string, v ...interface{}) {
	logging.Warn().Msgf(format, v...)
}

func (natsLogger) Fatalf(format string, v ...interface{}) {
	logging.Error().Msgf(format, v...)
}

func (natsLogger) Errorf(format string, v ...interface{}) {
	logging.Error().Msgf(format, v...)
}

func (natsLogger) Debugf(format string, v ...interface{}) {
	logging.Debug().Msgf(format, v...)
}

func (natsLogger) Tracef(format string, v ...interface{}) {
	logging.Trace().Msgf(format, v...)
}
