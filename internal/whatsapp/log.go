package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// zapLogger routes whatsmeow's logs into zap.
type zapLogger struct {
	s *zap.SugaredLogger
}

// Logger returns a whatsmeow logger writing through the global zap logger.
func Logger(module string) waLog.Logger {
	return &zapLogger{s: zap.S().With("namespace", "whatsmeow", "module", module)}
}

func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.s.Warnf(msg, args...) }
func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.s.Errorf(msg, args...) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.s.Infof(msg, args...) }
func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.s.Debugf(msg, args...) }

func (l *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{s: l.s.With("sub", module)}
}
