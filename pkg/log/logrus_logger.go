package log

import "github.com/sirupsen/logrus"

// DefaultLogger backs Logger with logrus, the teacher's own logging
// dependency (gobgpd wires logrus for its daemon log output).
type DefaultLogger struct {
	logger *logrus.Logger
}

func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{logger: l}
}

func toLogrusFields(f Fields) logrus.Fields {
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		lf[k] = v
	}
	return lf
}

func (d *DefaultLogger) Panic(msg string, fields Fields) { d.logger.WithFields(toLogrusFields(fields)).Panic(msg) }
func (d *DefaultLogger) Fatal(msg string, fields Fields) { d.logger.WithFields(toLogrusFields(fields)).Fatal(msg) }
func (d *DefaultLogger) Error(msg string, fields Fields) { d.logger.WithFields(toLogrusFields(fields)).Error(msg) }
func (d *DefaultLogger) Warn(msg string, fields Fields)  { d.logger.WithFields(toLogrusFields(fields)).Warn(msg) }
func (d *DefaultLogger) Info(msg string, fields Fields)  { d.logger.WithFields(toLogrusFields(fields)).Info(msg) }
func (d *DefaultLogger) Debug(msg string, fields Fields) { d.logger.WithFields(toLogrusFields(fields)).Debug(msg) }

func (d *DefaultLogger) SetLevel(level LogLevel) {
	d.logger.SetLevel(toLogrusLevel(level))
}

func (d *DefaultLogger) GetLevel() LogLevel {
	return fromLogrusLevel(d.logger.GetLevel())
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case PanicLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	case DebugLevel:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrusLevel(level logrus.Level) LogLevel {
	switch level {
	case logrus.PanicLevel:
		return PanicLevel
	case logrus.FatalLevel:
		return FatalLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.DebugLevel:
		return DebugLevel
	default:
		return InfoLevel
	}
}
