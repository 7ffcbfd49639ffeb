package log

// Record is one captured log call: level, message and the structured
// Fields it carried. Specialized for this repo's Connection idiom, where
// every FSM log line carries a "Trace" field (the per-Connection
// uuid.UUID, internal/fsm/connection.go:fields) distinguishing the
// primary and secondary legs of one peering in interleaved output — the
// teacher's own TestLogger only ever needed Messages, since GoBGP logs
// one neighbor-address field with no per-leg distinction to filter on.
type Record struct {
	Level  string
	Msg    string
	Fields Fields
}

// TestLogger is a Logger that records calls for assertions in this
// package's and internal/fsm's tests. Each call is first passed on to a
// DefaultLogger (logrus, Info level unless SetLevel changes it), so Info
// and above are still written; Panic and Fatal panic or exit there before
// their record is kept.
type TestLogger struct {
	Logger   *DefaultLogger
	Messages map[string][]string
	Records  []Record
	Level    LogLevel
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		Logger:   NewDefaultLogger(),
		Messages: make(map[string][]string),
		Level:    InfoLevel,
	}
}

func (m *TestLogger) Reset() {
	n := NewTestLogger()
	*m = *n
}

func (m *TestLogger) record(level, msg string, fields Fields) {
	m.Messages[level] = append(m.Messages[level], msg)
	m.Records = append(m.Records, Record{Level: level, Msg: msg, Fields: fields})
}

func (m *TestLogger) Panic(msg string, fields Fields) {
	m.Logger.Panic(msg, fields)
	m.record("panic", msg, fields)
}

func (m *TestLogger) Fatal(msg string, fields Fields) {
	m.Logger.Fatal(msg, fields)
	m.record("fatal", msg, fields)
}

func (m *TestLogger) Error(msg string, fields Fields) {
	m.Logger.Error(msg, fields)
	m.record("error", msg, fields)
}

func (m *TestLogger) Warn(msg string, fields Fields) {
	m.Logger.Warn(msg, fields)
	m.record("warn", msg, fields)
}

func (m *TestLogger) Info(msg string, fields Fields) {
	m.Logger.Info(msg, fields)
	m.record("info", msg, fields)
}

func (m *TestLogger) Debug(msg string, fields Fields) {
	m.Logger.Debug(msg, fields)
	m.record("debug", msg, fields)
}

func (m *TestLogger) SetLevel(level LogLevel) {
	m.Logger.SetLevel(level)
	m.Level = level
}

func (m *TestLogger) GetLevel() LogLevel {
	m.Logger.GetLevel()
	return m.Level
}

// ByTrace returns the records whose "Trace" field equals traceID, in
// call order. Used to assert that interleaved primary/secondary log
// lines for one Session stay attributable to the right Connection.
func (m *TestLogger) ByTrace(traceID string) []Record {
	var out []Record
	for _, r := range m.Records {
		if t, ok := r.Fields["Trace"].(string); ok && t == traceID {
			out = append(out, r)
		}
	}
	return out
}
