package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	config "github.com/ianscrivener/draw-things-companion/internal/config/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerService interface {
	Debug(msg string, args ...any)

	Info(msg string, args ...any)

	Warn(msg string, args ...any)

	Error(msg string, args ...any)

	Fatal(msg string, args ...any)

	Named(name string) LoggerService

	// Record returns a logger that also appends Info and above to events.
	Record(events *EventLog) LoggerService
}

// output is shared by a logger and everything derived from it
type output struct {
	writer     io.Writer
	timeFormat string
	json       bool
	color      bool
}

type LoggerServiceImpl struct {
	out    *output
	name   string
	level  LogLevel
	events *EventLog
}

type jsonLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
}

func NewLoggerService(name string, cfg config.LogServerConfig) LoggerService {
	return newLogger(name, cfg, openWriter(cfg))
}

// NewNopLogger returns a LoggerService that writes nothing. Events are still
// kept once Record is used.
func NewNopLogger() LoggerService {
	return &LoggerServiceImpl{
		out:   &output{writer: io.Discard},
		level: Info,
	}
}

func newLogger(name string, cfg config.LogServerConfig, w io.Writer) *LoggerServiceImpl {
	format := cfg.TimeFormat
	if format == "" {
		format = time.RFC3339
	}

	return &LoggerServiceImpl{
		out: &output{
			writer:     w,
			timeFormat: format,
			json:       cfg.JSON,
			color:      !cfg.NoTerminal && !cfg.NoColor,
		},
		name:  name,
		level: Parse(cfg.Level),
	}
}

// openWriter sends lines to stdout and, with File set, to a rotated log file.
// Stdout is kept when nothing else is configured.
func openWriter(cfg config.LogServerConfig) io.Writer {
	var writers []io.Writer
	if !cfg.NoTerminal {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		})
	}

	switch len(writers) {
	case 0:
		return os.Stdout
	case 1:
		return writers[0]
	}
	return io.MultiWriter(writers...)
}

func (impl *LoggerServiceImpl) emit(level LogLevel, msg string, args ...any) {
	event := Event{
		Timestamp: time.Now(),
		Level:     level.String(),
		Service:   impl.name,
		Message:   fmt.Sprintf(msg, args...),
	}

	if impl.events != nil && level >= Info {
		impl.events.Append(event)
	}
	if level >= impl.level {
		impl.out.write(level, event)
	}

	if level == Fatal {
		os.Exit(1)
	}
}

func (o *output) write(level LogLevel, event Event) {
	timestamp := event.Timestamp.Format(o.timeFormat)

	if o.json {
		data, _ := json.Marshal(jsonLine{
			Timestamp: timestamp,
			Level:     event.Level,
			Service:   event.Service,
			Message:   event.Message,
		})
		fmt.Fprintf(o.writer, "%s\n", data)
		return
	}

	line := fmt.Sprintf("[%s] %-5s", timestamp, event.Level)
	if event.Service != "" {
		line += " [" + event.Service + "]"
	}
	line += " " + event.Message

	if o.color {
		fmt.Fprintf(o.writer, "%s%s\033[0m\n", Color(level), line)
	} else {
		fmt.Fprintln(o.writer, line)
	}
}

func (impl *LoggerServiceImpl) Debug(msg string, args ...any) {
	impl.emit(Debug, msg, args...)
}

func (impl *LoggerServiceImpl) Info(msg string, args ...any) {
	impl.emit(Info, msg, args...)
}

func (impl *LoggerServiceImpl) Warn(msg string, args ...any) {
	impl.emit(Warn, msg, args...)
}

func (impl *LoggerServiceImpl) Error(msg string, args ...any) {
	impl.emit(Error, msg, args...)
}

func (impl *LoggerServiceImpl) Fatal(msg string, args ...any) {
	impl.emit(Fatal, msg, args...)
}

func (impl *LoggerServiceImpl) Named(name string) LoggerService {
	if impl.name != "" {
		name = impl.name + "/" + name
	}

	derived := *impl
	derived.name = name
	return &derived
}

func (impl *LoggerServiceImpl) Record(events *EventLog) LoggerService {
	derived := *impl
	derived.events = events
	return &derived
}
