package log

import "strings"

type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

func Parse(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return Debug
	case "WARN", "WARNING":
		return Warn
	case "ERROR":
		return Error
	case "FATAL":
		return Fatal
	}
	return Info
}

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "INFO"
}

// Color returns the ANSI escape used for terminal output
func Color(l LogLevel) string {
	switch l {
	case Debug:
		return "\033[90m"
	case Warn:
		return "\033[33m"
	case Error, Fatal:
		return "\033[31m"
	}
	return "\033[36m"
}
