package notify

import (
	"fmt"
	"io"
	"os"

	fcolor "github.com/fatih/color"
)

// MessageType selects the symbol and color of a message.
type MessageType int

const (
	// ErrorType is red with a ✗ symbol.
	ErrorType MessageType = iota
	// WarningType is yellow with a ⚠ symbol.
	WarningType
	// ActivityType is uncolored with a ► symbol.
	ActivityType
	// SuccessType is green with a ✔ symbol.
	SuccessType
)

// style returns the symbol and color for a message type.
func (t MessageType) style() (string, *fcolor.Color) {
	switch t {
	case ErrorType:
		return "✗", fcolor.New(fcolor.FgRed, fcolor.Bold)
	case WarningType:
		return "⚠", fcolor.New(fcolor.FgYellow)
	case SuccessType:
		return "✔", fcolor.New(fcolor.FgGreen)
	case ActivityType:
		return "►", fcolor.New(fcolor.Reset)
	default:
		return "►", fcolor.New(fcolor.Reset)
	}
}

// Write prints one formatted message line. A nil writer means os.Stdout.
func Write(writer io.Writer, messageType MessageType, format string, args ...any) {
	if writer == nil {
		writer = os.Stdout
	}

	symbol, color := messageType.style()

	_, _ = color.Fprintf(writer, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Errorf writes an error message to the writer.
func Errorf(writer io.Writer, format string, args ...any) {
	Write(writer, ErrorType, format, args...)
}

// Warningf writes a warning message to the writer.
func Warningf(writer io.Writer, format string, args ...any) {
	Write(writer, WarningType, format, args...)
}

// Activityf writes a progress message to the writer.
func Activityf(writer io.Writer, format string, args ...any) {
	Write(writer, ActivityType, format, args...)
}

// Successf writes a success message to the writer.
func Successf(writer io.Writer, format string, args ...any) {
	Write(writer, SuccessType, format, args...)
}
