package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil { lvl = zerolog.InfoLevel }
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// NewFileLogger writes to the given file and stderr at once. The caller owns
// closing the returned file.
func NewFileLogger(level, path string) (zerolog.Logger, *os.File, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil { lvl = zerolog.InfoLevel }
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	writer := zerolog.MultiLevelWriter(file, zerolog.ConsoleWriter{Out: os.Stderr})
	return zerolog.New(writer).With().Timestamp().Logger().Level(lvl), file, nil
}
