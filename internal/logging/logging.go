// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	File  string
	JSON  bool
}

// New returns a logger writing to stderr and, when File is set, to a rotating
// log file. The returned closer releases the file.
func New(opts Options) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if !opts.JSON {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return log, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
