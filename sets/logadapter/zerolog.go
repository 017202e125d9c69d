// Package logadapter plugs common structured loggers into sets.Logger.
package logadapter

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sets-sdk/sets-sdk-go/sets"
)

type zerologLogger struct {
	l zerolog.Logger
}

// Zerolog wraps a zerolog.Logger.
func Zerolog(l zerolog.Logger) sets.Logger {
	return zerologLogger{l: l}
}

func (z zerologLogger) Debug(msg string, fields map[string]any) { z.l.Debug().Fields(fields).Msg(msg) }
func (z zerologLogger) Info(msg string, fields map[string]any)  { z.l.Info().Fields(fields).Msg(msg) }
func (z zerologLogger) Warn(msg string, fields map[string]any)  { z.l.Warn().Fields(fields).Msg(msg) }
func (z zerologLogger) Error(msg string, fields map[string]any) { z.l.Error().Fields(fields).Msg(msg) }
