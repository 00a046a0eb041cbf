// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup sets the level ("debug", "info", ...) and format ("text" or "json").
// Empty values keep info/text.
func Setup(level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}
	return nil
}
