package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup installs the process-wide log handler writing to stdout
func Setup(level, format string) error {
	return SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs a json or text handler on w at the given level
func SetupWriter(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "text":
		log.SetHandler(text.New(w))
	case "json":
		log.SetHandler(json.New(w))
	default:
		return fmt.Errorf("log format must be 'json' or 'text', got: %s", format)
	}
	log.SetLevel(lvl)
	return nil
}
