package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultArtifactName is the file name plugins look for in the temp directory.
const DefaultArtifactName = "selected_proxy.txt"

// Format is the serialization of a materialized proxy.
type Format string

const (
	// FormatColon writes "host:port:username:password" with no escaping.
	FormatColon Format = "colon"
	// FormatJSON writes the record as a single-line JSON object.
	FormatJSON Format = "json"
)

// DefaultArtifactPath returns the well-known shared artifact location.
func DefaultArtifactPath() string {
	return filepath.Join(os.TempDir(), DefaultArtifactName)
}

// UniqueArtifactPath returns an artifact path owned by a single launcher instance,
// so concurrent launchers do not overwrite each other's proxy.
func UniqueArtifactPath() string {
	return filepath.Join(os.TempDir(), "skunkscrape-proxy-"+uuid.New().String()+".txt")
}

// Materializer writes the selected proxy to a fixed path for the child process.
// The file is truncated on every write and never removed.
type Materializer struct {
	path   string
	format Format
	logger zerolog.Logger
}

// NewMaterializer creates a Materializer writing to path in the given format.
// An empty path selects DefaultArtifactPath and an empty format FormatColon.
func NewMaterializer(path string, format Format, logger zerolog.Logger) *Materializer {
	if path == "" {
		path = DefaultArtifactPath()
	}
	if format == "" {
		format = FormatColon
	}
	return &Materializer{
		path:   path,
		format: format,
		logger: logger,
	}
}

// Path returns the artifact location.
func (m *Materializer) Path() string {
	return m.path
}

// Materialize writes rec and returns the artifact path. A nil record writes
// nothing and returns ok=false, meaning the plugin runs without a proxy.
func (m *Materializer) Materialize(rec *Record) (path string, ok bool, err error) {
	if rec == nil {
		return "", false, nil
	}

	content, err := m.encode(*rec)
	if err != nil {
		return "", false, err
	}

	if err := os.WriteFile(m.path, content, 0600); err != nil {
		return "", false, fmt.Errorf("failed to write proxy file: %w", err)
	}

	m.logger.Debug().Str("path", m.path).Str("proxy", rec.Address()).Msg("Proxy materialized.")
	return m.path, true, nil
}

func (m *Materializer) encode(rec Record) ([]byte, error) {
	switch m.format {
	case FormatJSON:
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal proxy: %w", err)
		}
		return data, nil
	case FormatColon:
		if strings.Contains(rec.Username, ":") || strings.Contains(rec.Password, ":") || strings.Contains(rec.Host, ":") {
			m.logger.Warn().Str("proxy", rec.Address()).Msg("Proxy credential contains ':'; colon format is ambiguous, consider the json format.")
		}
		return []byte(EncodeColon(rec)), nil
	default:
		return nil, fmt.Errorf("unknown proxy format %q", m.format)
	}
}

// EncodeColon renders rec as "host:port:username:password".
func EncodeColon(rec Record) string {
	return strings.Join([]string{
		rec.Host,
		strconv.Itoa(rec.Port),
		rec.Username,
		rec.Password,
	}, ":")
}
