// Package config provides YAML configuration loading for the trap mapper.
//
// Trap definitions are read from one directory tree, located through an
// environment variable:
//
//	PROCESSOR_SNMP_TRAP_DEFINITIONS_DIRECTORY_PATH → Definitions map
//
// Each file is a map of type ID to definition:
//
//	fake-trap:
//	  trap_oid: 1.3.6.1.4.1.500.12
//	  description: Example trap
//	  fields:
//	    - name: sys_up_time
//	      oid: 1.3.6.1.2.1.1.3.0
//	      syntax: unsigned
//	    - name: source
//	      from: source_address
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vpbank/snmp_trapmap/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// EnvTrapDefinitions names the variable holding the definitions directory.
const EnvTrapDefinitions = "PROCESSOR_SNMP_TRAP_DEFINITIONS_DIRECTORY_PATH"

// Paths holds the directory locations for every configuration tree.
type Paths struct {
	Traps string // PROCESSOR_SNMP_TRAP_DEFINITIONS_DIRECTORY_PATH
}

// PathsFromEnv reads each path from its environment variable, falling back to
// the documented default when the variable is unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Traps: envOr(EnvTrapDefinitions, "/etc/snmp_trapmap/snmp/traps"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ─────────────────────────────────────────────────────────────────────────────
// LoadedConfig
// ─────────────────────────────────────────────────────────────────────────────

// LoadedConfig is the fully parsed representation of all configuration trees.
type LoadedConfig struct {
	// Definitions maps type ID → TrapDefinition.
	Definitions map[string]models.TrapDefinition
}

// TypeIDs returns the definition keys in sorted order.
func (c *LoadedConfig) TypeIDs() []string {
	ids := make([]string, 0, len(c.Definitions))
	for id := range c.Definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ─────────────────────────────────────────────────────────────────────────────
// Load
// ─────────────────────────────────────────────────────────────────────────────

// Load reads all configuration directories specified by paths. Errors from
// individual definitions are accumulated and returned together so that
// operators see all problems at once.
//
// A missing directory is not an error; the result is simply empty. A file
// that is not valid YAML, or holds no document at all (as when an editor has
// truncated it mid-save), is an error: skipping it would silently drop the
// types it defines.
func Load(paths Paths, logger *slog.Logger) (*LoadedConfig, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	defs, errs := loadTrapDefs(paths.Traps, logger)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %d error(s):\n  %s", len(errs), strings.Join(errs, "\n  "))
	}
	return &LoadedConfig{Definitions: defs}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Trap definitions
// ─────────────────────────────────────────────────────────────────────────────

type rawTrapFile map[string]rawTrapBody

type rawTrapBody struct {
	TrapOID     string     `yaml:"trap_oid"`
	Description string     `yaml:"description"`
	Fields      []rawField `yaml:"fields"`
}

type rawField struct {
	Name   string `yaml:"name"`
	OID    string `yaml:"oid"`
	Syntax string `yaml:"syntax"`
	From   string `yaml:"from"`
}

func loadTrapDefs(dir string, logger *slog.Logger) (map[string]models.TrapDefinition, []string) {
	out := make(map[string]models.TrapDefinition)
	files, err := yamlFiles(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, []string{fmt.Sprintf("list trap definitions dir %q: %v", dir, err)}
	}

	var errs []string
	for _, path := range files {
		var raw rawTrapFile
		if err := decodeFile(path, &raw); err != nil {
			logger.Warn("config: malformed trap definitions file", "file", path, "error", err.Error())
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		for id, body := range raw {
			if prev, dup := out[id]; dup {
				errs = append(errs, fmt.Sprintf("%s: type %q already defined in %s", path, id, prev.File))
				continue
			}
			def, err := convertTrapDef(id, path, body)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			out[id] = def
		}
		logger.Debug("config: loaded trap definitions", "file", path, "count", len(raw))
	}
	sort.Strings(errs)
	return out, errs
}

func convertTrapDef(id, path string, b rawTrapBody) (models.TrapDefinition, error) {
	def := models.TrapDefinition{
		TypeID:      id,
		TrapOID:     normaliseOID(b.TrapOID),
		Description: b.Description,
		File:        path,
		Fields:      make([]models.FieldDefinition, 0, len(b.Fields)),
	}
	seen := make(map[string]bool, len(b.Fields))
	for i, f := range b.Fields {
		if f.Name == "" {
			return def, fmt.Errorf("type %q: field %d has no name", id, i)
		}
		if seen[f.Name] {
			return def, fmt.Errorf("type %q: field %q declared twice", id, f.Name)
		}
		seen[f.Name] = true
		def.Fields = append(def.Fields, models.FieldDefinition{
			Name:   f.Name,
			OID:    normaliseOID(f.OID),
			Syntax: strings.ToLower(strings.TrimSpace(f.Syntax)),
			From:   strings.ToLower(strings.TrimSpace(f.From)),
		})
	}
	if _, err := Descriptor(def); err != nil {
		return def, err
	}
	return def, nil
}

// normaliseOID strips surrounding space and the net-snmp leading dot.
func normaliseOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// yamlFiles returns all *.yml / *.yaml files under dir, sorted by path.
func yamlFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}
		return nil
	})
	return paths, err
}

// decodeFile opens path and unmarshals the YAML content into out.
func decodeFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(false) // extra keys are ignored
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty definitions file")
		}
		return err
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
