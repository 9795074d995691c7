package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapgrid/internal/cli/config"
)

// ConfigField is one leaf key of leapgrid.yaml.
type ConfigField struct {
	Key      string
	Env      string
	Type     string
	Default  string
	Validate string

	// Value is the default as written to YAML.
	Value any
}

var durationType = reflect.TypeOf(time.Duration(0))

// configFields walks config.Config and returns its keys in declaration order.
func configFields() []ConfigField {
	defaults := config.Defaults()
	var fields []ConfigField
	walkConfig(reflect.ValueOf(defaults), "", &fields)
	return fields
}

func walkConfig(v reflect.Value, prefix string, out *[]ConfigField) {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		key := sf.Tag.Get("koanf")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		fv := v.Field(i)
		if sf.Type.Kind() == reflect.Struct && sf.Type != durationType {
			walkConfig(fv, key, out)
			continue
		}

		*out = append(*out, ConfigField{
			Key:      key,
			Env:      config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__")),
			Type:     typeName(sf.Type),
			Default:  defaultText(fv),
			Validate: sf.Tag.Get("validate"),
			Value:    yamlValue(fv),
		})
	}
}

func typeName(t reflect.Type) string {
	switch {
	case t == durationType:
		return "duration"
	case t.Kind() == reflect.Slice:
		return "list of " + t.Elem().String()
	default:
		return t.String()
	}
}

func defaultText(v reflect.Value) string {
	switch {
	case v.Type() == durationType:
		return v.Interface().(time.Duration).String()
	case v.Kind() == reflect.Slice:
		parts := make([]string, 0, v.Len())
		for i := range v.Len() {
			parts = append(parts, fmt.Sprint(v.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case v.IsZero() && v.Kind() == reflect.String:
		return ""
	default:
		return fmt.Sprint(v.Interface())
	}
}

func yamlValue(v reflect.Value) any {
	if v.Type() == durationType {
		return v.Interface().(time.Duration).String()
	}
	return v.Interface()
}

// defaultsDocument nests the default values by key for YAML output.
func defaultsDocument() map[string]any {
	doc := make(map[string]any)
	for _, f := range configFields() {
		m := doc
		parts := strings.Split(f.Key, ".")
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = f.Value
	}
	return doc
}

// generateConfigDocs writes configuration.md.
func generateConfigDocs(outDir string) error {
	log.Printf("Generating config docs to %s", outDir)

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Configuration", "LeapGrid configuration reference")
	w.GeneratedMarker()

	w.Header(1, "Configuration")
	w.Paragraph(fmt.Sprintf("LeapGrid reads %s from the working directory or the nearest parent directory. "+
		"Relative paths in the file are resolved against the directory that contains it.", InlineCode(config.DefaultConfigFile)))

	w.Header(2, "Keys")
	headers := []string{"Key", "Type", "Default", "Constraints"}
	var rows [][]string
	for _, f := range configFields() {
		def := "-"
		if f.Default != "" {
			def = InlineCode(f.Default)
		}
		constraints := "-"
		if f.Validate != "" {
			constraints = InlineCode(f.Validate)
		}
		rows = append(rows, []string{InlineCode(f.Key), f.Type, def, constraints})
	}
	w.Table(headers, rows)

	w.Header(2, "Default File")
	w.Paragraph(fmt.Sprintf("The built-in defaults are shown below. %s writes a subset of them. %s references in %s and %s are expanded from the environment.",
		InlineCode("leapgrid init"), InlineCode("${VAR}"), InlineCode("store.dsn"), InlineCode("ui.session_secret")))
	data, err := yaml.Marshal(defaultsDocument())
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	w.CodeBlock("yaml", string(data))

	filename := filepath.Join(outDir, "configuration.md")
	if err := os.WriteFile(filename, w.Bytes(), 0600); err != nil {
		return err
	}
	log.Printf("  Generated configuration.md")
	return nil
}
