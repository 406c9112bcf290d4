package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loykin/clawpanel/internal/config"
	"github.com/loykin/clawpanel/internal/settings"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func createConfigCommand(globalFlags *GlobalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit openclaw.json",
		Long: `Read and modify the openclaw configuration document directly on disk.
The file defaults to openclaw.config_path of the panel config, then
~/.openclaw/openclaw.json.

Examples:
  clawpanel config show --format yaml
  clawpanel config set agent model openai/gpt-5
  clawpanel config set channels telegram '{"botToken":"123:abc"}'`,
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "openclaw.json path")

	storeFor := func(cmd *cobra.Command) (*settings.Store, error) {
		path := file
		if path == "" && globalFlags.ConfigPath != "" {
			cfg, err := config.Load(globalFlags.ConfigPath)
			if err != nil {
				return nil, fmt.Errorf("error loading config: %w", err)
			}
			path = cfg.OpenClaw.ConfigPath
		}
		return settings.New(path, nil), nil
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the document",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor(cmd)
			if err != nil {
				return err
			}
			doc, err := st.LoadStrict()
			if err != nil {
				return err
			}
			return writeDocument(cmd, doc, format)
		},
	}
	show.Flags().StringVar(&format, "format", "json", "output format: json or yaml")

	set := &cobra.Command{
		Use:   "set <section> <key> <value>",
		Short: "Set one key of a section",
		Long: `Set section.key to value. The value is parsed as JSON when possible
(numbers, booleans, objects, arrays, quoted strings) and stored as a plain
string otherwise.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFor(cmd)
			if err != nil {
				return err
			}
			if err := st.SetField(args[0], args[1], parseValue(args[2])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s.%s updated in %s\n", args[0], args[1], st.Path())
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func writeDocument(cmd *cobra.Command, doc settings.Document, format string) error {
	w := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "", "json":
		b, err := settings.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(yamlValue(doc)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// parseValue decodes raw as JSON, falling back to the raw string.
func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

// yamlValue replaces json.Number leaves with int64 or float64 so YAML renders
// them as numbers rather than strings.
func yamlValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = yamlValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = yamlValue(e)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
