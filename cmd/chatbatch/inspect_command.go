package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatbatch/internal/config"
	"chatbatch/internal/dataset"
)

func newInspectCommand() *cobra.Command {
	var dataType, format, table string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:         "inspect <file>",
		Short:       "Summarize an output, checkpoint or abandoned file",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if dataType == "" {
				dataType = inferType(path)
			}
			if dataType == "" {
				return fmt.Errorf("cannot infer the type of %s; pass --type", path)
			}
			data := config.Data{Path: path, Type: dataType, Format: format, Table: table}
			summary, err := dataset.NewLoader().Inspect(cmd.Context(), data)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(filepath.Base(path), inspectFields(summary)))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataType, "type", "", "File type: jsonl, parquet or sqlite (inferred from the extension)")
	cmd.Flags().StringVar(&format, "format", config.FormatMessagesColumn, "Row format: messages_column or prompt_column")
	cmd.Flags().StringVar(&table, "table", "requests", "SQLite table name")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the summary as JSON")
	return cmd
}

// inferType maps a file extension to a dataset type, looking through the
// checkpoint and abandoned suffixes.
func inferType(path string) string {
	base := strings.ToLower(filepath.Base(path))
	for _, suffix := range []string{".checkpoint", ".abandoned"} {
		base = strings.TrimSuffix(base, suffix)
	}
	switch filepath.Ext(base) {
	case ".jsonl", ".ndjson":
		return config.DataTypeJSONL
	case ".parquet":
		return config.DataTypeParquet
	case ".db", ".sqlite", ".sqlite3":
		return config.DataTypeSQLite
	default:
		return ""
	}
}

func inspectFields(s dataset.Summary) [][2]string {
	fields := [][2]string{
		{"Type", s.Type},
		{"Format", s.Format},
		{"Size", humanize.IBytes(uint64(max(s.SizeBytes, 0)))},
		{"Rows", humanize.Comma(int64(s.Rows))},
		{"Answered", humanize.Comma(int64(s.Answered))},
		{"With reasoning", humanize.Comma(int64(s.WithReasoning))},
		{"Messages", humanize.Comma(int64(s.Messages))},
	}
	if s.Answered > 0 {
		fields = append(fields, [2]string{"Avg reply length", fmt.Sprintf("%s chars", humanize.Comma(int64(s.ResponseChars/s.Answered)))})
	}
	return fields
}
