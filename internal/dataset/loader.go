package dataset

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	_ "modernc.org/sqlite"

	"chatbatch/internal/config"
	"chatbatch/internal/logging"
	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

// DefaultHubEndpoint is the HuggingFace datasets-server.
const DefaultHubEndpoint = "https://datasets-server.huggingface.co"

const (
	hubRequestTimeout = 5 * time.Minute
	maxJSONLLineBytes = 64 << 20
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Loader reads a configured dataset into work items.
type Loader struct {
	httpClient  *http.Client
	hubEndpoint string
	hubToken    string
	logger      *slog.Logger
}

// Option customizes a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for hf downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) {
		if client != nil {
			l.httpClient = client
		}
	}
}

// WithHubEndpoint overrides the datasets-server base URL.
func WithHubEndpoint(endpoint string) Option {
	return func(l *Loader) {
		l.hubEndpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
}

// WithHubToken sets the bearer token for gated or private hf datasets.
func WithHubToken(token string) Option {
	return func(l *Loader) {
		l.hubToken = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger used for download progress.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader constructs a Loader. The hf token defaults to HF_TOKEN, then
// HUGGING_FACE_HUB_TOKEN.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		httpClient:  &http.Client{Timeout: hubRequestTimeout},
		hubEndpoint: DefaultHubEndpoint,
		hubToken:    HubTokenFromEnv(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.NewNop()
	}
	return l
}

// HubTokenFromEnv returns HF_TOKEN or HUGGING_FACE_HUB_TOKEN.
func HubTokenFromEnv() string {
	for _, name := range []string{"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN"} {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return ""
}

// Load reads data, applies the row limit, and projects each row into a work
// item whose ID is its row index.
func (l *Loader) Load(ctx context.Context, data config.Data, model config.Model) ([]workitem.Item, error) {
	rows, err := l.readRows(ctx, data)
	if err != nil {
		return nil, err
	}
	if data.Limit > 0 && len(rows) > data.Limit {
		rows = rows[:data.Limit]
	}
	items, err := Project(rows, data.Format, model)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("dataset loaded",
		logging.String("type", data.Type),
		logging.String("format", data.Format),
		logging.Int("count", len(items)),
	)
	return items, nil
}

func (l *Loader) readRows(ctx context.Context, data config.Data) ([]row, error) {
	switch data.Type {
	case config.DataTypeJSONL:
		return readJSONL(data.Path, data.Limit)
	case config.DataTypeParquet:
		return readParquetFile(data.Path, data.Format)
	case config.DataTypeSQLite:
		return readSQLite(ctx, data.Path, data.Table, data.Format, data.Limit)
	case config.DataTypeHF:
		return l.readHub(ctx, data.Path, data.Format, data.Limit)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "load", fmt.Sprintf("unsupported data type %q", data.Type), nil)
	}
}

func readJSONL(path string, limit int) ([]row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "open jsonl", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLineBytes)
	var rows []row
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec struct {
			Messages  []messageRecord `json:"messages"`
			Prompt    *string         `json:"prompt"`
			Response  string          `json:"response"`
			Reasoning string          `json:"reasoning"`
		}
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "decode jsonl", fmt.Sprintf("line %d", line), err)
		}
		rows = append(rows, row{Messages: rec.Messages, Prompt: rec.Prompt, Response: rec.Response, Reasoning: rec.Reasoning})
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "read jsonl", path, err)
	}
	return rows, nil
}

func readParquetFile(path, format string) ([]row, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "open parquet", path, err)
	}
	switch format {
	case config.FormatMessagesColumn:
		records, err := parquet.ReadFile[messagesRecord](path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "read parquet", path, err)
		}
		return messagesRows(records), nil
	default:
		records, err := parquet.ReadFile[promptRecord](path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "read parquet", path, err)
		}
		return promptRows(records), nil
	}
}

func readSQLite(ctx context.Context, path, table, format string, limit int) ([]row, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "sqlite", fmt.Sprintf("invalid table name %q", table), nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "open sqlite", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "open sqlite", path, err)
	}
	defer db.Close()

	column := "prompt"
	if format == config.FormatMessagesColumn {
		column = "messages"
	}
	selectList := column
	withResponse := false
	if column == "prompt" {
		withResponse, err = hasColumn(ctx, db, table, "response")
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "inspect sqlite", table, err)
		}
		if withResponse {
			selectList = "prompt, response"
		}
	}
	query := fmt.Sprintf(`SELECT %s FROM %q ORDER BY rowid`, selectList, table)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	result, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "query sqlite", table, err)
	}
	defer result.Close()

	var rows []row
	for result.Next() {
		var value, response sql.NullString
		dest := []any{&value}
		if withResponse {
			dest = append(dest, &response)
		}
		if err := result.Scan(dest...); err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "scan sqlite", table, err)
		}
		switch {
		case column == "prompt" && value.Valid:
			prompt := value.String
			rows = append(rows, row{Prompt: &prompt, Response: response.String})
		case column == "prompt":
			rows = append(rows, row{})
		default:
			var messages []messageRecord
			if value.Valid {
				if err := json.Unmarshal([]byte(value.String), &messages); err != nil {
					return nil, services.Wrap(services.ErrValidation, "ingest", "decode sqlite messages", fmt.Sprintf("row %d", len(rows)+1), err)
				}
			}
			rows = append(rows, row{Messages: messages})
		}
	}
	if err := result.Err(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "read sqlite", table, err)
	}
	return rows, nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info(%s)`, quoteLiteral(table)))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
