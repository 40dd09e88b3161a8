package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"

	"chatbatch/internal/config"
	"chatbatch/internal/logging"
	"chatbatch/internal/services"
)

// hubParquetListing is the datasets-server /parquet response.
type hubParquetListing struct {
	ParquetFiles []hubParquetFile `json:"parquet_files"`
	Error        string           `json:"error"`
}

type hubParquetFile struct {
	Dataset  string `json:"dataset"`
	Config   string `json:"config"`
	Split    string `json:"split"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// readHub resolves a HuggingFace dataset to its parquet export and reads every
// shard in URL order, stopping once limit rows have been read.
func (l *Loader) readHub(ctx context.Context, dataset, format string, limit int) ([]row, error) {
	dataset = strings.TrimSpace(dataset)
	if dataset == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "hf", "dataset name is empty", nil)
	}
	files, err := l.listHubParquet(ctx, dataset)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "ingest", "hf", fmt.Sprintf("dataset %s has no parquet export", dataset), nil)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].URL < files[j].URL })

	var rows []row
	for _, file := range files {
		l.logger.Info("downloading dataset shard",
			logging.String("dataset", dataset),
			logging.String("split", file.Split),
			logging.String("file", file.Filename),
			logging.String("size", humanize.IBytes(uint64(max(file.Size, 0)))),
		)
		data, err := l.hubGet(ctx, file.URL)
		if err != nil {
			return nil, err
		}
		shard, err := readParquetBytes(data, format)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "ingest", "hf", file.URL, err)
		}
		rows = append(rows, shard...)
		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, nil
}

func (l *Loader) listHubParquet(ctx context.Context, dataset string) ([]hubParquetFile, error) {
	endpoint := l.hubEndpoint + "/parquet?" + url.Values{"dataset": {dataset}}.Encode()
	body, err := l.hubGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var listing hubParquetListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "hf", "decode parquet listing", err)
	}
	if listing.Error != "" {
		return nil, services.Wrap(services.ErrExternalTool, "ingest", "hf", listing.Error, nil)
	}
	return listing.ParquetFiles, nil
}

func (l *Loader) hubGet(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "hf", target, err)
	}
	if l.hubToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.hubToken)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "hf", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "hf", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, "ingest", "hf", fmt.Sprintf("GET %s: status %d: %s", target, resp.StatusCode, snippet), nil)
	}
	return body, nil
}

func readParquetBytes(data []byte, format string) ([]row, error) {
	reader := bytes.NewReader(data)
	if format == config.FormatMessagesColumn {
		records, err := parquet.Read[messagesRecord](reader, reader.Size())
		if err != nil {
			return nil, err
		}
		return messagesRows(records), nil
	}
	records, err := parquet.Read[promptRecord](reader, reader.Size())
	if err != nil {
		return nil, err
	}
	return promptRows(records), nil
}
