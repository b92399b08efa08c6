// Command importer uploads a historical analytics CSV to an import service.
// It announces the import, stream-parses the file locally, submits validated
// chunks to the batch endpoint, and reports the terminal signal. The server
// never sees the raw file.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
	"github.com/ignite/analytics-import/internal/worker"
)

type createResponse struct {
	Import       *domain.ImportRecord    `json:"import"`
	AllowedRange domain.AllowedDateRange `json:"allowed_date_range"`
}

type batchResponse struct {
	Success       bool   `json:"success"`
	ImportedCount int    `json:"imported_count"`
	Message       string `json:"message"`
	Error         string `json:"error"`
}

type client struct {
	baseURL string
	siteID  string
	token   string
	http    *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	url := fmt.Sprintf("%s/api/sites/%s%s", c.baseURL, c.siteID, path)
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Error)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "import service base URL")
	siteID := flag.String("site", "", "site id")
	token := flag.String("token", "", "API token (or IMPORT_TOKEN env)")
	filePath := flag.String("file", "", "path to the CSV export")
	flag.Parse()

	if *token == "" {
		*token = os.Getenv("IMPORT_TOKEN")
	}
	if *siteID == "" || *token == "" || *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}
	defer f.Close()

	api := &client{
		baseURL: *serverURL,
		siteID:  *siteID,
		token:   *token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}

	var created createResponse
	err = api.do(ctx, http.MethodPost, "/imports",
		map[string]string{"file_name": *filePath}, &created)
	if err != nil {
		log.Fatalf("Failed to create import: %v", err)
	}
	importID := created.Import.ID
	log.Printf("Import %s created (window: %d months, %s .. %s)",
		importID, created.AllowedRange.WindowMonths,
		created.AllowedRange.EarliestAllowedDate.Format("2006-01-02"),
		created.AllowedRange.LatestAllowedDate.Format("2006-01-02"))

	parser := worker.NewCSVImporter()

	// Ctrl-C cancels the parse and fails the import on the server.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("Interrupted, cancelling import")
		parser.Cancel()
	}()

	messages := parser.Start(ctx, worker.StartRequest{
		File:     f,
		SiteID:   *siteID,
		ImportID: importID,
		Allowed:  created.AllowedRange,
	})

	finished := false
	for msg := range messages {
		switch msg.Type {
		case worker.MessageProgress:
			log.Printf("Progress: parsed=%d skipped=%d errored=%d", msg.Parsed, msg.Skipped, msg.Errored)

		case worker.MessageChunk:
			var resp batchResponse
			err := api.do(ctx, http.MethodPost, "/imports/"+importID+"/events",
				map[string]any{"events": msg.Events}, &resp)
			if err != nil {
				log.Printf("Batch submission failed: %v", err)
				parser.Cancel()
				continue
			}
			if resp.Message != "" {
				log.Printf("Server: %s", resp.Message)
			}

		case worker.MessageComplete:
			log.Printf("Parse complete: parsed=%d skipped=%d errored=%d", msg.Parsed, msg.Skipped, msg.Errored)
			for _, detail := range msg.ErrorDetails {
				log.Printf("  row %d: %s", detail.Row, detail.Message)
			}
			err := api.do(ctx, http.MethodPost, "/imports/"+importID+"/complete",
				map[string]int64{"errored": msg.Errored}, nil)
			if err != nil {
				log.Fatalf("Failed to complete import: %v", err)
			}
			finished = true

		case worker.MessageError:
			log.Printf("Fatal parse error: %s", msg.Err)
		}
	}

	if !finished {
		// Cancelled or failed before EOF. Mark the import failed so it does
		// not sit in processing forever.
		if err := api.do(context.Background(), http.MethodPost, "/imports/"+importID+"/fail", nil, nil); err != nil {
			log.Printf("Failed to mark import failed: %v", err)
		}
		log.Printf("Import %s failed", importID)
		os.Exit(1)
	}
	log.Printf("Import %s completed", importID)
}
