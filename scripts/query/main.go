package main

import (
	"Go2FlowEval/internal/config"
	"Go2FlowEval/internal/query"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	endpoint := flag.String("endpoint", "summary", "What to fetch: 'summary' or 'flows'.")
	apiBase := flag.String("api", "http://localhost:8080", "Base URL of eval-api.")
	configFile := flag.String("config", "configs/config.yaml", "Config providing api.clickhouse for direct mode.")
	src := flag.String("src", "", "Filter: source address (either direction).")
	dst := flag.String("dst", "", "Filter: destination address (either direction).")
	proto := flag.String("proto", "", "Filter: protocol.")
	predicted := flag.String("predicted", "", "Filter: predicted label.")
	limit := flag.Int("limit", 50, "Maximum flows to return.")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		params := url.Values{}
		for k, v := range map[string]string{"src": *src, "dst": *dst, "proto": *proto, "predicted": *predicted} {
			if v != "" {
				params.Set(k, v)
			}
		}
		params.Set("limit", fmt.Sprint(*limit))
		queryViaAPI(*apiBase, *endpoint, params)
	case "direct":
		f := query.Filter{Src: *src, Dst: *dst, Proto: *proto, Limit: *limit}
		directQueryClickHouse(*configFile, *endpoint, f)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, endpoint string, params url.Values) {
	apiURL := base + "/api/v1/" + endpoint
	if endpoint == "flows" {
		apiURL += "?" + params.Encode()
	}
	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(configFile, endpoint string, f query.Filter) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	q, err := query.NewClickHouseQuerier(cfg.API.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result interface{}
	switch endpoint {
	case "summary":
		result, err = q.Summary(ctx)
	case "flows":
		result, err = q.Flows(ctx, f)
	default:
		log.Fatalf("Invalid endpoint: %s. Use 'summary' or 'flows'.", endpoint)
	}
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal result: %v", err)
	}
	log.Println("---")
	fmt.Println(string(out))
}
