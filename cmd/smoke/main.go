package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"stormlens-backend/pkg/api"

	"github.com/google/uuid"
)

// Drives a running backend through the full dataset lifecycle: register a
// local tile tree, wait for the scan, run an analysis, and print the report.
// Intended for poking at a dev server, not for CI.

var baseURL string

func getJSON(path string, out any) error {
	res, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("error making request: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %v", err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d, body: %s", path, res.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}

func postJSON(path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling request: %v", err)
	}

	res, err := http.Post(baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("error making request: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %v", err)
	}

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status %d, body: %s", path, res.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}

func waitForDataset(id uuid.UUID) api.Dataset {
	for {
		var ds api.Dataset
		if err := getJSON(fmt.Sprintf("/datasets/%s", id), &ds); err != nil {
			log.Fatalf("Error fetching dataset: %v", err)
		}

		fmt.Printf("dataset %s: %s (%d/%d tasks, %d records)\n", id, ds.Status, ds.CompletedTasks, ds.TotalTasks, ds.RecordCount)

		switch ds.Status {
		case "COMPLETED":
			return ds
		case "FAILED":
			log.Fatalf("Dataset scan failed: %v", ds.Errors)
		}

		time.Sleep(time.Second)
	}
}

func waitForAnalysis(id uuid.UUID) {
	for {
		var analysis api.Analysis
		if err := getJSON(fmt.Sprintf("/analyses/%s", id), &analysis); err != nil {
			log.Fatalf("Error fetching analysis: %v", err)
		}

		switch analysis.Status {
		case "COMPLETED":
			return
		case "FAILED":
			log.Fatalf("Analysis failed")
		}

		time.Sleep(time.Second)
	}
}

func main() {
	url := flag.String("url", "http://localhost:3001/api/v1", "Base URL of a running backend")
	dir := flag.String("dir", "", "Path to a local tile tree to register")
	flag.Parse()

	if *dir == "" {
		log.Fatalf("-dir must be set")
	}
	baseURL = *url

	params, err := json.Marshal(map[string]string{"RootDir": *dir})
	if err != nil {
		log.Fatalf("Error marshaling storage params: %v", err)
	}

	name := "smoke-" + time.Now().Format("20060102-150405")
	fmt.Printf("Registering dataset %s from %s\n", name, *dir)

	var created api.CreateDatasetResponse
	if err := postJSON("/datasets", api.CreateDatasetRequest{
		Name:          name,
		StorageType:   "local",
		StorageParams: params,
	}, &created); err != nil {
		log.Fatalf("Error creating dataset: %v", err)
	}

	ds := waitForDataset(created.DatasetId)
	fmt.Printf("Scan finished with %d records\n", ds.RecordCount)

	var splits []api.SplitSummary
	if err := getJSON(fmt.Sprintf("/datasets/%s/splits", created.DatasetId), &splits); err != nil {
		log.Fatalf("Error fetching splits: %v", err)
	}
	for _, split := range splits {
		fmt.Printf("  %s: damaged %d, undamaged %d\n", split.Split, split.DamagedCount, split.UndamagedCount)
	}

	var analysis api.CreateAnalysisResponse
	if err := postJSON(fmt.Sprintf("/datasets/%s/analyses", created.DatasetId), api.CreateAnalysisRequest{}, &analysis); err != nil {
		log.Fatalf("Error creating analysis: %v", err)
	}

	fmt.Printf("Waiting for analysis %s\n", analysis.AnalysisId)
	waitForAnalysis(analysis.AnalysisId)

	var report json.RawMessage
	if err := getJSON(fmt.Sprintf("/analyses/%s/report", analysis.AnalysisId), &report); err != nil {
		log.Fatalf("Error fetching report: %v", err)
	}

	pretty, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Error formatting report: %v", err)
	}
	fmt.Printf("Report:\n%s\n", pretty)
}
