package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/geopix/geopix-back/internal/auth"
	httpserver "github.com/geopix/geopix-back/internal/http"
	"github.com/geopix/geopix-back/internal/http/handlers"
	"github.com/geopix/geopix-back/internal/media"
	"github.com/geopix/geopix-back/internal/notify"
	"github.com/geopix/geopix-back/internal/queue"
	"github.com/geopix/geopix-back/internal/repository"
	"github.com/geopix/geopix-back/internal/service"
	"github.com/geopix/geopix-back/internal/worker"

	"github.com/geopix/geopix-back/internal/broadcast"
	"github.com/geopix/geopix-back/internal/domain"
	"github.com/google/uuid"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	token  string
	cancel context.CancelFunc
}

var pngPayload = append(
	[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	bytes.Repeat([]byte{0x42}, 256)...,
)

func main() {
	submitTotal := flag.Int("submit-total", 200, "total upload submissions")
	submitConcurrency := flag.Int("submit-concurrency", 16, "concurrency for submissions")
	listTotal := flag.Int("list-total", 200, "total list requests")
	listConcurrency := flag.Int("list-concurrency", 24, "concurrency for list requests")
	detailTotal := flag.Int("detail-total", 200, "total detail requests")
	detailConcurrency := flag.Int("detail-concurrency", 24, "concurrency for detail requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	encodedImage := base64.StdEncoding.EncodeToString(pngPayload)

	submittedIDs := make([]string, 0, *submitTotal)
	var submittedMu sync.Mutex

	submitScenario := runScenario("uploads_submit", *submitTotal, *submitConcurrency, func(index int) error {
		payload := map[string]any{
			"title":    fmt.Sprintf("Load test image %d", index),
			"source":   "api",
			"metadata": map[string]any{"batch": index % 8},
			"image":    encodedImage,
		}
		var response struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := postJSON(client, env, "/image-upload", payload, http.StatusCreated, &response); err != nil {
			return err
		}
		submittedMu.Lock()
		submittedIDs = append(submittedIDs, response.Data.ID)
		submittedMu.Unlock()
		return nil
	})

	listScenario := runScenario("uploads_list", *listTotal, *listConcurrency, func(index int) error {
		return getJSON(client, env, fmt.Sprintf("/image-upload?limit=%d", 10+(index%40)), http.StatusOK)
	})

	detailScenario := runScenario("uploads_detail", *detailTotal, *detailConcurrency, func(index int) error {
		submittedMu.Lock()
		count := len(submittedIDs)
		if count == 0 {
			submittedMu.Unlock()
			return fmt.Errorf("no submitted uploads to read")
		}
		id := submittedIDs[index%count]
		submittedMu.Unlock()
		return getJSON(client, env, "/image-upload/"+id, http.StatusOK)
	})

	results := []scenarioResult{submitScenario, listScenario, detailScenario}
	slo := map[string]bool{
		"submit_p95_le_500ms": submitScenario.P95MS <= 500,
		"detail_p95_le_200ms": detailScenario.P95MS <= 200,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	uploadsRepo := repository.NewMemoryUploadsRepository()
	usersRepo := repository.NewMemoryUsersRepository()
	localQueue := queue.NewLocalQueue(4096, logger)
	localQueue.StartLoopback(ctx)

	passwordHash, err := auth.HashPassword("loadpassword")
	if err != nil {
		cancel()
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        "load@geopix.local",
		Name:         "Load User",
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := usersRepo.CreateUser(ctx, user); err != nil {
		cancel()
		return nil, err
	}

	store := media.StoreFunc(func(_ context.Context, uploadID string, _ []byte) (string, error) {
		return "http://localhost/storage/images/" + uploadID + ".png", nil
	})

	authService := auth.NewService(usersRepo)
	uploadsService := service.NewUploadsService(uploadsRepo, localQueue, store, logger, 5*time.Minute)
	dispatcher := notify.NewDispatcher(notify.SinkFunc(nil), "http://localhost:8080")
	broadcaster := broadcast.BroadcasterFunc(nil)

	api := handlers.NewAPI(uploadsService, authService)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Resolver:       authService,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, uploadsRepo, dispatcher, broadcaster, logger, 5*time.Second)
	go processor.Start(ctx)

	server := httptest.NewServer(router)

	token, _, err := authService.Login(ctx, user.Email, "loadpassword")
	if err != nil {
		cancel()
		server.Close()
		return nil, err
	}

	return &benchmarkEnv{
		server: server,
		token:  token,
		cancel: cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	env *benchmarkEnv,
	path string,
	payload any,
	expectedStatus int,
	out any,
) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+env.token)

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	if out != nil {
		return json.NewDecoder(response.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func getJSON(client *http.Client, env *benchmarkEnv, path string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+env.token)

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
