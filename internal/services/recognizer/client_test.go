package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecognizeDecodesDetections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recognize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req recognizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Image == "" {
			t.Error("expected base64 image payload")
		}
		if req.SportHint != "road-running" {
			t.Errorf("unexpected sport hint %q", req.SportHint)
		}
		json.NewEncoder(w).Encode(Result{
			Detections: []Detection{
				{RaceNumber: "107", Confidence: 0.93, Category: "M40"},
				{RaceNumber: "", Confidence: 0.50},
			},
			Usage: Usage{Tokens: 812},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret", SportHint: "road-running"})
	result, err := client.Recognize(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if len(result.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(result.Detections))
	}
	best, ok := result.BestDetection()
	if !ok {
		t.Fatal("expected a best detection")
	}
	if best.RaceNumber != "107" || best.Category != "M40" {
		t.Errorf("unexpected best detection %+v", best)
	}
	if result.Usage.Tokens != 812 {
		t.Errorf("unexpected usage %+v", result.Usage)
	}
}

func TestRecognizeEmptyDetectionsIsValid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Detections: []Detection{}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	result, err := client.Recognize(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if len(result.Detections) != 0 {
		t.Fatalf("expected no detections, got %d", len(result.Detections))
	}
	if _, ok := result.BestDetection(); ok {
		t.Error("expected no best detection")
	}
}

func TestRecognizeRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Result{Detections: []Detection{{RaceNumber: "42", Confidence: 0.8}}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(4),
		WithRetryBackoff(10*time.Millisecond, 50*time.Millisecond),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	result, err := client.Recognize(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(slept) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(slept))
	}
	if got := result.Detections[0].RaceNumber; got != "42" {
		t.Errorf("unexpected detection %q", got)
	}
}

func TestRecognizeHonorsRetryAfter(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(Result{})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(2),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if _, err := client.Recognize(context.Background(), []byte("img")); err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Errorf("expected one 2s sleep, got %v", slept)
	}
}

func TestRecognizeDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, WithRetryMaxAttempts(3))
	if _, err := client.Recognize(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error for http 400")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRecognizeStopsOnCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(5),
		WithSleeper(func(time.Duration) { cancel() }),
	)
	_, err := client.Recognize(ctx, []byte("img"))
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestRecognizeClampsConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Detections: []Detection{
			{RaceNumber: "7", Confidence: 1.4},
			{RaceNumber: "9", Confidence: -0.2},
		}})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	result, err := client.Recognize(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Recognize returned error: %v", err)
	}
	if result.Detections[0].Confidence != 1 {
		t.Errorf("expected clamp to 1, got %f", result.Detections[0].Confidence)
	}
	if result.Detections[1].Confidence != 0 {
		t.Errorf("expected clamp to 0, got %f", result.Detections[1].Confidence)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
