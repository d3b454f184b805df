package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndRecorderWorks(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	var rec Recorder
	rec.ObserveStart("worker")
	rec.ObserveStart("worker")
	rec.ObserveRestart("worker")
	rec.ObserveStop("worker")
	rec.RecordTransition("worker", "STARTING", "RUNNING")
	rec.SetCurrentState("worker:0", "RUNNING", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"taskmaster_instance_starts_total":           false,
		"taskmaster_instance_restarts_total":         false,
		"taskmaster_instance_stops_total":            false,
		"taskmaster_instance_state_transitions_total": false,
		"taskmaster_instance_current_state":          false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", mf.GetName())
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	var rec Recorder
	rec.ObserveStart("x")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "taskmaster_instance_starts_total") {
		t.Fatalf("metrics output missing starts_total")
	}
}

func TestConcurrentRecorderCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var rec Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.ObserveStart("c")
			rec.ObserveRestart("c")
			rec.ObserveStop("c")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestRecorderNoOpBeforeRegister(t *testing.T) {
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	var rec Recorder
	rec.ObserveStart("test")
	rec.ObserveRestart("test")
	rec.ObserveStop("test")
	rec.RecordTransition("test", "a", "b")
	rec.SetCurrentState("test:0", "RUNNING", true)
}

func TestRegisterError(t *testing.T) {
	errReg := &errorRegisterer{}
	original := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(original)

	if err := Register(errReg); err == nil {
		t.Fatal("expected error from failing registerer")
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
