package health

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"workspace-backend/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// DBPinger is optional for health check. If nil, database is reported as disconnected.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// Report is the /health/json document.
type Report struct {
	Status       string               `json:"status"`
	Runtime      RuntimeInfo          `json:"runtime"`
	Traffic      TrafficInfo          `json:"traffic"`
	Dependencies map[string]DepStatus `json:"dependencies"`
}

type RuntimeInfo struct {
	UptimeSeconds int64  `json:"uptimeSeconds"`
	HeapMB        int    `json:"heapMb"`
	Goroutines    int    `json:"goroutines"`
	Platform      string `json:"platform"`
	GoVersion     string `json:"goVersion"`
}

type TrafficInfo struct {
	TotalRequests   int         `json:"totalRequests"`
	FailedCount     int         `json:"failedCount"`
	DeniedCount     int         `json:"deniedCount"`
	SuccessRate     string      `json:"successRate"`
	AvgResponseTime string      `json:"avgResponseTime"`
	LastRequest     interface{} `json:"lastRequest"`
	Since           *time.Time  `json:"since"`
}

type DepStatus struct {
	Status string `json:"status"`
	PingMs *int64 `json:"pingMs"`
}

// Checker collects health from the store, Redis and the identity provider.
type Checker struct {
	DB          DBPinger
	Redis       *redis.Client
	IdentityURL string
	HTTP        *http.Client
	started     time.Time
}

func NewChecker(db DBPinger, rdb *redis.Client, identityURL string) *Checker {
	return &Checker{DB: db, Redis: rdb, IdentityURL: identityURL, started: time.Now()}
}

// Collect gathers the report. Status is "ok" only when the store and Redis answer.
func (h *Checker) Collect(ctx context.Context) Report {
	report := Report{Dependencies: make(map[string]DepStatus)}

	report.Dependencies["database"] = ping(func() error {
		if h.DB == nil {
			return errDisconnected
		}
		return h.DB.PingContext(ctx)
	})

	report.Dependencies["redis"] = ping(func() error {
		if h.Redis == nil {
			return errDisconnected
		}
		return h.Redis.Ping(ctx).Err()
	})
	if report.Dependencies["redis"].Status == statusConnected {
		report.Traffic = h.traffic(ctx)
	} else {
		report.Traffic = TrafficInfo{SuccessRate: "100", AvgResponseTime: "0"}
	}

	if h.IdentityURL != "" {
		report.Dependencies["identity_provider"] = ping(func() error {
			return h.httpPing(ctx, h.IdentityURL+"/auth/v1/health")
		})
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	report.Runtime = RuntimeInfo{
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		HeapMB:        int(m.HeapInuse / 1024 / 1024),
		Goroutines:    runtime.NumGoroutine(),
		Platform:      runtime.GOOS + " (" + runtime.GOARCH + ")",
		GoVersion:     runtime.Version(),
	}

	report.Status = "issue"
	if report.Dependencies["database"].Status == statusConnected && report.Dependencies["redis"].Status == statusConnected {
		report.Status = "ok"
	}
	return report
}

func (h *Checker) traffic(ctx context.Context) TrafficInfo {
	vals, _ := h.Redis.MGet(ctx,
		middleware.KeyReqTotal, middleware.KeyReqErrors, middleware.KeyReqDenied,
		middleware.KeyResTime, middleware.KeyResCount, middleware.KeyLastReq,
		middleware.KeyStartTime,
	).Result()
	str := func(i int) string {
		if i < len(vals) {
			if s, ok := vals[i].(string); ok {
				return s
			}
		}
		return ""
	}

	t := TrafficInfo{SuccessRate: "100", AvgResponseTime: "0"}
	t.TotalRequests, _ = strconv.Atoi(str(0))
	t.FailedCount, _ = strconv.Atoi(str(1))
	t.DeniedCount, _ = strconv.Atoi(str(2))
	if t.TotalRequests > 0 {
		ok := t.TotalRequests - t.FailedCount
		t.SuccessRate = strconv.FormatFloat(float64(ok)/float64(t.TotalRequests)*100, 'f', 1, 64)
	}
	timeSum, _ := strconv.ParseFloat(str(3), 64)
	if count, _ := strconv.Atoi(str(4)); count > 0 {
		t.AvgResponseTime = strconv.FormatFloat(timeSum/float64(count), 'f', 2, 64)
	}
	if last := str(5); last != "" {
		var lastReq map[string]interface{}
		if json.Unmarshal([]byte(last), &lastReq) == nil {
			t.LastRequest = lastReq
		}
	}
	if since, err := time.Parse(time.RFC3339, str(6)); err == nil {
		t.Since = &since
	}
	return t
}

func (h *Checker) httpPing(ctx context.Context, url string) error {
	client := h.HTTP
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errUnhealthy
	}
	return nil
}
