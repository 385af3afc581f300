package scheduler

import (
	"context"
	"testing"
	"time"

	"gigroute_backend/internal/routing/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string             { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool       { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string       { return "routing" }
func (c testSchedulerConfig) GetAsynqConcurrency() int        { return 1 }
func (c testSchedulerConfig) GetSweepInterval() time.Duration { return time.Second }

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("expected an error without a redis url")
	}
}

func TestSchedulePhaseExpiryEnqueuesScheduledTask(t *testing.T) {
	srv := miniredis.RunT(t)

	cfg := testSchedulerConfig{redisURL: "redis://" + srv.Addr()}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	leadID := uuid.New()
	runAt := time.Now().UTC().Add(30 * time.Minute)
	if err := client.SchedulePhaseExpiry(context.Background(), leadID, domain.PhaseExclusive, runAt); err != nil {
		t.Fatalf("SchedulePhaseExpiry: %v", err)
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	inspector := asynq.NewInspector(opt)
	defer func() { _ = inspector.Close() }()

	tasks, err := inspector.ListScheduledTasks("routing")
	if err != nil {
		t.Fatalf("ListScheduledTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(tasks))
	}
	if tasks[0].Type != TaskPhaseExpiry {
		t.Fatalf("task type = %s, want %s", tasks[0].Type, TaskPhaseExpiry)
	}

	payload, err := ParsePhaseExpiryPayload(asynq.NewTask(tasks[0].Type, tasks[0].Payload))
	if err != nil {
		t.Fatalf("ParsePhaseExpiryPayload: %v", err)
	}
	if payload.LeadID != leadID.String() {
		t.Fatalf("payload lead id = %s, want %s", payload.LeadID, leadID)
	}
	if payload.Phase != string(domain.PhaseExclusive) {
		t.Fatalf("payload phase = %s, want exclusive", payload.Phase)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if err := c.SchedulePhaseExpiry(context.Background(), uuid.New(), domain.PhaseOpen, time.Now()); err != nil {
		t.Fatalf("nil client schedule: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil client close: %v", err)
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	if opt.Addr != "localhost:6380" {
		t.Fatalf("addr = %s", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Fatalf("password = %s", opt.Password)
	}
	if opt.DB != 2 {
		t.Fatalf("db = %d", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Fatal("plain redis url must not carry tls config")
	}

	opt, err = redisClientOpt("rediss://localhost:6380", true)
	if err != nil {
		t.Fatalf("redisClientOpt tls: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("expected insecure tls config for rediss url with insecure flag")
	}
}
