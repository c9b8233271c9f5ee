package river_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/ciclogit/opskernel/internal/adapter/river"
	"github.com/ciclogit/opskernel/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func setupClient(t *testing.T, db *sql.DB) *riveradapter.Client {
	t.Helper()

	client, err := riveradapter.Setup(context.Background(), db)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	return client
}

func startClient(t *testing.T, client *riveradapter.Client) {
	t.Helper()

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
}

func appliedEvent() domain.AuditEvent {
	return domain.AuditEvent{
		ID:             "evt-42",
		TenantStreamID: "tnt-1",
		Seq:            7,
		Timestamp:      time.Now().UTC().Truncate(time.Second),
		ActorID:        "usr-1",
		ActorRole:      domain.RoleSupplier,
		OperationCode:  domain.OpMarketDispatchConfirm,
		CatalogVersion: domain.CatalogVersion,
		EntityKind:     domain.KindOrder,
		EntityID:       "ord-1",
		FromState:      domain.OrderCreated,
		ToState:        domain.OrderDispatched,
		Outcome:        domain.OutcomeApplied,
		PrevHash:       domain.GenesisHash,
		Hash:           "deadbeef",
	}
}

func TestPublisher_Publish_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	pub := riveradapter.NewPublisher(client)
	if err := pub.Publish(context.Background(), appliedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Wait for the worker to process the job.
	select {
	case event := <-subscribeChan:
		if event.Job.Kind != "operation.applied" {
			t.Errorf("job kind = %q, want %q", event.Job.Kind, "operation.applied")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}

func TestPublisher_Publish_PreservesEventData(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)

	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	pub := riveradapter.NewPublisher(client)
	if err := pub.Publish(context.Background(), appliedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-subscribeChan:
		args := event.Job.EncodedArgs
		if args == nil {
			t.Fatal("expected encoded args, got nil")
		}
		// The args are stored as JSON; verify key fields are present.
		argsStr := string(args)
		for _, want := range []string{
			`"event_id":"evt-42"`,
			`"tenant_stream_id":"tnt-1"`,
			`"seq":7`,
			`"operation_code":"MARKET_DISPATCH_CONFIRM"`,
			`"hash":"deadbeef"`,
		} {
			if !strings.Contains(argsStr, want) {
				t.Errorf("encoded args missing %s, got: %s", want, argsStr)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}
