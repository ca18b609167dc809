// ABOUTME: Tests for MCP server, tools, and resources.
// ABOUTME: Drives a full workout through the tool handlers over memory and SQLite backends.
package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/kv"
	"github.com/harperreed/lift/internal/models"
	"github.com/harperreed/lift/internal/plans"
	"github.com/harperreed/lift/internal/storage"
)

func testPlan() *models.WorkoutPlan {
	return &models.WorkoutPlan{
		ID:   "upper",
		Name: "Upper",
		Exercises: []models.PlanExercise{
			{ID: "bench", Name: "Bench Press", Sets: 1, Reps: 5, Load: 80},
			{ID: "row", Name: "Barbell Row", Sets: 1, Reps: 8, Load: 60},
		},
	}
}

// setupTestServer creates a server over a memory store and a temp SQLite repo.
func setupTestServer(t *testing.T) *Server {
	t.Helper()
	return openTestServer(t, kv.NewMemory())
}

// openTestServer creates a server over store, as a fresh process would.
func openTestServer(t *testing.T, store kv.Store) *Server {
	t.Helper()

	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "lift.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eng, err := engine.New(engine.Options{
		Store: store,
		Repo:  repo,
		Plans: plans.NewStatic(testPlan()),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	server, err := NewServer(eng, repo)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func TestNewServer(t *testing.T) {
	server := setupTestServer(t)
	if server.mcpServer == nil {
		t.Error("Expected non-nil mcpServer")
	}
	if server.engine == nil {
		t.Error("Expected non-nil engine")
	}
}

func TestWorkoutThroughTools(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	_, out, err := server.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	if err != nil {
		t.Fatalf("start_session failed: %v", err)
	}
	if !out.OK || out.State.ExerciseID != "bench" || out.State.TotalSets != 2 {
		t.Fatalf("Unexpected start output: %+v", out)
	}

	_, out, err = server.handleConfirmSet(ctx, req, setInput{ExerciseIndex: 0, SetIndex: 1, Load: 80, Reps: 5})
	if err != nil {
		t.Fatalf("confirm_set failed: %v", err)
	}
	if !out.OK || out.State.Status != "resting" || out.State.ExerciseID != "row" {
		t.Errorf("Unexpected confirm output: %+v", out.State)
	}

	_, out, _ = server.handleConfirmSet(ctx, req, setInput{ExerciseIndex: 0, SetIndex: 1, Load: 80, Reps: 5})
	if out.OK || out.Code != string(engine.CodeDuplicateSet) {
		t.Errorf("Expected duplicate-set, got %+v", out)
	}

	_, out, _ = server.handleSkipRest(ctx, req, emptyInput{})
	if !out.OK || out.State.Status != "active" {
		t.Errorf("Unexpected skip output: %+v", out)
	}

	_, out, _ = server.handleFailSet(ctx, req, setInput{ExerciseIndex: 1, SetIndex: 1, Load: 60, Reps: 6})
	if !out.OK || out.State.Status != "finalizing" {
		t.Errorf("Unexpected fail output: %+v", out)
	}

	effort := 8
	_, out, err = server.handleFinish(ctx, req, finishInput{Effort: &effort, Notes: "solid"})
	if err != nil {
		t.Fatalf("finish_session failed: %v", err)
	}
	if !out.OK || out.Record == nil || out.Record.TotalSets != 2 || out.Record.FailedSets != 1 {
		t.Errorf("Unexpected finish output: %+v", out)
	}
	if len(out.Steps) != 3 {
		t.Errorf("Expected 3 steps, got %d", len(out.Steps))
	}

	_, hist, err := server.handleListHistory(ctx, req, historyInput{})
	if err != nil {
		t.Fatalf("list_history failed: %v", err)
	}
	if len(hist.Sessions) != 1 || hist.Sessions[0].Notes != "solid" {
		t.Errorf("Unexpected history: %+v", hist)
	}
}

func TestToolsWithoutSession(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	tests := []struct {
		name string
		call func() (resultOutput, error)
		code engine.Code
	}{
		{"confirm", func() (resultOutput, error) {
			_, out, err := server.handleConfirmSet(ctx, req, setInput{SetIndex: 1})
			return out, err
		}, engine.CodeNoActiveSession},
		{"pause", func() (resultOutput, error) {
			_, out, err := server.handlePause(ctx, req, emptyInput{})
			return out, err
		}, engine.CodeNoActiveSession},
		{"finish", func() (resultOutput, error) {
			_, out, err := server.handleFinish(ctx, req, finishInput{})
			return out, err
		}, engine.CodeNoActiveSession},
		{"unknown plan", func() (resultOutput, error) {
			_, out, err := server.handleStartSession(ctx, req, startSessionInput{PlanID: "legs"})
			return out, err
		}, engine.CodePlanNotFound},
		{"resume recovered", func() (resultOutput, error) {
			_, out, err := server.handleResumeRecovered(ctx, req, emptyInput{})
			return out, err
		}, engine.CodeNoOffer},
		{"retry", func() (resultOutput, error) {
			_, out, err := server.handleRetryFinalize(ctx, req, emptyInput{})
			return out, err
		}, engine.CodeNothingToRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.call()
			if err != nil {
				t.Fatalf("Expected no tool error, got %v", err)
			}
			if out.OK || out.Code != string(tt.code) {
				t.Errorf("Expected code %s, got %+v", tt.code, out)
			}
			if out.Message == "" {
				t.Error("Expected a reason in the message")
			}
		})
	}
}

func TestCheckRecoveryNothing(t *testing.T) {
	server := setupTestServer(t)
	_, out, err := server.handleCheckRecovery(context.Background(), &mcp.CallToolRequest{}, recoveryInput{})
	if err != nil {
		t.Fatalf("check_recovery failed: %v", err)
	}
	if !out.OK || out.Offer == nil || out.Offer.Decision != "none" {
		t.Errorf("Unexpected output: %+v", out)
	}
}

func TestListPlans(t *testing.T) {
	server := setupTestServer(t)
	_, out, err := server.handleListPlans(context.Background(), &mcp.CallToolRequest{}, emptyInput{})
	if err != nil {
		t.Fatalf("list_plans failed: %v", err)
	}
	if len(out.Plans) != 1 || out.Plans[0].ID != "upper" {
		t.Errorf("Unexpected plans: %+v", out.Plans)
	}
}

func TestResources(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		uri     string
		handler func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
		want    string
	}{
		{"lift://status", server.handleStatusResource, `"status": "not-started"`},
		{"lift://plans", server.handlePlansResource, `"id": "upper"`},
		{"lift://history", server.handleHistoryResource, `No sessions found.`},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			res, err := tt.handler(ctx, &mcp.ReadResourceRequest{})
			if err != nil {
				t.Fatalf("Read %s failed: %v", tt.uri, err)
			}
			if len(res.Contents) != 1 {
				t.Fatalf("Expected 1 content, got %d", len(res.Contents))
			}
			c := res.Contents[0]
			if c.URI != tt.uri || c.MIMEType != "application/json" {
				t.Errorf("Unexpected content header: %s %s", c.URI, c.MIMEType)
			}
			if !json.Valid([]byte(c.Text)) {
				t.Errorf("Invalid JSON: %s", c.Text)
			}
			if !strings.Contains(c.Text, tt.want) {
				t.Errorf("Expected %q in %s", tt.want, c.Text)
			}
		})
	}
}

func TestInterruptedSessionIsOfferedOnStartup(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	crashed := openTestServer(t, store)
	_, out, _ := crashed.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	if !out.OK {
		t.Fatalf("start_session failed: %+v", out)
	}
	sessionID := out.State.SessionID
	_, out, _ = crashed.handleConfirmSet(ctx, req, setInput{ExerciseIndex: 0, SetIndex: 1, Load: 80, Reps: 5})
	if !out.OK {
		t.Fatalf("confirm_set failed: %+v", out)
	}

	server := openTestServer(t, store)
	res, err := server.checkRecovery(ctx)
	if err != nil {
		t.Fatalf("checkRecovery failed: %v", err)
	}
	if res.Offer == nil || res.Offer.SessionID != sessionID {
		t.Fatalf("Expected an offer for %s, got %+v", sessionID, res.Offer)
	}

	_, out, err = server.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	if err != nil {
		t.Fatalf("start_session failed: %v", err)
	}
	if out.OK || out.Code != string(engine.CodeRecoveryPending) {
		t.Fatalf("Expected recovery-pending, got %+v", out)
	}
	if out.Offer == nil || out.Offer.SetsLogged != 1 {
		t.Errorf("Expected the offer with 1 set, got %+v", out.Offer)
	}

	_, out, _ = server.handleResumeRecovered(ctx, req, emptyInput{})
	if !out.OK || out.State.SessionID != sessionID || out.State.CompletedSets != 1 {
		t.Errorf("Unexpected resume output: %+v", out)
	}
}

func TestStartWithoutRecoveryCheckKeepsSnapshot(t *testing.T) {
	store := kv.NewMemory()
	ctx := context.Background()
	req := &mcp.CallToolRequest{}

	crashed := openTestServer(t, store)
	crashed.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	crashed.handleConfirmSet(ctx, req, setInput{ExerciseIndex: 0, SetIndex: 1, Load: 80, Reps: 5})

	server := openTestServer(t, store)
	_, out, _ := server.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	if out.OK || out.Code != string(engine.CodeRecoveryPending) {
		t.Fatalf("Expected recovery-pending, got %+v", out)
	}

	_, out, _ = server.handleDiscardRecovered(ctx, req, emptyInput{})
	if !out.OK {
		t.Fatalf("discard_recovered failed: %+v", out)
	}
	_, out, _ = server.handleStartSession(ctx, req, startSessionInput{PlanID: "upper"})
	if !out.OK || out.State.CompletedSets != 0 {
		t.Errorf("Expected a fresh session, got %+v", out)
	}
}
