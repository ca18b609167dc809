// ABOUTME: MCP tool implementations for driving a workout session.
// ABOUTME: Expected rejections come back as ok=false with a code, never as tool errors.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/lift/internal/completion"
	"github.com/harperreed/lift/internal/engine"
	"github.com/harperreed/lift/internal/models"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a workout session for a plan",
	}, s.handleStartSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "confirm_set",
		Description: "Log a completed set (exercise index is 0-based, set index is 1-based)",
	}, s.handleConfirmSet)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "fail_set",
		Description: "Log a set that fell short of its target",
	}, s.handleFailSet)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "skip_rest",
		Description: "End the current rest countdown early",
	}, s.handleSkipRest)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "goto_exercise",
		Description: "Move to another exercise in the plan",
	}, s.handleGoToExercise)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pause_session",
		Description: "Pause the workout clock and any rest",
	}, s.handlePause)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "resume_session",
		Description: "Resume a paused workout",
	}, s.handleResume)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "abandon_session",
		Description: "Stop the workout without saving it",
	}, s.handleAbandon)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "finish_session",
		Description: "Finalize the workout and persist its summary",
	}, s.handleFinish)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_recovery",
		Description: "Look for an interrupted workout and any unsaved finalization",
	}, s.handleCheckRecovery)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "resume_recovered",
		Description: "Resume the interrupted workout found by check_recovery",
	}, s.handleResumeRecovered)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "discard_recovered",
		Description: "Discard the interrupted workout found by check_recovery",
	}, s.handleDiscardRecovered)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "retry_finalize",
		Description: "Retry saving a finalization that partially failed",
	}, s.handleRetryFinalize)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_status",
		Description: "Show the current exercise, next set, rest, and progress",
	}, s.handleGetStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_plans",
		Description: "List available workout plans",
	}, s.handleListPlans)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_history",
		Description: "List recently finished sessions",
	}, s.handleListHistory)
}

// Tool input/output types

type startSessionInput struct {
	PlanID string `json:"plan_id" jsonschema:"ID of the plan to start"`
}

type setInput struct {
	ExerciseIndex int     `json:"exercise_index" jsonschema:"0-based exercise position in the plan"`
	SetIndex      int     `json:"set_index" jsonschema:"1-based set number"`
	Load          float64 `json:"load" jsonschema:"Weight used"`
	Reps          int     `json:"reps" jsonschema:"Repetitions performed"`
}

type gotoInput struct {
	ExerciseIndex int `json:"exercise_index" jsonschema:"0-based exercise position in the plan"`
}

type abandonInput struct {
	Discard bool `json:"discard,omitempty" jsonschema:"Also delete the saved progress"`
}

type finishInput struct {
	Effort  *int   `json:"effort,omitempty" jsonschema:"Perceived effort 1-10"`
	Fatigue *int   `json:"fatigue,omitempty" jsonschema:"Fatigue 1-10"`
	Mood    *int   `json:"mood,omitempty" jsonschema:"Mood 1-10"`
	Notes   string `json:"notes,omitempty" jsonschema:"Free-form notes"`
}

type recoveryInput struct {
	PlanID string `json:"plan_id,omitempty" jsonschema:"Currently selected plan, if any"`
}

type historyInput struct {
	PlanID string `json:"plan_id,omitempty" jsonschema:"Filter by plan"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

type emptyInput struct{}

type stateOutput struct {
	SessionID      string  `json:"session_id,omitempty"`
	PlanID         string  `json:"plan_id,omitempty"`
	Status         string  `json:"status"`
	ExerciseIndex  int     `json:"exercise_index"`
	ExerciseID     string  `json:"exercise_id,omitempty"`
	ExerciseName   string  `json:"exercise_name,omitempty"`
	NextSet        int     `json:"next_set,omitempty"`
	TargetSets     int     `json:"target_sets,omitempty"`
	TargetReps     int     `json:"target_reps,omitempty"`
	SuggestedLoad  float64 `json:"suggested_load,omitempty"`
	RestSeconds    int     `json:"rest_seconds,omitempty"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	CompletedSets  int     `json:"completed_sets"`
	TotalSets      int     `json:"total_sets"`
}

type offerOutput struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	SetsLogged  int    `json:"sets_logged,omitempty"`
	RestSeconds int    `json:"rest_seconds,omitempty"`
	AgeSeconds  int    `json:"age_seconds,omitempty"`
}

type resultOutput struct {
	OK             bool                    `json:"ok"`
	Code           string                  `json:"code,omitempty"`
	Message        string                  `json:"message"`
	State          stateOutput             `json:"state"`
	Offer          *offerOutput            `json:"offer,omitempty"`
	Steps          []completion.StepResult `json:"steps,omitempty"`
	Record         *recordOutput           `json:"record,omitempty"`
	LastCompletion *recordOutput           `json:"last_completion,omitempty"`
	UnsavedSession string                  `json:"unsaved_session,omitempty"`
}

// recordOutput is a CompletionRecord with timestamps as RFC 3339 strings.
type recordOutput struct {
	SessionID         string  `json:"session_id"`
	PlanID            string  `json:"plan_id"`
	StartedAt         string  `json:"started_at"`
	FinishedAt        string  `json:"finished_at"`
	ElapsedSeconds    int64   `json:"elapsed_seconds"`
	TotalSets         int     `json:"total_sets"`
	TotalReps         int     `json:"total_reps"`
	TotalVolume       float64 `json:"total_volume"`
	DistinctExercises int     `json:"distinct_exercises"`
	FailedSets        int     `json:"failed_sets"`
	Notes             string  `json:"notes,omitempty"`
}

func toRecord(r models.CompletionRecord) *recordOutput {
	out := &recordOutput{
		SessionID:         r.SessionID,
		PlanID:            r.PlanID,
		StartedAt:         r.StartedAt.Format(time.RFC3339),
		FinishedAt:        r.FinishedAt.Format(time.RFC3339),
		ElapsedSeconds:    r.ElapsedSeconds,
		TotalSets:         r.TotalSets,
		TotalReps:         r.TotalReps,
		TotalVolume:       r.TotalVolume,
		DistinctExercises: r.DistinctExercises,
		FailedSets:        r.FailedSets,
	}
	if r.Notes != nil {
		out.Notes = *r.Notes
	}
	return out
}

type plansOutput struct {
	Plans []*models.WorkoutPlan `json:"plans"`
}

type historyOutput struct {
	Sessions []*recordOutput `json:"sessions"`
	Message  string          `json:"message,omitempty"`
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}

// toOutput converts an engine result, describing success with msg.
func toOutput(res engine.Result, msg string) resultOutput {
	v := res.State
	out := resultOutput{
		OK:      res.OK(),
		Code:    string(res.Code),
		Message: msg,
		State: stateOutput{
			SessionID:      v.SessionID,
			PlanID:         v.PlanID,
			Status:         string(v.Status),
			ExerciseIndex:  v.CurrentExercise,
			ExerciseID:     v.ExerciseID,
			ExerciseName:   v.ExerciseName,
			NextSet:        v.NextSet,
			TargetSets:     v.TargetSets,
			TargetReps:     v.TargetReps,
			SuggestedLoad:  v.SuggestedLoad,
			RestSeconds:    seconds(v.RestRemaining),
			ElapsedSeconds: seconds(v.Elapsed),
			CompletedSets:  v.CompletedSets,
			TotalSets:      v.TotalSets,
		},
	}
	if !res.OK() {
		out.Message = res.Reason
	}
	if o := res.Offer; o != nil {
		out.Offer = &offerOutput{
			Decision:    string(o.Decision),
			Reason:      o.Reason,
			SessionID:   o.SessionID,
			PlanID:      o.PlanID,
			SetsLogged:  o.SetsLogged,
			RestSeconds: seconds(o.RestRemaining),
			AgeSeconds:  seconds(o.Age),
		}
	}
	if r := res.Report; r != nil {
		out.Steps = r.Steps
		out.Record = toRecord(r.Record)
	}
	if p := res.Pending; p != nil {
		if p.Completed != nil {
			out.LastCompletion = toRecord(p.Completed.Record)
		}
		if p.Failed != nil {
			out.UnsavedSession = p.Failed.Input.Record.SessionID
		}
	}
	return out
}

// Tool handlers

func (s *Server) handleStartSession(ctx context.Context, req *mcp.CallToolRequest, input startSessionInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.StartSession(input.PlanID)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to start session: %w", err)
	}
	return nil, toOutput(res, fmt.Sprintf("Started %s", input.PlanID)), nil
}

func (s *Server) handleConfirmSet(ctx context.Context, req *mcp.CallToolRequest, input setInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.ConfirmSet(input.ExerciseIndex, input.SetIndex, input.Load, input.Reps)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to confirm set: %w", err)
	}
	return nil, toOutput(res, fmt.Sprintf("Logged set %d: %d x %.1f", input.SetIndex, input.Reps, input.Load)), nil
}

func (s *Server) handleFailSet(ctx context.Context, req *mcp.CallToolRequest, input setInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.FailSet(input.ExerciseIndex, input.SetIndex, input.Load, input.Reps)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to log failed set: %w", err)
	}
	return nil, toOutput(res, fmt.Sprintf("Logged failed set %d: %d x %.1f", input.SetIndex, input.Reps, input.Load)), nil
}

func (s *Server) handleSkipRest(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.SkipRest()
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to skip rest: %w", err)
	}
	return nil, toOutput(res, fmt.Sprintf("Skipped %ds of rest", seconds(res.RestSkipped))), nil
}

func (s *Server) handleGoToExercise(ctx context.Context, req *mcp.CallToolRequest, input gotoInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.GoToExercise(input.ExerciseIndex)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to change exercise: %w", err)
	}
	return nil, toOutput(res, fmt.Sprintf("Now on %s", res.State.ExerciseName)), nil
}

func (s *Server) handlePause(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.Pause()
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to pause: %w", err)
	}
	return nil, toOutput(res, "Paused"), nil
}

func (s *Server) handleResume(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.Resume()
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to resume: %w", err)
	}
	return nil, toOutput(res, "Resumed"), nil
}

func (s *Server) handleAbandon(ctx context.Context, req *mcp.CallToolRequest, input abandonInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.AbandonSession(input.Discard)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to abandon: %w", err)
	}
	return nil, toOutput(res, "Session abandoned"), nil
}

func (s *Server) handleFinish(ctx context.Context, req *mcp.CallToolRequest, input finishInput) (*mcp.CallToolResult, resultOutput, error) {
	var extra completion.Extra
	if input.Effort != nil || input.Fatigue != nil || input.Mood != nil {
		extra.Ratings = &models.Ratings{Effort: input.Effort, Fatigue: input.Fatigue, Mood: input.Mood}
	}
	if input.Notes != "" {
		extra.Notes = &input.Notes
	}
	res, err := s.engine.Finalize(ctx, extra)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to finish: %w", err)
	}
	msg := "Session saved"
	if res.Report != nil {
		r := res.Report.Record
		msg = fmt.Sprintf("Session saved: %d sets, %d reps, %.0f volume", r.TotalSets, r.TotalReps, r.TotalVolume)
	}
	return nil, toOutput(res, msg), nil
}

func (s *Server) handleCheckRecovery(ctx context.Context, req *mcp.CallToolRequest, input recoveryInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.TryRecoverOnStartup(ctx, input.PlanID)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to check recovery: %w", err)
	}
	msg := "Nothing to recover"
	if res.Offer != nil && res.Offer.SessionID != "" {
		msg = fmt.Sprintf("Found %s session with %d sets logged", res.Offer.PlanID, res.Offer.SetsLogged)
	}
	return nil, toOutput(res, msg), nil
}

func (s *Server) handleResumeRecovered(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.ResumeRecovered()
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to resume: %w", err)
	}
	return nil, toOutput(res, "Recovered session resumed"), nil
}

func (s *Server) handleDiscardRecovered(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.DiscardRecovered()
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to discard: %w", err)
	}
	return nil, toOutput(res, "Recovered session discarded"), nil
}

func (s *Server) handleRetryFinalize(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res, err := s.engine.RetryFinalize(ctx)
	if err != nil {
		return nil, resultOutput{}, fmt.Errorf("failed to retry: %w", err)
	}
	return nil, toOutput(res, "Finalization saved"), nil
}

func (s *Server) handleGetStatus(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, resultOutput, error) {
	res := s.engine.Status()
	return nil, toOutput(res, string(res.State.Status)), nil
}

func (s *Server) handleListPlans(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, plansOutput, error) {
	all, err := s.engine.Plans().List()
	if err != nil {
		return nil, plansOutput{}, fmt.Errorf("failed to list plans: %w", err)
	}
	return nil, plansOutput{Plans: all}, nil
}

func (s *Server) handleListHistory(ctx context.Context, req *mcp.CallToolRequest, input historyInput) (*mcp.CallToolResult, historyOutput, error) {
	if s.repo == nil {
		return nil, historyOutput{Message: "No history backend configured."}, nil
	}
	if input.Limit <= 0 {
		input.Limit = 20
	}
	var planID *string
	if input.PlanID != "" {
		planID = &input.PlanID
	}
	sessions, err := s.repo.ListSummaries(ctx, planID, input.Limit)
	if err != nil {
		return nil, historyOutput{}, fmt.Errorf("failed to list history: %w", err)
	}
	if len(sessions) == 0 {
		return nil, historyOutput{Message: "No sessions found."}, nil
	}
	out := historyOutput{}
	for _, rec := range sessions {
		out.Sessions = append(out.Sessions, toRecord(*rec))
	}
	return nil, out, nil
}
