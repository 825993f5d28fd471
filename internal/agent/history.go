package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// historyPromptTemplate constrains the model to emit a single JSON object
// matching types.PatientClinicalHistory so the response can be decoded
// strictly.
const historyPromptTemplate = `Generate a clinical history summary for the FHIR patient with id %s.
Respond with a single JSON object and nothing else, using exactly these keys:
"patient_id" (the id above), "patient_name", "clinical_summary",
"key_conditions" (array of strings), "active_medications" (array of strings),
"recent_encounters" (array of strings).`

// HistoryService generates structured patient clinical histories through
// the agent capability.
type HistoryService struct {
	agent  interfaces.Agent
	logger *zap.Logger
}

// NewHistoryService creates a history service
func NewHistoryService(agent interfaces.Agent, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{agent: agent, logger: logger}
}

// Generate runs the agent for one patient and decodes the structured
// history. ErrHistoryNotFound means the agent produced no usable data (the
// HTTP layer maps it to 404); any other error is a generation failure (500).
func (h *HistoryService) Generate(ctx context.Context, patientID uuid.UUID) (*types.PatientClinicalHistory, error) {
	session, err := h.agent.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire agent session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			h.logger.Warn("history_agent_session_close_failed", zap.Error(closeErr))
		}
	}()

	result, err := session.Run(ctx, fmt.Sprintf(historyPromptTemplate, patientID))
	if err != nil {
		return nil, fmt.Errorf("generate history: %w", err)
	}

	output := strings.TrimSpace(stripCodeFence(result.Output))
	if output == "" {
		return nil, ErrHistoryNotFound
	}

	var history types.PatientClinicalHistory
	if err := json.Unmarshal([]byte(output), &history); err != nil {
		return nil, fmt.Errorf("parse history output: %w", err)
	}

	// The model's echo of the id is untrusted; the request id is canonical
	history.PatientID = patientID
	if history.GeneratedAt.IsZero() {
		history.GeneratedAt = time.Now().UTC()
	}

	if history.ClinicalSummary == "" {
		return nil, ErrHistoryNotFound
	}

	return &history, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON despite instructions
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return trimmed
}
