package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"health-agent/internal/domain"
)

var (
	severitySchema = domain.ResponseSchema{
		Name: "severity_rate",
		Schema: json.RawMessage(`{
			"type":"object",
			"additionalProperties":false,
			"properties":{"rate":{"type":"integer","enum":[0,1,2,3,4,5]}},
			"required":["rate"]
		}`),
	}

	topicChecklistSchema = domain.ResponseSchema{
		Name: "topic_checklist",
		Schema: json.RawMessage(`{
			"type":"object",
			"additionalProperties":false,
			"properties":{
				"has_info":{"type":"boolean"},
				"is_question":{"type":"boolean"}
			},
			"required":["has_info","is_question"]
		}`),
	}

	topicInfoSchema = domain.ResponseSchema{
		Name: "topic_info",
		Schema: json.RawMessage(`{
			"type":"object",
			"additionalProperties":false,
			"properties":{"has_info":{"type":"boolean"}},
			"required":["has_info"]
		}`),
	}

	profileSchema = domain.ResponseSchema{
		Name: "profile_structure",
		Schema: json.RawMessage(`{
			"type":"object",
			"additionalProperties":false,
			"properties":{
				"name":{"type":["string","null"],"description":"The user's name or nickname."},
				"dob":{"type":["string","null"],"description":"Date of birth in Gregorian YYYY-MM-DD."},
				"gender":{"type":["string","null"]},
				"occupation":{"type":["string","null"],"description":"Occupation in English."},
				"description":{"type":["string","null"],"description":"Daily lifestyle and habits."},
				"chronic_disease":{"type":["string","null"]},
				"weight":{"type":["number","null"],"description":"Weight in kilograms."},
				"height":{"type":["number","null"],"description":"Height in centimetres."}
			},
			"required":["name","dob","gender","occupation","description","chronic_disease","weight","height"]
		}`),
	}
)

type schemaProperty struct {
	Type        string   `json:"type"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description"`
}

type objectSchema struct {
	Type                 string                    `json:"type"`
	AdditionalProperties bool                      `json:"additionalProperties"`
	Properties           map[string]schemaProperty `json:"properties"`
	Required             []string                  `json:"required"`
}

// buildSummarySchema embeds the registry's per-field instructions as property
// descriptions.
func buildSummarySchema(overview, riskLevel, riskSummary string) (domain.ResponseSchema, error) {
	raw, err := json.Marshal(objectSchema{
		Type: "object",
		Properties: map[string]schemaProperty{
			"overview":       {Type: "string", Description: overview},
			"office_risk":    {Type: "string", Enum: []string{"Low", "Medium", "High"}, Description: riskLevel},
			"office_summary": {Type: "string", Description: riskSummary},
		},
		Required: []string{"overview", "office_risk", "office_summary"},
	})
	if err != nil {
		return domain.ResponseSchema{}, fmt.Errorf("usecase: build summary schema: %w", err)
	}
	return domain.ResponseSchema{Name: "health_summary", Schema: raw}, nil
}

type validator interface {
	validate() error
}

type severityResult struct {
	Rate *int `json:"rate"`
}

func (r *severityResult) validate() error {
	if r.Rate == nil {
		return errors.New("missing rate")
	}
	if *r.Rate < 0 || *r.Rate > 5 {
		return fmt.Errorf("rate %d out of range", *r.Rate)
	}
	return nil
}

type topicChecklistResult struct {
	HasInfo    *bool `json:"has_info"`
	IsQuestion *bool `json:"is_question"`
}

func (r *topicChecklistResult) validate() error {
	if r.HasInfo == nil || r.IsQuestion == nil {
		return errors.New("missing has_info or is_question")
	}
	return nil
}

type topicInfoResult struct {
	HasInfo *bool `json:"has_info"`
}

func (r *topicInfoResult) validate() error {
	if r.HasInfo == nil {
		return errors.New("missing has_info")
	}
	return nil
}

type profileResult struct {
	Name           *string  `json:"name"`
	DOB            *string  `json:"dob"`
	Gender         *string  `json:"gender"`
	Occupation     *string  `json:"occupation"`
	Description    *string  `json:"description"`
	ChronicDisease *string  `json:"chronic_disease"`
	Weight         *float64 `json:"weight"`
	Height         *float64 `json:"height"`
}

func (r *profileResult) validate() error { return nil }

type summaryResult struct {
	Overview      *string `json:"overview"`
	OfficeRisk    *string `json:"office_risk"`
	OfficeSummary *string `json:"office_summary"`
}

func (r *summaryResult) validate() error {
	if r.Overview == nil || strings.TrimSpace(*r.Overview) == "" {
		return errors.New("missing overview")
	}
	if r.OfficeRisk == nil || !domain.OfficeRisk(*r.OfficeRisk).Valid() {
		return errors.New("office_risk must be Low, Medium or High")
	}
	if r.OfficeSummary == nil {
		return errors.New("missing office_summary")
	}
	return nil
}

// callStructured sends system and input to model with schema and
// strict-decodes the reply into out. The returned record is complete even
// when err is non-nil.
func (s *AgentService) callStructured(ctx context.Context, model string, schema domain.ResponseSchema, system, input string, out validator) (StageRecord, error) {
	rec := StageRecord{System: system, Input: input}
	raw, err := s.llm.ChatStructured(ctx, model, chatMessages(system, input), schema)
	rec.Response = raw
	if err == nil {
		err = decodeStrict(raw, out)
	}
	if err == nil {
		err = out.validate()
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrClassification, schema.Name, err)
		rec.Error = err.Error()
	}
	return rec, err
}

func chatMessages(system, input string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: input},
	}
}

// decodeStrict decodes exactly one JSON object, rejecting unknown fields and
// trailing data. A fenced ```json block is unwrapped first.
func decodeStrict(raw string, out any) error {
	dec := json.NewDecoder(bytes.NewBufferString(unfence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("usecase: decode structured output: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("usecase: decode structured output: multiple JSON values")
		}
		return fmt.Errorf("usecase: decode structured output trailing data: %w", err)
	}
	return nil
}

func unfence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
