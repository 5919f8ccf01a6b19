package envelope

import (
	"encoding/json"
	"fmt"
)

// chatWire is the superset of fields the downstream agents emit on their
// JSON chat endpoints. Fields absent from a response are left at their
// zero value and dropped again on the way out.
type chatWire struct {
	Success     bool         `json:"success"`
	Response    string       `json:"response"`
	Timestamp   string       `json:"timestamp"`
	SQLInfo     *SQLInfo     `json:"sql_info"`
	Sources     []Source     `json:"sources"`
	AgentUsed   string       `json:"agent_used"`
	RoutingInfo *RoutingInfo `json:"routing_info"`
}

func decodeChat(raw []byte) (*chatWire, error) {
	var w chatWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode downstream response: %w", err)
	}
	return &w, nil
}

func (w *chatWire) envelope() *Chat {
	ts := w.Timestamp
	if ts == "" {
		ts = Now()
	}
	return &Chat{
		Success:   w.Success,
		Response:  w.Response,
		Timestamp: ts,
	}
}

// NormalizeDatabase maps a structured-query agent response into the
// envelope, carrying sql_info through untouched.
func NormalizeDatabase(raw []byte) (*Chat, error) {
	w, err := decodeChat(raw)
	if err != nil {
		return nil, err
	}
	out := w.envelope()
	out.SQLInfo = w.SQLInfo
	return out, nil
}

// NormalizeRetrieval maps a retrieval agent response into the envelope,
// carrying the sources list through untouched.
func NormalizeRetrieval(raw []byte) (*Chat, error) {
	w, err := decodeChat(raw)
	if err != nil {
		return nil, err
	}
	out := w.envelope()
	out.Sources = w.Sources
	return out, nil
}

// NormalizeSmart maps a smart-route agent response into the envelope. The
// downstream reports which agent(s) it consulted via agent_used and may
// include zero, one, or both of the sql_info and sources blocks; whatever
// is present is merged into the envelope verbatim.
func NormalizeSmart(raw []byte) (*Chat, error) {
	w, err := decodeChat(raw)
	if err != nil {
		return nil, err
	}
	out := w.envelope()
	out.AgentUsed = w.AgentUsed
	out.RoutingInfo = w.RoutingInfo
	out.SQLInfo = w.SQLInfo
	out.Sources = w.Sources
	return out, nil
}

// ocrWire is the document-understanding agent's native response shape.
type ocrWire struct {
	Success         bool     `json:"success"`
	ExtractedText   string   `json:"extracted_text"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
	Timestamp       string   `json:"timestamp"`
	Error           string   `json:"error"`
}

// NormalizeOCR maps a document-understanding agent response into the OCR
// envelope. On downstream-reported failure the error text becomes the
// analysis so the caller always gets a human-readable description.
func NormalizeOCR(raw []byte) (*OCR, error) {
	var w ocrWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode downstream response: %w", err)
	}
	ts := w.Timestamp
	if ts == "" {
		ts = Now()
	}
	analysis := w.Analysis
	if !w.Success && analysis == "" {
		analysis = w.Error
	}
	if w.Recommendations == nil {
		w.Recommendations = []string{}
	}
	if w.Alerts == nil {
		w.Alerts = []string{}
	}
	return &OCR{
		Success:         w.Success,
		ExtractedText:   w.ExtractedText,
		Analysis:        analysis,
		Recommendations: w.Recommendations,
		Alerts:          w.Alerts,
		Timestamp:       ts,
	}, nil
}
