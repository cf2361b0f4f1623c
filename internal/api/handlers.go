package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"wasim/internal/core"
	"wasim/internal/dispatch"
	"wasim/internal/metrics"
	"wasim/internal/payload"
)

// maxResultEntries caps the per-unit detail returned by the trigger
// endpoint; the summary still covers the whole run.
const maxResultEntries = 100

type triggerRequest struct {
	UserCount       int    `json:"userCount"`
	MessagesPerUser int    `json:"messagesPerUser"`
	WebhookURL      string `json:"webhookUrl"`
	WaveDelayMs     int    `json:"waveDelayMs"`
	DeadlineMs      int    `json:"deadlineMs"`
	Concurrency     int    `json:"concurrency"`
	RPS             int    `json:"rps"`
}

type triggerResponse struct {
	RunID            string           `json:"runId"`
	Reason           string           `json:"reason"`
	TotalDispatched  int              `json:"totalDispatched"`
	SuccessCount     int              `json:"successCount"`
	ErrorCount       int              `json:"errorCount"`
	NoResponseCount  int              `json:"noResponseCount"`
	Summary          metrics.Summary  `json:"summary"`
	Results          []core.RunResult `json:"results"`
	ResultsTruncated bool             `json:"resultsTruncated,omitempty"`
}

// handleTrigger runs a full stress session synchronously and returns the
// report. Long deadlines mean long requests; callers set their own client
// timeouts accordingly.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.running.Store(false)

	cfg := s.runConfig(req)
	sess := &dispatch.Session{
		Dispatcher: &dispatch.Dispatcher{
			Client: s.client,
			Store:  s.store,
			Clock:  s.clock,
			Logger: s.logger,
		},
		Store: s.store,
		Clock: s.clock,
	}

	report, err := sess.Execute(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidConfig) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Printf("stress run failed: %v", err)
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := triggerResponse{
		RunID:           report.RunID,
		Reason:          string(report.Reason),
		TotalDispatched: report.Summary.TotalDispatched,
		SuccessCount:    report.Summary.SuccessCount,
		ErrorCount:      report.Summary.ErrorCount,
		NoResponseCount: report.Summary.NoResponseCount,
		Summary:         report.Summary,
		Results:         report.Results,
	}
	if len(resp.Results) > maxResultEntries {
		resp.Results = resp.Results[:maxResultEntries]
		resp.ResultsTruncated = true
	}
	respondJSON(w, http.StatusOK, resp)
}

// runConfig merges the request over the configured defaults.
func (s *Server) runConfig(req triggerRequest) dispatch.RunConfig {
	cfg := dispatch.RunConfig{
		WebhookURL:      s.cfg.WebhookURL,
		Users:           s.cfg.Run.Users,
		MessagesPerUser: s.cfg.Run.MessagesPerUser,
		WaveDelay:       s.cfg.Run.WaveDelay,
		Deadline:        s.cfg.Run.Deadline,
		Concurrency:     s.cfg.Run.Concurrency,
		RPS:             s.cfg.Run.RPS,
		SampleMessages:  s.cfg.SampleMessages,
	}
	if req.WebhookURL != "" {
		cfg.WebhookURL = req.WebhookURL
	}
	if req.UserCount != 0 {
		cfg.Users = req.UserCount
	}
	if req.MessagesPerUser != 0 {
		cfg.MessagesPerUser = req.MessagesPerUser
	}
	if req.WaveDelayMs != 0 {
		cfg.WaveDelay = time.Duration(req.WaveDelayMs) * time.Millisecond
	}
	if req.DeadlineMs != 0 {
		cfg.Deadline = time.Duration(req.DeadlineMs) * time.Millisecond
	}
	if req.Concurrency != 0 {
		cfg.Concurrency = req.Concurrency
	}
	if req.RPS != 0 {
		cfg.RPS = req.RPS
	}
	return cfg
}

func (s *Server) handleRunInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"webhookUrl": s.cfg.WebhookURL,
		"defaults": map[string]interface{}{
			"userCount":       s.cfg.Run.Users,
			"messagesPerUser": s.cfg.Run.MessagesPerUser,
			"deadlineMs":      s.cfg.Run.Deadline.Milliseconds(),
			"concurrency":     s.cfg.Run.Concurrency,
		},
		"limits": map[string]interface{}{
			"maxUserCount":       dispatch.MaxUsers,
			"maxMessagesPerUser": dispatch.MaxMessages,
		},
		"sampleMessageCount": len(s.cfg.SampleMessages),
		"runInProgress":      s.running.Load(),
	})
}

// handleReceive is the callback the automation flow posts its reply to.
// It accepts either a flat {phone,message} body or a full WhatsApp
// envelope and appends an inbound record, which feeds correlation.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}

	in, ok := payload.ExtractInbound(body)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing phone or message")
		return
	}

	now := s.clock.Now()
	rec := core.Record{
		Phone:     in.Phone,
		Body:      in.Body,
		Timestamp: now,
		Direction: core.DirectionInbound,
		SentAtMs:  now.UnixMilli(),
	}
	if err := s.store.Append(r.Context(), rec); err != nil {
		s.logger.Printf("appending inbound record: %v", err)
		respondError(w, http.StatusInternalServerError, "storing message")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "received",
		"phone":  in.Phone,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		respondError(w, http.StatusBadRequest, "phone query parameter required")
		return
	}

	records, err := s.store.ByPhone(r.Context(), phone)
	if err != nil {
		s.logger.Printf("reading history for %s: %v", phone, err)
		respondError(w, http.StatusInternalServerError, "reading history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"phone":    phone,
		"count":    len(records),
		"messages": records,
	})
}

type sendRequest struct {
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	WebhookURL string `json:"webhookUrl"`
}

// handleSendWebhook sends one synthetic message outside of any stress run.
func (s *Server) handleSendWebhook(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Message == "" && req.Type != "audio" && req.Type != "image" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	phone := req.Phone
	if phone == "" {
		phone = s.gen.PhoneID()
	}
	name := req.Name
	if name == "" {
		name = "User1"
	}
	now := s.clock.Now()
	in := payload.Input{
		PhoneID:     phone,
		DisplayName: name,
		MessageID:   s.gen.MessageID(),
		Body:        req.Message,
		Timestamp:   now,
	}

	var env payload.Envelope
	switch req.Type {
	case "", "text":
		env = payload.TextMessage(in)
	case "audio":
		env = payload.AudioMessage(in)
	case "image":
		env = payload.ImageMessage(in)
	default:
		respondError(w, http.StatusBadRequest, "unknown message type: "+req.Type)
		return
	}

	target := s.cfg.WebhookURL
	if req.WebhookURL != "" {
		target = req.WebhookURL
	}
	if target == "" {
		respondError(w, http.StatusBadRequest, "no webhook URL configured")
		return
	}

	buf, err := json.Marshal(env)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encoding payload")
		return
	}

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		respondError(w, http.StatusBadRequest, "building request: "+err.Error())
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		respondError(w, http.StatusBadGateway, "webhook unreachable: "+err.Error())
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	rec := core.Record{
		Phone:     phone,
		Body:      req.Message,
		Timestamp: now,
		Direction: core.DirectionOutbound,
		SentAtMs:  now.UnixMilli(),
	}
	if err := s.store.Append(r.Context(), rec); err != nil {
		s.logger.Printf("appending outbound record: %v", err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "sent",
		"phone":         phone,
		"messageId":     in.MessageID,
		"webhookStatus": resp.StatusCode,
	})
}
