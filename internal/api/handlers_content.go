// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package api

import (
	"net/http"
	"unicode/utf8"

	"github.com/tomtom215/gatekeeper/internal/detection"
)

type sanitizeRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Summary string `json:"summary" validate:"max=2000"`
	Body    string `json:"body" validate:"required,max=100000"`
}

type sanitizeResponse struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Body     string   `json:"body"`
	Modified []string `json:"modified"`
}

// SanitizeContent cleans rich-text fields the way they would be cleaned
// before persistence. The title is reduced to plain text; summary and
// body keep the rich-text allow-list.
func (h *Handler) SanitizeContent(w http.ResponseWriter, r *http.Request) {
	var req sanitizeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	doc := map[string]any{"summary": req.Summary, "body": req.Body}
	modified := h.sanitizer.SanitizeFields(doc, "summary", "body")

	title := h.sanitizer.StripTags(req.Title)
	if title != req.Title {
		modified = append([]string{"title"}, modified...)
	}
	if modified == nil {
		modified = []string{}
	}

	summary, _ := doc["summary"].(string)
	body, _ := doc["body"].(string)
	respondData(w, r, sanitizeResponse{
		Title:    title,
		Summary:  summary,
		Body:     body,
		Modified: modified,
	})
}

// AllowedElements lists the HTML elements kept by the sanitizer.
func (h *Handler) AllowedElements(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, map[string]any{"elements": detection.RichTextElements})
}

type assistRequest struct {
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

type assistResponse struct {
	Reply            string `json:"reply"`
	PromptCharacters int    `json:"prompt_characters"`
}

// Assist stands in for an AI-backed endpoint. It only acknowledges the
// prompt; the route exists so the ai tier has something to limit.
func (h *Handler) Assist(w http.ResponseWriter, r *http.Request) {
	var req assistRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	n := utf8.RuneCountInString(req.Prompt)
	respondData(w, r, assistResponse{
		Reply:            "Prompt received",
		PromptCharacters: n,
	})
}
