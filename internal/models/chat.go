package models

import "time"

// Source describes where the supporting text of an answer was found.
type Source struct {
	Document   string         `json:"document"`
	Page       int            `json:"page"`
	Paragraph  int            `json:"paragraph"`
	Confidence float64        `json:"confidence"`
	Meta       map[string]any `json:"meta"`
}

// Answer is the decoded result of a Q&A call.
type Answer struct {
	Text           string
	Sources        []Source
	ProcessingTime time.Duration
	Status         string
}

// ChatApology is the text of the system message appended when the Q&A call fails for any reason.
const ChatApology = "Üzgünüm, bir hata oluştu. Lütfen tekrar deneyin."
