package types

import "time"

type JobStatus string

const (
	StatusStarting     JobStatus = "starting"
	StatusDownloading  JobStatus = "downloading"
	StatusTranscribing JobStatus = "transcribing"
	StatusProcessing   JobStatus = "processing"
	StatusComplete     JobStatus = "complete"
	StatusError        JobStatus = "error"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

type Job struct {
	ID        string            `json:"job_id"`
	Status    JobStatus         `json:"status"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message"`
	Result    *TranscriptResult `json:"result"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Chapter struct {
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
}

// Structured is the chapters/takeaways record produced by structured generation.
// Fallback is set when the model output could not be parsed.
type Structured struct {
	Chapters    []Chapter `json:"chapters"`
	Takeaways   []string  `json:"takeaways"`
	RawResponse string    `json:"raw_response,omitempty"`
	Fallback    bool      `json:"-"`
}

type TranscriptResult struct {
	Title           string    `json:"title"`
	RawText         string    `json:"raw_transcript"`
	FormattedText   string    `json:"transcript"`
	Segments        []Segment `json:"segments"`
	Chapters        []Chapter `json:"chapters"`
	Takeaways       []string  `json:"takeaways"`
	Language        string    `json:"language"`
	Channel         string    `json:"channel"`
	ThumbnailRef    string    `json:"thumbnail_path,omitempty"`
	DurationSeconds float64   `json:"duration"`
	SourceURL       string    `json:"source_url"`
}

// MediaInfo is what the downloader hands back after fetching a URL.
type MediaInfo struct {
	AudioPath       string
	Title           string
	DurationSeconds float64
	ThumbnailPath   string
	Channel         string
}

// Transcription is the speech-to-text output for one audio file.
type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}
