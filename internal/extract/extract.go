package extract

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"
)

// MaxAttachmentSize is the decoded-payload cap per attachment.
const MaxAttachmentSize = 100 << 20 // 100 MiB

// Fallback values for absent headers.
const (
	fallbackSubject = "No Subject"
	fallbackSender  = "Unknown"
)

// Record is the canonical output of extraction, shaped for the
// message-store API. It is immutable once produced.
type Record struct {
	UID         string   `json:"uid"`
	From        string   `json:"from"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
	ReplyStatus string   `json:"replyStatus"`
}

// PartStatus classifies what happened to one attachment part.
type PartStatus string

const (
	PartSaved    PartStatus = "saved"
	PartSkipped  PartStatus = "skipped"
	PartRejected PartStatus = "rejected"
)

// PartResult records the outcome for a single attachment part, so skip
// and reject reasons are structured data rather than log lines.
type PartResult struct {
	Status       PartStatus
	Filename     string // sanitized name; empty when nothing was written
	OriginalName string
	Reason       string
}

// Extractor converts raw mail bytes into Records, writing accepted
// attachments into a flat directory.
type Extractor struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
}

// New creates an Extractor writing attachments under dir.
func New(dir string, logger *slog.Logger) *Extractor {
	return &Extractor{
		dir:     dir,
		maxSize: MaxAttachmentSize,
		logger:  logger,
	}
}

// Extract parses a raw message and produces a Record plus per-part
// attachment outcomes. It never fails fatally: a message that cannot be
// parsed at all yields a Record with fallback sender/subject and an
// empty body.
func (e *Extractor) Extract(uid string, raw []byte) (*Record, []PartResult) {
	rec := &Record{
		UID:         uid,
		From:        fallbackSender,
		Subject:     fallbackSubject,
		Attachments: []string{},
		ReplyStatus: "pending",
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		e.logger.Warn("message parse failed", "uid", uid, "error", err)
		return rec, nil
	}
	defer mr.Close()

	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		rec.Subject = subject
	}
	if from := mr.Header.Get("From"); from != "" {
		rec.From = from
	}

	var (
		body    string
		results []PartResult
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part never aborts the message.
			e.logger.Warn("part read failed", "uid", uid, "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			if body != "" {
				continue
			}
			contentType, _, _ := h.ContentType()
			if !strings.HasPrefix(contentType, "text/plain") {
				continue
			}
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			body = strings.ToValidUTF8(string(data), "�")

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				continue
			}
			results = append(results, e.savePart(uid, filename, part.Body, len(rec.Attachments)))
			if last := results[len(results)-1]; last.Status == PartSaved {
				rec.Attachments = append(rec.Attachments, last.Filename)
			}
		}
	}

	rec.Body = strings.TrimSpace(body)
	return rec, results
}

// savePart sanitizes, validates, and writes one attachment part.
func (e *Extractor) savePart(uid, original string, body io.Reader, seq int) PartResult {
	name := SanitizeFilename(original, seq)

	if !ExtensionAllowed(name) {
		e.logger.Warn("skipping attachment: file type not allowed",
			"uid", uid, "filename", original)
		return PartResult{
			Status:       PartRejected,
			OriginalName: original,
			Reason:       "extension not allowed",
		}
	}

	data, err := io.ReadAll(io.LimitReader(body, e.maxSize+1))
	if err != nil {
		e.logger.Warn("skipping attachment: decode failed",
			"uid", uid, "filename", original, "error", err)
		return PartResult{
			Status:       PartSkipped,
			OriginalName: original,
			Reason:       fmt.Sprintf("decode failed: %v", err),
		}
	}
	if int64(len(data)) > e.maxSize {
		e.logger.Warn("skipping attachment: file too large",
			"uid", uid, "filename", original)
		return PartResult{
			Status:       PartRejected,
			OriginalName: original,
			Reason:       "exceeds size limit",
		}
	}

	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.logger.Error("saving attachment failed",
			"uid", uid, "filename", name, "error", err)
		return PartResult{
			Status:       PartSkipped,
			OriginalName: original,
			Reason:       fmt.Sprintf("write failed: %v", err),
		}
	}

	if name != original {
		e.logger.Info("saved attachment", "uid", uid, "filename", name,
			"sanitized_from", original)
	} else {
		e.logger.Info("saved attachment", "uid", uid, "filename", name)
	}
	return PartResult{
		Status:       PartSaved,
		Filename:     name,
		OriginalName: original,
	}
}
