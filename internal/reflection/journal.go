package reflection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// journalFile is the machine-readable JSON shape written alongside the
// human-readable markdown.
type journalFile struct {
	SessionID      string    `json:"session_id"`
	Date           string    `json:"date"`
	MessageCount   int       `json:"message_count"`
	QualityScore   float64   `json:"quality_score"`
	SessionSummary string    `json:"session_summary"`
	KeyLearnings   []string  `json:"key_learnings"`
	Insights       []string  `json:"insights"`
	Patterns       []string  `json:"patterns_observed"`
	KnowledgeGaps  []string  `json:"knowledge_gaps"`
	WrittenAt      time.Time `json:"written_at"`
}

// writeJournal writes `data/journals/{date}_{session_id}.json` and its
// `.md` sibling. If JournalS3Bucket is set, the JSON is additionally
// uploaded there; a
// failed upload is logged, not fatal, since the local copy already exists.
func writeJournal(e *Engine, sessionID string, s Synthesis, messageCount int) (string, error) {
	if e.JournalDir == "" {
		return "", nil
	}
	date := time.Now().UTC().Format("2006-01-02")
	base := fmt.Sprintf("%s_%s", date, sessionID)
	if err := os.MkdirAll(e.JournalDir, 0o755); err != nil {
		return "", fmt.Errorf("journal: mkdir: %w", err)
	}

	jf := journalFile{
		SessionID: sessionID, Date: date, MessageCount: messageCount,
		QualityScore: s.QualityScore, SessionSummary: s.SessionSummary,
		KeyLearnings: s.KeyLearnings, Insights: s.Insights,
		Patterns: s.PatternsObserved, KnowledgeGaps: s.KnowledgeGaps,
		WrittenAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(jf, "", "  ")
	if err != nil {
		return "", fmt.Errorf("journal: marshal: %w", err)
	}
	jsonPath := filepath.Join(e.JournalDir, base+".json")
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return "", fmt.Errorf("journal: write json: %w", err)
	}

	md := renderMarkdown(jf)
	mdPath := filepath.Join(e.JournalDir, base+".md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return jsonPath, fmt.Errorf("journal: write markdown: %w", err)
	}

	if e.S3Bucket != "" {
		if err := uploadJournalToS3(context.Background(), e.S3Bucket, base+".json", raw); err != nil {
			return jsonPath, fmt.Errorf("journal: s3 archive: %w", err)
		}
	}
	return jsonPath, nil
}

func renderMarkdown(j journalFile) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Session %s (%s)\n\n", j.SessionID, j.Date)
	fmt.Fprintf(&b, "**Quality score:** %.2f  \n**Messages:** %d\n\n", j.QualityScore, j.MessageCount)
	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", j.SessionSummary)
	writeList(&b, "Key learnings", j.KeyLearnings)
	writeList(&b, "Insights", j.Insights)
	writeList(&b, "Patterns observed", j.Patterns)
	writeList(&b, "Knowledge gaps", j.KnowledgeGaps)
	return b.String()
}

func writeList(b *bytes.Buffer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func uploadJournalToS3(ctx context.Context, bucket, key string, body []byte) error {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String("journals/" + key),
		Body:   bytes.NewReader(body),
	})
	return err
}
