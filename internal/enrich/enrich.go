// Package enrich asks the Gemini API for the skills behind each job title.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash-latest"
	DefaultOutput  = "job_with_skills.json"
)

// ErrEmptyResponse means the model returned no candidate text.
var ErrEmptyResponse = errors.New("empty model response")

const promptTemplate = `You are an HR and industry expert.
List the most relevant technical and professional skills for the job below.
Return ONLY a valid JSON array of strings.
No explanations. No markdown.

Job title: %s
`

// Poster sends a JSON body and decodes the JSON reply. *network.Client
// implements it.
type Poster interface {
	PostJSON(ctx context.Context, target string, body any, out any) error
}

type Client struct {
	BaseURL string
	Model   string
	APIKey  string
	HTTP    Poster
	Logger  zerolog.Logger
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model := c.Model
	if model == "" {
		model = DefaultModel
	}
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, url.PathEscape(model), url.QueryEscape(c.APIKey))
}

// Skills returns the skills the model lists for title.
func (c *Client) Skills(ctx context.Context, title string) ([]string, error) {
	req := generateRequest{Contents: []content{{Parts: []part{{Text: fmt.Sprintf(promptTemplate, title)}}}}}

	var resp generateResponse
	if err := c.HTTP.PostJSON(ctx, c.endpoint(), req, &resp); err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	text := stripFences(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var skills []string
	if err := json.Unmarshal([]byte(text), &skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	return skills, nil
}

// Enrich looks up every title in order, pausing between calls. A failed
// title gets an empty skill list instead of stopping the run.
func (c *Client) Enrich(ctx context.Context, titles []string, pause time.Duration) []models.SkillSet {
	out := make([]models.SkillSet, 0, len(titles))
	for i, title := range titles {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(pause):
			}
		}

		skills, err := c.Skills(ctx, title)
		if err != nil {
			c.Logger.Warn().Err(err).Str("title", title).Msg("skills lookup failed")
			skills = []string{}
		} else {
			c.Logger.Info().Str("title", title).Int("skills", len(skills)).Msg("skills")
		}
		out = append(out, models.SkillSet{JobID: i + 1, JobTitle: title, Skills: skills})
	}
	return out
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// WriteFile stores sets as indented JSON.
func WriteFile(path string, sets []models.SkillSet) error {
	data, err := json.MarshalIndent(sets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
