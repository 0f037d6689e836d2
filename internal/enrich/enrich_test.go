package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iticjobs/jobscrape/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoster struct {
	replies map[string]string
	err     error
	targets []string
	prompts []string
}

func (f *fakePoster) PostJSON(_ context.Context, target string, body any, out any) error {
	f.targets = append(f.targets, target)
	req := body.(generateRequest)
	prompt := req.Contents[0].Parts[0].Text
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	for title, reply := range f.replies {
		if strings.Contains(prompt, "Job title: "+title+"\n") {
			return json.Unmarshal([]byte(reply), out)
		}
	}
	return json.Unmarshal([]byte(`{"candidates":[]}`), out)
}

func reply(text string) string {
	data, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(data)
}

func TestSkillsStripsFences(t *testing.T) {
	poster := &fakePoster{replies: map[string]string{
		"Go Developer": reply("```json\n[\"Go\", \"PostgreSQL\", \"Docker\"]\n```"),
	}}
	c := &Client{APIKey: "k&1", HTTP: poster}

	skills, err := c.Skills(context.Background(), "Go Developer")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "PostgreSQL", "Docker"}, skills)

	require.Len(t, poster.targets, 1)
	assert.Equal(t, DefaultBaseURL+"/models/"+DefaultModel+":generateContent?key=k%261", poster.targets[0])
	assert.Contains(t, poster.prompts[0], "Return ONLY a valid JSON array of strings.")
}

func TestSkillsEmptyResponse(t *testing.T) {
	c := &Client{HTTP: &fakePoster{}}
	_, err := c.Skills(context.Background(), "Unknown")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSkillsInvalidJSON(t *testing.T) {
	poster := &fakePoster{replies: map[string]string{"QA": reply("Testing, automation")}}
	c := &Client{HTTP: poster}
	_, err := c.Skills(context.Background(), "QA")
	assert.ErrorContains(t, err, "decode skills")
}

func TestEnrichKeepsGoingAfterFailures(t *testing.T) {
	poster := &fakePoster{replies: map[string]string{
		"Data Analyst": reply(`["SQL","Excel"]`),
	}}
	c := &Client{BaseURL: "http://gemini.test/v1beta/", Model: "m", HTTP: poster, Logger: zerolog.Nop()}

	sets := c.Enrich(context.Background(), []string{"Data Analyst", "Unknown"}, 0)
	require.Len(t, sets, 2)
	assert.Equal(t, models.SkillSet{JobID: 1, JobTitle: "Data Analyst", Skills: []string{"SQL", "Excel"}}, sets[0])
	assert.Equal(t, 2, sets[1].JobID)
	assert.NotNil(t, sets[1].Skills)
	assert.Empty(t, sets[1].Skills)
	assert.True(t, strings.HasPrefix(poster.targets[0], "http://gemini.test/v1beta/models/m:generateContent"))
}

func TestEnrichTransportError(t *testing.T) {
	c := &Client{HTTP: &fakePoster{err: errors.New("http 403")}, Logger: zerolog.Nop()}
	sets := c.Enrich(context.Background(), []string{"Designer"}, 0)
	require.Len(t, sets, 1)
	assert.Empty(t, sets[0].Skills)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultOutput)
	sets := []models.SkillSet{{JobID: 1, JobTitle: "Go Developer", Skills: []string{}}}
	require.NoError(t, WriteFile(path, sets))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"skills": []`)
}
