package curation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"curator/internal/core"
	"curator/internal/fetch"
	"curator/internal/llm"
)

// contentCardChars bounds the text sent for content card extraction.
const contentCardChars = 4000

// LLMClient interface for the generation calls made by LLMModel
type LLMClient interface {
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
}

// LLMModel implements Model with prompts and Gemini response schemas.
type LLMModel struct {
	client      LLMClient
	temperature float32
}

var _ Model = (*LLMModel)(nil)

// NewLLMModel creates a Model backed by client.
func NewLLMModel(client LLMClient) *LLMModel {
	return &LLMModel{client: client, temperature: 0.2}
}

// generate runs prompt with schema and decodes the JSON response into out.
func (m *LLMModel) generate(ctx context.Context, prompt string, schema *genai.Schema, out any) error {
	response, err := m.client.GenerateText(ctx, prompt, llm.TextGenerationOptions{
		Temperature:    m.temperature,
		MaxTokens:      4000,
		ResponseSchema: schema,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(response)), out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

func stringArray(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: description, Items: &genai.Schema{Type: genai.TypeString}}
}

func intArray(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: description, Items: &genai.Schema{Type: genai.TypeInteger}}
}

func number(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: description}
}

// rubricJSON is the wire form of a rubric; schemas cannot describe free-form maps,
// so topic weights travel as a list.
type rubricJSON struct {
	Version      int `json:"version"`
	TopicWeights []struct {
		Topic  string  `json:"topic"`
		Weight float64 `json:"weight"`
	} `json:"topicWeights"`
	NoveltyPreference        float64  `json:"noveltyPreference"`
	TechnicalDepthPreference float64  `json:"technicalDepthPreference"`
	InstantJunkRules         []string `json:"instantJunkRules"`
}

// RubricSchema is the response schema for GenerateRubric.
func RubricSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"version": {Type: genai.TypeInteger, Description: "Rubric format version"},
			"topicWeights": {
				Type:        genai.TypeArray,
				Description: "Weight per topic, 0.0 (ignore) to 1.0 (top interest)",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"topic":  {Type: genai.TypeString},
						"weight": number("0.0 to 1.0"),
					},
					Required: []string{"topic", "weight"},
				},
			},
			"noveltyPreference":        number("0.0 (familiar) to 1.0 (novel)"),
			"technicalDepthPreference": number("0.0 (overview) to 1.0 (deep technical)"),
			"instantJunkRules":         stringArray("Short rules that mark an article as junk on sight"),
		},
		Required: []string{"version", "topicWeights", "noveltyPreference", "technicalDepthPreference", "instantJunkRules"},
	}
}

// GenerateRubric turns the interest model into a scoring rubric.
func (m *LLMModel) GenerateRubric(ctx context.Context, interest core.InterestModel, categories []string) (*core.Rubric, error) {
	var sb strings.Builder
	sb.WriteString("You design scoring rubrics for a personal news reader.\n")
	sb.WriteString("Turn the reader's interest profile into a deterministic rubric.\n\n")
	fmt.Fprintf(&sb, "STABLE PREFERENCES: %q\n", interest.StablePreferences)
	fmt.Fprintf(&sb, "SESSION INTENT: %q\n", interest.SessionIntent)
	fmt.Fprintf(&sb, "FEED CATEGORIES: [%s]\n\n", strings.Join(categories, ", "))
	sb.WriteString("Weight topics the reader cares about close to 1.0. Categories the profile is neutral about ")
	sb.WriteString("must keep a moderate weight instead of being pushed to zero.\n")
	sb.WriteString("Junk rules describe content that should never be shown (clickbait, SEO filler, ads).\n")

	var raw rubricJSON
	if err := m.generate(ctx, sb.String(), RubricSchema(), &raw); err != nil {
		return nil, fmt.Errorf("failed to generate rubric: %w", err)
	}

	rubric := &core.Rubric{
		Version:                  raw.Version,
		TopicWeights:             make(map[string]float64, len(raw.TopicWeights)),
		NoveltyPreference:        raw.NoveltyPreference,
		TechnicalDepthPreference: raw.TechnicalDepthPreference,
		InstantJunkRules:         raw.InstantJunkRules,
	}
	for _, tw := range raw.TopicWeights {
		if tw.Topic != "" {
			rubric.TopicWeights[tw.Topic] = tw.Weight
		}
	}
	if rubric.InstantJunkRules == nil {
		rubric.InstantJunkRules = []string{}
	}
	return rubric, nil
}

func rubricText(rubric *core.Rubric) string {
	if rubric == nil {
		return "{}"
	}
	data, err := json.Marshal(rubric)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// TriageSchema is the response schema for Triage.
func TriageSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"results": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"idx":    {Type: genai.TypeInteger, Description: "Index of the article in the list"},
						"status": {Type: genai.TypeString, Enum: []string{"reject", "maybe", "good"}},
						"flags":  stringArray("Problems found, e.g. seo_trap, clickbait"),
					},
					Required: []string{"idx", "status"},
				},
			},
		},
		Required: []string{"results"},
	}
}

// Triage cheaply classifies a batch from titles and summaries only.
func (m *LLMModel) Triage(ctx context.Context, batch []core.Article, rubric *core.Rubric) ([]TriageResult, error) {
	var sb strings.Builder
	sb.WriteString("Triage these articles against the rubric below. The goal is to cheaply drop junk: ")
	sb.WriteString("SEO traps, clickbait and content unrelated to the reader.\n")
	fmt.Fprintf(&sb, "RUBRIC: %s\n\nARTICLES:\n", rubricText(rubric))
	for i, a := range batch {
		fmt.Fprintf(&sb, "%d: T:%s | D:%s\n", i, a.Title, a.Summary)
	}

	var resp struct {
		Results []struct {
			Index  int      `json:"idx"`
			Status string   `json:"status"`
			Flags  []string `json:"flags"`
		} `json:"results"`
	}
	if err := m.generate(ctx, sb.String(), TriageSchema(), &resp); err != nil {
		return nil, fmt.Errorf("failed to triage batch: %w", err)
	}

	results := make([]TriageResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, TriageResult{
			Index:  r.Index,
			Status: core.ParseTriageStatus(r.Status),
			Flags:  r.Flags,
		})
	}
	return results, nil
}

// ContentCardSchema is the response schema for ExtractContentCard.
func ContentCardSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": stringArray("Key points as short bullets"),
			"claims":  stringArray("Factual claims made by the text"),
			"entities": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"people":       stringArray(""),
					"companies":    stringArray(""),
					"technologies": stringArray(""),
				},
			},
			"metadata": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"depth":       {Type: genai.TypeString, Enum: []string{"shallow", "deep"}},
					"originality": number("0.0 to 1.0"),
					"is_news":     {Type: genai.TypeBoolean},
					"is_tutorial": {Type: genai.TypeBoolean},
					"is_analysis": {Type: genai.TypeBoolean},
				},
				Required: []string{"depth", "originality", "is_news", "is_tutorial", "is_analysis"},
			},
		},
		Required: []string{"summary", "claims", "entities", "metadata"},
	}
}

// ExtractContentCard extracts a structured card from the first 4000 characters of text.
func (m *LLMModel) ExtractContentCard(ctx context.Context, text string) (*core.ContentCard, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text to extract from")
	}
	if r := []rune(text); len(r) > contentCardChars {
		text = string(r[:contentCardChars])
	}

	prompt := "Extract a semantic content card from the article text below: key points, factual claims, " +
		"named entities, and whether it is news, a tutorial or analysis.\n\nTEXT:\n" + text

	var card core.ContentCard
	if err := m.generate(ctx, prompt, ContentCardSchema(), &card); err != nil {
		return nil, fmt.Errorf("failed to extract content card: %w", err)
	}
	return &card, nil
}

// ScoreSchema is the response schema for ScoreBatch.
func ScoreSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scores": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"idx":               {Type: genai.TypeInteger},
						"overall":           number("Overall score 0.0 to 1.0"),
						"topic_match":       number("0.0 to 1.0"),
						"novelty":           number("0.0 to 1.0"),
						"depth":             number("0.0 to 1.0"),
						"credibility":       number("0.0 to 1.0"),
						"junk_risk":         number("0.0 to 1.0"),
						"why":               stringArray("Short reasons for the score"),
						"filters_triggered": stringArray("Junk rules that matched"),
					},
					Required: []string{"idx", "overall"},
				},
			},
		},
		Required: []string{"scores"},
	}
}

// ScoreBatch scores a batch in detail. Articles with a content card are described
// by the card instead of the feed summary.
func (m *LLMModel) ScoreBatch(ctx context.Context, batch []core.Article, rubric *core.Rubric) ([]ScoreResult, error) {
	var sb strings.Builder
	sb.WriteString("Score these articles with the rubric below. Reward depth and originality, penalize SEO flags.\n")
	fmt.Fprintf(&sb, "RUBRIC: %s\n\nARTICLES:\n", rubricText(rubric))
	for i, a := range batch {
		if i > 0 {
			sb.WriteString("---\n")
		}
		desc := a.Summary
		if a.ContentCard != nil {
			desc = fmt.Sprintf("[AI SUMMARY]: %s\n[DEPTH]: %s", strings.Join(a.ContentCard.Summary, ". "), a.ContentCard.Metadata.Depth)
		}
		fmt.Fprintf(&sb, "%d: %s\n%s\n[FLAGS]: %s\n", i, a.Title, desc, strings.Join(a.SEOFlags, ", "))
	}

	var resp struct {
		Scores []struct {
			Index int `json:"idx"`
			core.Explanation
		} `json:"scores"`
	}
	if err := m.generate(ctx, sb.String(), ScoreSchema(), &resp); err != nil {
		return nil, fmt.Errorf("failed to score batch: %w", err)
	}

	results := make([]ScoreResult, 0, len(resp.Scores))
	for _, s := range resp.Scores {
		results = append(results, ScoreResult{Index: s.Index, Explanation: s.Explanation})
	}
	return results, nil
}

// ClusterSchema is the response schema for DetectSemanticDuplicates.
func ClusterSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"clusters": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"canonical_idx":  {Type: genai.TypeInteger, Description: "Index of the best article of the story"},
						"member_indices": intArray("Indices of every article of the story, canonical included"),
					},
					Required: []string{"canonical_idx", "member_indices"},
				},
			},
		},
		Required: []string{"clusters"},
	}
}

// DetectSemanticDuplicates groups titles that tell the same story.
func (m *LLMModel) DetectSemanticDuplicates(ctx context.Context, titles []string) ([]Cluster, error) {
	var sb strings.Builder
	sb.WriteString("Find titles in this list that report the same story. Group them into clusters and pick ")
	sb.WriteString("the best article of each cluster as canonical. Titles with no duplicate need no cluster.\n\n")
	for i, t := range titles {
		fmt.Fprintf(&sb, "%d: %s\n", i, t)
	}

	var resp struct {
		Clusters []Cluster `json:"clusters"`
	}
	if err := m.generate(ctx, sb.String(), ClusterSchema(), &resp); err != nil {
		return nil, fmt.Errorf("failed to detect duplicates: %w", err)
	}
	return resp.Clusters, nil
}

// PlanSchema is the response schema for PlanNextLinks.
func PlanSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"follow": intArray("Indices of links worth following, best first"),
		},
		Required: []string{"follow"},
	}
}

// PlanNextLinks picks the outbound links worth following and returns their URLs.
func (m *LLMModel) PlanNextLinks(ctx context.Context, links []fetch.Link, rubric *core.Rubric) ([]string, error) {
	if len(links) == 0 {
		return []string{}, nil
	}

	var sb strings.Builder
	sb.WriteString("You plan a one-hop crawl. Pick the candidate links that lead to high-signal content ")
	sb.WriteString("for the rubric below. Skip navigation, ads, privacy pages, newsletters and sidebars.\n")
	fmt.Fprintf(&sb, "RUBRIC: %s\n\nLINKS:\n", rubricText(rubric))
	for i, l := range links {
		fmt.Fprintf(&sb, "%d: [Context: %s] URL: %s\n", i, l.Context, l.URL)
	}

	var resp struct {
		Follow []int `json:"follow"`
	}
	if err := m.generate(ctx, sb.String(), PlanSchema(), &resp); err != nil {
		return nil, fmt.Errorf("failed to plan links: %w", err)
	}

	urls := make([]string, 0, len(resp.Follow))
	for _, idx := range resp.Follow {
		if idx >= 0 && idx < len(links) {
			urls = append(urls, links[idx].URL)
		}
	}
	return urls, nil
}

// QuestionSchema is the response schema for GenerateMicroQuestions.
func QuestionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":       {Type: genai.TypeString},
						"question": {Type: genai.TypeString},
						"options":  stringArray("2 to 4 short answers"),
						"context":  {Type: genai.TypeString, Description: "Why the question is asked"},
						"topic":    {Type: genai.TypeString},
					},
					Required: []string{"question", "options", "context"},
				},
			},
		},
		Required: []string{"questions"},
	}
}

// GenerateMicroQuestions asks about preference trade-offs suggested by the articles.
func (m *LLMModel) GenerateMicroQuestions(ctx context.Context, articles []core.Article, interest core.InterestModel) ([]core.MicroQuestion, error) {
	var sb strings.Builder
	sb.WriteString("You refine a reader's interest model by asking short multiple-choice questions.\n")
	fmt.Fprintf(&sb, "STABLE PREFERENCES: %q\n", interest.StablePreferences)
	fmt.Fprintf(&sb, "SESSION INTENT: %q\n\n", interest.SessionIntent)
	sb.WriteString("TOPICS IN THE LATEST FEED:\n")
	for _, a := range articles {
		fmt.Fprintf(&sb, "- %s (%s)\n", a.Title, a.Topic)
	}
	sb.WriteString("\nRULES:\n")
	sb.WriteString("1. Never ask about the content of an article or anything its title answers.\n")
	sb.WriteString("2. Ask about category ambiguities and trade-offs: more depth or more news, ")
	sb.WriteString("whether a new topic should join the session intent.\n")
	sb.WriteString("3. Offer 2 to 4 concise options.\n")

	var resp struct {
		Questions []core.MicroQuestion `json:"questions"`
	}
	if err := m.generate(ctx, sb.String(), QuestionSchema(), &resp); err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}
	return resp.Questions, nil
}

// InterestSchema is the response schema for RefineInterestModel.
func InterestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"stablePreferences": {Type: genai.TypeString, Description: "Long-term interests"},
			"sessionIntent":     {Type: genai.TypeString, Description: "Short-term focus"},
		},
		Required: []string{"stablePreferences", "sessionIntent"},
	}
}

// RefineInterestModel evolves the interest model from an answered question.
func (m *LLMModel) RefineInterestModel(ctx context.Context, interest core.InterestModel, question core.MicroQuestion, answer string) (*core.InterestModel, error) {
	current, _ := json.Marshal(interest)

	var sb strings.Builder
	sb.WriteString("Update the reader's interest model from their answer to a question.\n")
	fmt.Fprintf(&sb, "CURRENT MODEL: %s\n", current)
	fmt.Fprintf(&sb, "QUESTION: %q\n", question.Question)
	fmt.Fprintf(&sb, "ANSWER: %q\n", answer)
	fmt.Fprintf(&sb, "CONTEXT: %q\n\n", question.Context)
	sb.WriteString("Rewrite stablePreferences (long-term) and sessionIntent (short-term) to reflect the answer. ")
	sb.WriteString("Be specific and concise.\n")

	var refined core.InterestModel
	if err := m.generate(ctx, sb.String(), InterestSchema(), &refined); err != nil {
		return nil, fmt.Errorf("failed to refine interest model: %w", err)
	}
	return &refined, nil
}
