package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/core"
	"curator/internal/store"
)

type fakeAnswerer struct {
	ok    bool
	err   error
	calls []string
}

func (f *fakeAnswerer) AnswerQuestion(ctx context.Context, questionID, answer string) (bool, error) {
	f.calls = append(f.calls, questionID+"="+answer)
	return f.ok, f.err
}

func request(t *testing.T, action string, payload any) Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Request{Action: action, Payload: raw}
}

func prefsOf(t *testing.T, st store.PreferenceStore) *core.Preferences {
	t.Helper()
	prefs, err := st.GetPreferences(context.Background())
	require.NoError(t, err)
	return prefs
}

func TestDispatch_Click(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	d := NewDispatcher(st, nil)

	resp, err := d.Dispatch(ctx, request(t, ActionClick, ClickPayload{
		SiteURL: "https://a.example/feed", Topic: "Tech", ArticleID: "a1",
	}))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	_, err = d.Dispatch(ctx, request(t, ActionClick, ClickPayload{
		SiteURL: "https://a.example/feed", Topic: "Tech",
	}))
	require.NoError(t, err)

	prefs := prefsOf(t, st)
	assert.Equal(t, 2.0, prefs.SiteScores["https://a.example/feed"])
	assert.Equal(t, 1.0, prefs.TopicScores["Tech"])
	assert.Equal(t, []string{"a1"}, prefs.ClickHistory)
	assert.Equal(t, 2, prefs.SourceReputation["https://a.example/feed"].UserEngagement)
}

func TestDispatch_BlockSiteToggles(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	d := NewDispatcher(st, nil)
	req := request(t, ActionBlockSite, SitePayload{SiteURL: "https://a.example"})

	resp, err := d.Dispatch(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp.Blocked)
	assert.True(t, *resp.Blocked)
	assert.True(t, prefsOf(t, st).IsBlocked("https://a.example"))

	resp, err = d.Dispatch(ctx, req)
	require.NoError(t, err)
	assert.False(t, *resp.Blocked)
	assert.False(t, prefsOf(t, st).IsBlocked("https://a.example"))
}

func TestDispatch_DemotionsApplyPenaltyOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	d := NewDispatcher(st, nil)

	for range 2 {
		resp, err := d.Dispatch(ctx, request(t, ActionDemoteSite, SitePayload{SiteURL: "https://spam.example"}))
		require.NoError(t, err)
		assert.True(t, resp.Success)

		resp, err = d.Dispatch(ctx, request(t, ActionDemoteTopic, TopicPayload{Topic: "Gossip"}))
		require.NoError(t, err)
		assert.True(t, resp.Success)
	}

	prefs := prefsOf(t, st)
	assert.Equal(t, []string{"https://spam.example"}, prefs.DemotedSites)
	assert.Equal(t, []string{"Gossip"}, prefs.DemotedTopics)
	assert.Equal(t, -5.0, prefs.SiteScores["https://spam.example"])
	assert.Equal(t, -5.0, prefs.TopicScores["Gossip"])
}

func TestDispatch_AddSite(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	d := NewDispatcher(st, nil)

	resp, err := d.Dispatch(ctx, request(t, ActionAddSite, AddSitePayload{URL: "https://new.example/rss", Category: "Science"}))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = d.Dispatch(ctx, request(t, ActionAddSite, AddSitePayload{URL: "https://other.example"}))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	sites, err := st.GetSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "Science", sites[0].Category)
	assert.Equal(t, core.DefaultCategory, sites[1].Category)
}

func TestDispatch_InvalidPayloads(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(store.NewMemoryStore(), nil)

	cases := []Request{
		{Action: ActionClick, Payload: json.RawMessage(`{"siteUrl":"https://a.example"}`)},
		{Action: ActionBlockSite},
		{Action: ActionDemoteTopic, Payload: json.RawMessage(`{"topic":""}`)},
		{Action: ActionAddSite, Payload: json.RawMessage(`{"url":"not a url"}`)},
		{Action: ActionAnswerQuestion, Payload: json.RawMessage(`{"questionId":"q1"}`)},
		{Action: ActionClick, Payload: json.RawMessage(`[1,2`)},
	}
	for _, req := range cases {
		t.Run(req.Action, func(t *testing.T) {
			resp, err := d.Dispatch(ctx, req)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, "invalid payload")
		})
	}
}

func TestDispatch_UnknownAction(t *testing.T) {
	d := NewDispatcher(store.NewMemoryStore(), nil)
	_, err := d.Dispatch(context.Background(), Request{Action: "like"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestDispatch_AnswerQuestion(t *testing.T) {
	ctx := context.Background()
	answerer := &fakeAnswerer{ok: true}
	d := NewDispatcher(store.NewMemoryStore(), answerer)

	resp, err := d.Dispatch(ctx, request(t, ActionAnswerQuestion, AnswerPayload{QuestionID: "q1", Answer: "More"}))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"q1=More"}, answerer.calls)

	answerer.ok = false
	resp, err = d.Dispatch(ctx, request(t, ActionAnswerQuestion, AnswerPayload{QuestionID: "q2", Answer: "Less"}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Error)

	answerer.err = errors.New("model unavailable")
	resp, err = d.Dispatch(ctx, request(t, ActionAnswerQuestion, AnswerPayload{QuestionID: "q3", Answer: "Less"}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "model unavailable", resp.Error)
}

func TestDispatch_AnswerQuestionWithoutAnswerer(t *testing.T) {
	d := NewDispatcher(store.NewMemoryStore(), nil)
	resp, err := d.Dispatch(context.Background(), request(t, ActionAnswerQuestion, AnswerPayload{QuestionID: "q1", Answer: "x"}))
	require.NoError(t, err)
	assert.False(t, resp.Success)
}
