package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/domain"
)

func TestCreateQuestionSetValidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sets.Create(ctx, app.QuestionSetInput{Title: "x", NotificationTitle: "t"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.sets.Create(ctx, app.QuestionSetInput{
		Title: "x", NotificationTitle: "t", NotificationBody: "b",
		Questions: []domain.QuestionInput{{Identifier: "q", Type: domain.QuestionRadio, Text: "Pick"}},
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	sets, err := f.sets.List(ctx)
	require.NoError(t, err)
	require.Empty(t, sets)
}

func TestCreateQuestionSetDefaults(t *testing.T) {
	f := newFixture(t)
	qs := f.questionSet(t, true)

	require.True(t, qs.IsActive)
	require.Nil(t, qs.ExpiresAt)
	require.Len(t, qs.Questions, 3)
	for i, q := range qs.Questions {
		require.Equal(t, i, q.OrderIndex)
		require.Equal(t, qs.ID, q.QuestionSetID)
	}
	require.False(t, qs.Questions[0].IsRequired, "display questions are never required")
	require.True(t, qs.Questions[1].IsRequired)
	require.False(t, qs.Questions[2].IsRequired)
}

func TestUpdateReconcilesQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.house(t, "H-1")
	qs := f.questionSet(t, true)
	warm, notes := questionID(t, qs, "warm"), questionID(t, qs, "notes")

	a, err := f.engine.Assign(ctx, qs.ID, h.ID)
	require.NoError(t, err)
	_, err = f.engine.RecordResponse(ctx, a.ID, notes, "to be dropped")
	require.NoError(t, err)

	// Warm the cache so the update has something to invalidate.
	_, err = f.engine.GetForResponse(ctx, a.ID, h.ID)
	require.NoError(t, err)

	title := "Heating survey v2"
	updated, err := f.sets.Update(ctx, qs.ID, domain.QuestionSetPatch{Title: &title}, []domain.QuestionInput{
		{ID: warm, Text: "Is your flat warm?"},
		{Identifier: "rooms", Type: domain.QuestionOpenText, Text: "Which rooms?"},
	})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Len(t, updated.Questions, 2)
	require.Equal(t, warm, updated.Questions[0].ID)
	require.Equal(t, "Is your flat warm?", updated.Questions[0].Text)
	require.Len(t, updated.Questions[0].Options, 2, "unspecified fields keep stored values")
	require.Equal(t, 0, updated.Questions[0].OrderIndex)
	require.Equal(t, "rooms", updated.Questions[1].Identifier)
	require.Equal(t, 1, updated.Questions[1].OrderIndex)

	detail, err := f.engine.GetForResponse(ctx, a.ID, h.ID)
	require.NoError(t, err)
	require.Len(t, detail.Questions, 2, "cached questions are invalidated")

	summary, err := f.engine.Summary(ctx, qs.ID)
	require.NoError(t, err)
	require.Len(t, summary.Responses, 1)
	require.Nil(t, summary.Responses[0].QuestionID, "responses to deleted questions go with them")
}

func TestUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	qs := f.questionSet(t, true)

	title := "Should not stick"
	_, err := f.sets.Update(ctx, qs.ID, domain.QuestionSetPatch{Title: &title}, []domain.QuestionInput{
		{Identifier: "dup", Type: domain.QuestionOpenText, Text: "One"},
		{Identifier: "dup", Type: domain.QuestionOpenText, Text: "Two"},
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.sets.Get(ctx, qs.ID)
	require.NoError(t, err)
	require.Equal(t, "Heating survey", got.Title)
	require.Len(t, got.Questions, 3)
}

func TestUpdateClearsExpiryAndListsCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.house(t, "H-1")
	qs := f.questionSet(t, true)
	_, err := f.engine.Assign(ctx, qs.ID, h.ID)
	require.NoError(t, err)

	soon := f.now.Add(48 * time.Hour)
	_, err = f.sets.Update(ctx, qs.ID, domain.QuestionSetPatch{ExpiresAt: &soon}, nil)
	require.NoError(t, err)
	cleared, err := f.sets.Update(ctx, qs.ID, domain.QuestionSetPatch{}, nil)
	require.NoError(t, err)
	require.Nil(t, cleared.ExpiresAt)
	require.Len(t, cleared.Questions, 3, "nil question list leaves questions alone")

	list, err := f.sets.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 3, list[0].QuestionCount)
	require.Equal(t, 1, list[0].AssignmentCount)

	_, err = f.sets.Update(ctx, "missing", domain.QuestionSetPatch{}, nil)
	require.ErrorIs(t, err, domain.ErrQuestionSetNotFound)
	empty := " "
	_, err = f.sets.Update(ctx, qs.ID, domain.QuestionSetPatch{Title: &empty}, nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}
