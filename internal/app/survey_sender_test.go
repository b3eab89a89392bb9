package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"maihome-survey-service/internal/domain"
)

func TestSendAssignsAndMarksReachedHouses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reachable, silent := f.house(t, "H-1"), f.house(t, "H-2")
	qs := f.questionSet(t, true)
	require.NoError(t, f.dispatcher.Register(ctx, subscription("https://push/h1"), reachable.ID))

	res, err := f.sender.Send(ctx, qs.ID, []string{reachable.ID, silent.ID})
	require.NoError(t, err)
	require.Equal(t, domain.SendResult{AssignmentsCreated: 2, NotificationsSent: 1}, res)

	require.Len(t, f.push.payloads, 1)
	p := f.push.payloads[0]
	require.Equal(t, "New survey", p.Title)
	require.Equal(t, "/surveys", p.URL)
	require.Equal(t, "survey", p.Data["type"])
	require.Equal(t, qs.ID, p.Data["questionSetId"])

	pending, err := f.engine.ListPending(ctx, reachable.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].NotificationSentAt)

	pending, err = f.engine.ListPending(ctx, silent.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Nil(t, pending[0].NotificationSentAt)

	// Sending again notifies but creates nothing new.
	res, err = f.sender.Send(ctx, qs.ID, []string{reachable.ID, silent.ID})
	require.NoError(t, err)
	require.Equal(t, 0, res.AssignmentsCreated)
	require.Equal(t, 1, res.NotificationsSent)
}

func TestSendAbortsBeforeNotifyingOnAssignmentFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.house(t, "H-1")
	qs := f.questionSet(t, true)
	require.NoError(t, f.dispatcher.Register(ctx, subscription("https://push/h1"), h.ID))

	_, err := f.sender.Send(ctx, qs.ID, []string{h.ID, "not-a-house"})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Empty(t, f.push.payloads)

	_, err = f.sender.Send(ctx, "missing-set", []string{h.ID})
	require.ErrorIs(t, err, domain.ErrQuestionSetNotFound)

	_, err = f.sender.Send(ctx, qs.ID, nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestSendKeepsAssignmentsWhenDeliveryFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	h := f.house(t, "H-1")
	qs := f.questionSet(t, true)
	require.NoError(t, f.dispatcher.Register(ctx, subscription("https://push/h1"), h.ID))
	f.push.broken["https://push/h1"] = true

	res, err := f.sender.Send(ctx, qs.ID, []string{h.ID})
	require.NoError(t, err)
	require.Equal(t, domain.SendResult{AssignmentsCreated: 1, NotificationsFailed: 1}, res)

	pending, err := f.engine.ListPending(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Nil(t, pending[0].NotificationSentAt)
}
