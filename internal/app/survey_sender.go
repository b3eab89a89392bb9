package app

import (
	"context"

	"go.uber.org/zap"

	"maihome-survey-service/internal/domain"
)

const defaultSurveyURL = "/surveys"

// SurveySender assigns a question set to houses and notifies them.
type SurveySender struct {
	sets       QuestionSetRepository
	engine     *SurveyEngine
	dispatcher *Dispatcher
	log        *zap.Logger
}

func NewSurveySender(sets QuestionSetRepository, engine *SurveyEngine, dispatcher *Dispatcher, log *zap.Logger) *SurveySender {
	if log == nil {
		log = zap.NewNop()
	}
	return &SurveySender{sets: sets, engine: engine, dispatcher: dispatcher, log: log.Named("sender")}
}

// Send creates assignments and dispatches the set's notification. Assignment
// failures abort before anything is sent; notification failures never undo
// assignments.
func (s *SurveySender) Send(ctx context.Context, setID string, houseIDs []string) (domain.SendResult, error) {
	if len(houseIDs) == 0 {
		return domain.SendResult{}, domain.Invalidf("Question set ID and at least one house ID are required")
	}
	qs, err := s.sets.Get(ctx, setID)
	if err != nil {
		return domain.SendResult{}, err
	}

	created, err := s.engine.AssignBulk(ctx, setID, houseIDs)
	if err != nil {
		return domain.SendResult{}, err
	}

	url := defaultSurveyURL
	if qs.NotificationURL != nil && *qs.NotificationURL != "" {
		url = *qs.NotificationURL
	}
	dispatch, err := s.dispatcher.DeliverToHouses(ctx, houseIDs, domain.NotificationPayload{
		Title: qs.NotificationTitle,
		Body:  qs.NotificationBody,
		URL:   url,
		Data: map[string]any{
			"type":          "survey",
			"questionSetId": setID,
		},
	})
	if err != nil {
		// Assignments stand even when the registry cannot be read.
		s.log.Error("survey notification failed", zap.String("question_set_id", setID), zap.Error(err))
	}

	var notified []string
	for _, a := range created {
		if dispatch.Reached(a.HouseID) {
			notified = append(notified, a.ID)
		}
	}
	if err := s.engine.MarkNotified(ctx, notified); err != nil {
		s.log.Warn("failed to mark assignments notified", zap.Int("assignments", len(notified)), zap.Error(err))
	}

	return domain.SendResult{
		AssignmentsCreated:  len(created),
		NotificationsSent:   dispatch.Sent,
		NotificationsFailed: dispatch.Failed,
	}, nil
}
