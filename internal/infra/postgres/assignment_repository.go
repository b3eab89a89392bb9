package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"maihome-survey-service/internal/domain"
)

const assignmentSetFK = "survey_assignments_question_set_id_fkey"

// AssignmentRepository implements app.AssignmentRepository on Postgres.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

func (r *AssignmentRepository) Create(ctx context.Context, setID, houseID string) (*domain.Assignment, error) {
	if err := checkAssignIDs(setID, []string{houseID}); err != nil {
		return nil, err
	}
	return insertAssignment(ctx, r.pool, setID, houseID)
}

// CreateBulk inserts every pair in one transaction. Existing pairs are
// skipped; any other failure rolls the whole batch back.
func (r *AssignmentRepository) CreateBulk(ctx context.Context, setID string, houseIDs []string) ([]domain.Assignment, error) {
	if err := checkAssignIDs(setID, houseIDs); err != nil {
		return nil, err
	}
	var created []domain.Assignment
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, hid := range houseIDs {
			a, err := insertAssignment(ctx, tx, setID, hid)
			if err != nil {
				return err
			}
			if a != nil {
				created = append(created, *a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func checkAssignIDs(setID string, houseIDs []string) error {
	if !validID(setID) {
		return domain.ErrQuestionSetNotFound
	}
	if !validIDs(houseIDs) {
		return domain.ErrUnknownHouse
	}
	return nil
}

func insertAssignment(ctx context.Context, q querier, setID, houseID string) (*domain.Assignment, error) {
	a := domain.Assignment{QuestionSetID: setID, HouseID: houseID}
	var status string
	err := q.QueryRow(ctx,
		`INSERT INTO survey_assignments (question_set_id, house_id) VALUES ($1, $2)
		 ON CONFLICT (question_set_id, house_id) DO NOTHING
		 RETURNING id, status, notification_sent_at, completed_at, created_at`,
		setID, houseID,
	).Scan(&a.ID, &status, &a.NotificationSentAt, &a.CompletedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if code, constraint := pgCode(err); code == codeForeignKeyViolation {
			if constraint == assignmentSetFK {
				return nil, domain.ErrQuestionSetNotFound
			}
			return nil, domain.ErrUnknownHouse
		}
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	a.Status = domain.AssignmentStatus(status)
	return &a, nil
}

func (r *AssignmentRepository) MarkNotified(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 || !validIDs(ids) {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE survey_assignments SET notification_sent_at = $2 WHERE id = ANY($1::uuid[])`, ids, at)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) ListPending(ctx context.Context, houseID string, now time.Time) ([]domain.PendingSurvey, error) {
	if !validID(houseID) {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT sa.id, sa.status, sa.notification_sent_at, sa.created_at,
			qs.id, qs.title, qs.description, qs.is_dismissable, qs.expires_at
		FROM survey_assignments sa
		JOIN question_sets qs ON qs.id = sa.question_set_id
		WHERE sa.house_id = $1
			AND sa.status = 'pending'
			AND qs.is_active
			AND (qs.expires_at IS NULL OR qs.expires_at > $2)
		ORDER BY sa.created_at DESC, sa.id`, houseID, now)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingSurvey
	for rows.Next() {
		var (
			p      domain.PendingSurvey
			status string
		)
		if err := rows.Scan(&p.AssignmentID, &status, &p.NotificationSentAt, &p.AssignedAt,
			&p.QuestionSetID, &p.Title, &p.Description, &p.IsDismissable, &p.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.Status = domain.AssignmentStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) GetForHouse(ctx context.Context, id, houseID string) (domain.AssignmentDetail, error) {
	if !validID(id) || !validID(houseID) {
		return domain.AssignmentDetail{}, domain.ErrAssignmentNotFound
	}
	var (
		d      domain.AssignmentDetail
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT sa.id, sa.question_set_id, sa.house_id, sa.status, sa.notification_sent_at, sa.completed_at, sa.created_at,
			qs.title, qs.description, qs.is_dismissable
		FROM survey_assignments sa
		JOIN question_sets qs ON qs.id = sa.question_set_id
		WHERE sa.id = $1 AND sa.house_id = $2`, id, houseID,
	).Scan(&d.ID, &d.QuestionSetID, &d.HouseID, &status, &d.NotificationSentAt, &d.CompletedAt, &d.CreatedAt,
		&d.Title, &d.Description, &d.IsDismissable)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AssignmentDetail{}, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return domain.AssignmentDetail{}, fmt.Errorf("get assignment: %w", err)
	}
	d.Status = domain.AssignmentStatus(status)
	return d, nil
}

// Complete locks the assignment row so concurrent submissions serialize and
// only the first one sees it pending. The question set row is share-locked
// so required questions are checked against the list an update would replace.
func (r *AssignmentRepository) Complete(ctx context.Context, id string, answers []domain.Answer, at time.Time) error {
	if !validID(id) {
		return domain.ErrAssignmentNotFound
	}
	return r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var status, setID string
		err := tx.QueryRow(ctx,
			`SELECT status, question_set_id FROM survey_assignments WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status, &setID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAssignmentNotFound
		}
		if err != nil {
			return fmt.Errorf("lock assignment: %w", err)
		}
		if !domain.AssignmentStatus(status).CanTransition(domain.StatusCompleted) {
			return domain.ErrAssignmentNotPending
		}
		if _, err := tx.Exec(ctx, `SELECT 1 FROM question_sets WHERE id = $1 FOR SHARE`, setID); err != nil {
			return fmt.Errorf("lock question set: %w", err)
		}
		questions, err := loadQuestions(ctx, tx, setID)
		if err != nil {
			return err
		}
		if err := domain.CheckRequired(questions, answers); err != nil {
			return err
		}
		for _, a := range answers {
			if _, err := upsertResponse(ctx, tx, id, a.QuestionID, a.Value); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx,
			`UPDATE survey_assignments SET status = 'completed', completed_at = $2 WHERE id = $1`, id, at)
		if err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		return nil
	})
}

func (r *AssignmentRepository) Dismiss(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return domain.ErrAssignmentNotFound
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE survey_assignments SET status = 'dismissed', completed_at = $2
		 WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return fmt.Errorf("dismiss assignment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrAssignmentNotFound
	}
	return domain.ErrAssignmentNotPending
}

func (r *AssignmentRepository) UpsertResponse(ctx context.Context, assignmentID, questionID, value string) (domain.Response, error) {
	if !validID(assignmentID) {
		return domain.Response{}, domain.ErrAssignmentNotFound
	}
	exists, err := r.exists(ctx, assignmentID)
	if err != nil {
		return domain.Response{}, err
	}
	if !exists {
		return domain.Response{}, domain.ErrAssignmentNotFound
	}
	return upsertResponse(ctx, r.pool, assignmentID, questionID, value)
}

// upsertResponse only accepts questions that belong to the assignment's set.
func upsertResponse(ctx context.Context, q querier, assignmentID, questionID, value string) (domain.Response, error) {
	if !validID(questionID) {
		return domain.Response{}, domain.Invalidf("Unknown question %s", questionID)
	}
	resp := domain.Response{AssignmentID: assignmentID, QuestionID: questionID}
	err := q.QueryRow(ctx, `
		INSERT INTO survey_responses (assignment_id, question_id, response_value)
		SELECT sa.id, qu.id, $3
		FROM survey_assignments sa
		JOIN questions qu ON qu.question_set_id = sa.question_set_id
		WHERE sa.id = $1 AND qu.id = $2
		ON CONFLICT (assignment_id, question_id) DO UPDATE SET response_value = EXCLUDED.response_value
		RETURNING id, response_value, created_at`,
		assignmentID, questionID, value,
	).Scan(&resp.ID, &resp.Value, &resp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Response{}, domain.Invalidf("Unknown question %s", questionID)
	}
	if err != nil {
		return domain.Response{}, fmt.Errorf("upsert response: %w", err)
	}
	return resp, nil
}

func (r *AssignmentRepository) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM survey_assignments WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return ok, nil
}

func (r *AssignmentRepository) Summary(ctx context.Context, setID string) (domain.ResponseSummary, error) {
	if _, err := getSet(ctx, r.pool, setID, false); err != nil {
		return domain.ResponseSummary{}, err
	}

	var s domain.ResponseSummary
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'dismissed'),
			COUNT(*)
		FROM survey_assignments
		WHERE question_set_id = $1`, setID,
	).Scan(&s.Summary.Pending, &s.Summary.Completed, &s.Summary.Dismissed, &s.Summary.Total)
	if err != nil {
		return domain.ResponseSummary{}, fmt.Errorf("count assignments: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT sa.id, h.id, h.house_id, h.name, sa.status, sa.completed_at,
			q.id, q.identifier, q.question_text, q.type, q.order_index, sr.response_value
		FROM survey_assignments sa
		JOIN houses h ON h.id = sa.house_id
		LEFT JOIN survey_responses sr ON sr.assignment_id = sa.id
		LEFT JOIN questions q ON q.id = sr.question_id
		WHERE sa.question_set_id = $1
		ORDER BY sa.completed_at DESC, sa.created_at, sa.id, q.order_index`, setID)
	if err != nil {
		return domain.ResponseSummary{}, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	s.Responses = []domain.ResponseRow{}
	for rows.Next() {
		var (
			row    domain.ResponseRow
			status string
			typ    *string
		)
		if err := rows.Scan(&row.AssignmentID, &row.HouseID, &row.HouseIdentifier, &row.HouseName, &status, &row.CompletedAt,
			&row.QuestionID, &row.QuestionIdentifier, &row.QuestionText, &typ, &row.OrderIndex, &row.ResponseValue); err != nil {
			return domain.ResponseSummary{}, fmt.Errorf("scan response row: %w", err)
		}
		row.Status = domain.AssignmentStatus(status)
		if typ != nil {
			t := domain.QuestionType(*typ)
			row.QuestionType = &t
		}
		s.Responses = append(s.Responses, row)
	}
	return s, rows.Err()
}
