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

const (
	setColumns = `id, title, description, notification_title, notification_body, notification_url,
		expires_at, is_dismissable, is_active, created_at, updated_at`
	questionColumns = `id, question_set_id, identifier, type, question_text, options, is_required, order_index, created_at`
)

// QuestionSetRepository implements app.QuestionSetRepository on Postgres.
// Multi-row writes run in one transaction.
type QuestionSetRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionSetRepository(pool *pgxpool.Pool) *QuestionSetRepository {
	return &QuestionSetRepository{pool: pool}
}

func (r *QuestionSetRepository) Create(ctx context.Context, qs domain.QuestionSet, questions []domain.Question) (domain.QuestionSet, error) {
	if err := domain.ValidateQuestions(questions); err != nil {
		return domain.QuestionSet{}, err
	}
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO question_sets
				(title, description, notification_title, notification_body, notification_url, expires_at, is_dismissable, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id, created_at, updated_at`,
			qs.Title, qs.Description, qs.NotificationTitle, qs.NotificationBody, qs.NotificationURL,
			qs.ExpiresAt, qs.IsDismissable, qs.IsActive,
		).Scan(&qs.ID, &qs.CreatedAt, &qs.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert question set: %w", err)
		}
		for _, q := range questions {
			if err := insertQuestion(ctx, tx, qs.ID, q); err != nil {
				return err
			}
		}
		qs.Questions, err = loadQuestions(ctx, tx, qs.ID)
		return err
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return qs, nil
}

func (r *QuestionSetRepository) List(ctx context.Context) ([]domain.QuestionSetSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+setColumns+`,
			(SELECT COUNT(*) FROM questions q WHERE q.question_set_id = qs.id),
			(SELECT COUNT(*) FROM survey_assignments sa WHERE sa.question_set_id = qs.id)
		FROM question_sets qs
		ORDER BY qs.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list question sets: %w", err)
	}
	defer rows.Close()

	var out []domain.QuestionSetSummary
	for rows.Next() {
		var s domain.QuestionSetSummary
		if err := rows.Scan(append(setFields(&s.QuestionSet), &s.QuestionCount, &s.AssignmentCount)...); err != nil {
			return nil, fmt.Errorf("scan question set: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *QuestionSetRepository) Get(ctx context.Context, id string) (domain.QuestionSet, error) {
	qs, err := getSet(ctx, r.pool, id, false)
	if err != nil {
		return domain.QuestionSet{}, err
	}
	qs.Questions, err = loadQuestions(ctx, r.pool, id)
	return qs, err
}

func (r *QuestionSetRepository) LoadQuestions(ctx context.Context, setID string) ([]domain.Question, error) {
	if !validID(setID) {
		return nil, domain.ErrQuestionSetNotFound
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM question_sets WHERE id = $1)`, setID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check question set: %w", err)
	}
	if !exists {
		return nil, domain.ErrQuestionSetNotFound
	}
	return loadQuestions(ctx, r.pool, setID)
}

// Update locks the set row, applies patch and reconciles questions before
// committing. A rejected question list rolls back the patch too.
func (r *QuestionSetRepository) Update(ctx context.Context, id string, patch domain.QuestionSetPatch, incoming []domain.QuestionInput, at time.Time) (domain.QuestionSet, error) {
	var out domain.QuestionSet
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		qs, err := getSet(ctx, tx, id, true)
		if err != nil {
			return err
		}
		qs = patch.Apply(qs)
		qs.UpdatedAt = at
		_, err = tx.Exec(ctx,
			`UPDATE question_sets SET
				title = $2, description = $3, notification_title = $4, notification_body = $5,
				notification_url = $6, expires_at = $7, is_dismissable = $8, is_active = $9, updated_at = $10
			 WHERE id = $1`,
			id, qs.Title, qs.Description, qs.NotificationTitle, qs.NotificationBody,
			qs.NotificationURL, qs.ExpiresAt, qs.IsDismissable, qs.IsActive, qs.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update question set: %w", err)
		}

		if incoming != nil {
			existing, err := loadQuestions(ctx, tx, id)
			if err != nil {
				return err
			}
			plan, err := domain.PlanQuestions(existing, incoming)
			if err != nil {
				return err
			}
			if err := applyPlan(ctx, tx, id, plan); err != nil {
				return err
			}
		}

		qs.Questions, err = loadQuestions(ctx, tx, id)
		out = qs
		return err
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return out, nil
}

func applyPlan(ctx context.Context, tx pgx.Tx, setID string, plan domain.QuestionPlan) error {
	if len(plan.Delete) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = ANY($1::uuid[])`, plan.Delete); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
	}
	for _, q := range plan.Update {
		opts, err := encodeOptions(q.Options)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE questions SET identifier = $2, type = $3, question_text = $4, options = $5,
				is_required = $6, order_index = $7
			 WHERE id = $1`,
			q.ID, q.Identifier, string(q.Type), q.Text, opts, q.IsRequired, q.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("update question %s: %w", q.Identifier, err)
		}
	}
	for _, q := range plan.Insert {
		if err := insertQuestion(ctx, tx, setID, q); err != nil {
			return err
		}
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for questions, assignments and responses.
func (r *QuestionSetRepository) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM question_sets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete question set: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func getSet(ctx context.Context, q querier, id string, forUpdate bool) (domain.QuestionSet, error) {
	if !validID(id) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	sql := `SELECT ` + setColumns + ` FROM question_sets WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var qs domain.QuestionSet
	err := q.QueryRow(ctx, sql, id).Scan(setFields(&qs)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
	}
	if err != nil {
		return domain.QuestionSet{}, fmt.Errorf("get question set: %w", err)
	}
	return qs, nil
}

func setFields(qs *domain.QuestionSet) []interface{} {
	return []interface{}{
		&qs.ID, &qs.Title, &qs.Description, &qs.NotificationTitle, &qs.NotificationBody, &qs.NotificationURL,
		&qs.ExpiresAt, &qs.IsDismissable, &qs.IsActive, &qs.CreatedAt, &qs.UpdatedAt,
	}
}

func insertQuestion(ctx context.Context, q querier, setID string, question domain.Question) error {
	opts, err := encodeOptions(question.Options)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx,
		`INSERT INTO questions (question_set_id, identifier, type, question_text, options, is_required, order_index)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		setID, question.Identifier, string(question.Type), question.Text, opts, question.IsRequired, question.OrderIndex,
	)
	if err != nil {
		return fmt.Errorf("insert question %s: %w", question.Identifier, err)
	}
	return nil
}

func loadQuestions(ctx context.Context, q querier, setID string) ([]domain.Question, error) {
	rows, err := q.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_set_id = $1 ORDER BY order_index, created_at, id`,
		setID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	out := []domain.Question{}
	for rows.Next() {
		var (
			question domain.Question
			typ      string
			raw      []byte
		)
		if err := rows.Scan(&question.ID, &question.QuestionSetID, &question.Identifier, &typ, &question.Text,
			&raw, &question.IsRequired, &question.OrderIndex, &question.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		question.Type = domain.QuestionType(typ)
		if question.Options, err = decodeOptions(raw); err != nil {
			return nil, err
		}
		out = append(out, question)
	}
	return out, rows.Err()
}
