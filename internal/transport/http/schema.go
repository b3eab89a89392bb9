package http

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/qri-io/jsonschema"

	"maihome-survey-service/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	createQuestionSetSchema = mustSchema("schemas/question_set_create.json")
	updateQuestionSetSchema = mustSchema("schemas/question_set_update.json")
)

func mustSchema(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, rs); err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return rs
}

// checkSchema validates body against rs. The first violation becomes the
// caller-facing message.
func checkSchema(ctx context.Context, rs *jsonschema.Schema, body []byte) error {
	errs, err := rs.ValidateBytes(ctx, body)
	if err != nil {
		return domain.Invalidf("Invalid request body")
	}
	if len(errs) > 0 {
		e := errs[0]
		if e.PropertyPath == "" || e.PropertyPath == "/" {
			return domain.Invalidf("Invalid request body: %s", e.Message)
		}
		return domain.Invalidf("Invalid request body: %s %s", e.PropertyPath, e.Message)
	}
	return nil
}
