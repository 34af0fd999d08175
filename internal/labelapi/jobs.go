package labelapi

import (
	"bytes"
	"encoding/json"
	"fmt"

	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
)

// parseJobInterface decodes the platform's jsonInterface payload into job
// schemas. The payload is a JSON object keyed by job name; a plain map would
// lose the configured ordering, which classification label indices and the
// job processing order both depend on, so the object is walked with a token
// decoder instead.
func parseJobInterface(raw json.RawMessage) ([]api.JobSchema, error) {
	var envelope struct {
		Jobs json.RawMessage `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Jobs == nil {
		return nil, nil
	}

	names, values, err := orderedObject(envelope.Jobs)
	if err != nil {
		return nil, err
	}

	jobs := make([]api.JobSchema, 0, len(names))
	for i, name := range names {
		var job api.JobSchema
		if err := json.Unmarshal(values[i], &job); err != nil {
			return nil, fmt.Errorf("job %q: %w", name, err)
		}
		job.Name = name

		order, _, err := orderedObject(rawField(values[i], "content", "categories"))
		if err != nil {
			return nil, fmt.Errorf("job %q categories: %w", name, err)
		}
		job.Content.CategoryOrder = order

		jobs = append(jobs, job)
	}
	return jobs, nil
}

// orderedObject returns a JSON object's keys in document order together with
// each key's raw value. A nil or empty input yields no entries.
func orderedObject(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	return keys, values, nil
}

// rawField digs a nested field out of a raw JSON object, returning nil when
// any step is absent.
func rawField(raw json.RawMessage, path ...string) json.RawMessage {
	current := raw
	for _, field := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil
		}
		next, ok := obj[field]
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// JobDescriptors converts a project's raw job schemas into validated
// descriptors, stamping each with the project-level input type. Unknown enum
// values pass through unchanged; the dispatcher routes them to the
// "unsupported" outcome.
func JobDescriptors(project api.Project) []models.JobDescriptor {
	descriptors := make([]models.JobDescriptor, 0, len(project.Jobs))
	for _, job := range project.Jobs {
		tools := make([]models.Tool, 0, len(job.Tools))
		for _, t := range job.Tools {
			tools = append(tools, models.Tool(t))
		}

		categories := job.Content.CategoryOrder
		if len(categories) == 0 {
			for name := range job.Content.Categories {
				categories = append(categories, name)
			}
		}

		descriptors = append(descriptors, models.JobDescriptor{
			Name:         job.Name,
			ContentInput: models.ContentInput(job.Content.Input),
			InputType:    models.InputType(project.InputType),
			MLTask:       models.MLTask(job.MLTask),
			Tools:        tools,
			Categories:   categories,
		})
	}
	return descriptors
}
