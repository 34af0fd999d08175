package api

// Types mirroring the labeling platform's API payloads. Only the fields the
// training pipelines read are declared.

type Project struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	InputType string `json:"inputType"`

	// Jobs maps job name to its raw schema, in the order returned by the
	// platform (the JSON object order is preserved by the client).
	Jobs []JobSchema `json:"jobs"`
}

// JobSchema is the platform-side shape of one labeling job before it is
// validated into a models.JobDescriptor.
type JobSchema struct {
	Name        string     `json:"name"`
	Content     JobContent `json:"content"`
	MLTask      string     `json:"mlTask"`
	Tools       []string   `json:"tools"`
	Required    bool       `json:"required"`
	IsVisible   bool       `json:"isVisible"`
	IsChild     bool       `json:"isChild"`
	Instruction string     `json:"instruction,omitempty"`
}

type JobContent struct {
	Input      string              `json:"input"`
	Categories map[string]Category `json:"categories"`

	// CategoryOrder preserves the configured category ordering, which the
	// categories map cannot. Classification label indices follow this order.
	CategoryOrder []string `json:"categoryOrder"`
}

type Category struct {
	Name     string   `json:"name"`
	Children []string `json:"children,omitempty"`
}

type Asset struct {
	ID string `json:"id"`

	// Content is a URL for remote assets or inline data for text assets
	// uploaded directly.
	Content string `json:"content"`

	ExternalID string  `json:"externalId"`
	Labels     []Label `json:"labels"`
}

type Label struct {
	Author       string                 `json:"authorId"`
	LabelType    string                 `json:"labelType"`
	JSONResponse map[string]JobResponse `json:"jsonResponse"`
}

// JobResponse is an annotator's answer for one job on one asset.
type JobResponse struct {
	Categories  []AnnotationCategory `json:"categories,omitempty"`
	Annotations []Annotation         `json:"annotations,omitempty"`
}

type AnnotationCategory struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Annotation is a span (NER) or region (object detection) annotation.
type Annotation struct {
	Categories  []AnnotationCategory `json:"categories"`
	Content     string               `json:"content,omitempty"`
	BeginOffset int                  `json:"beginOffset,omitempty"`

	// BoundingPoly carries normalized vertices for rectangle tools.
	BoundingPoly []BoundingPoly `json:"boundingPoly,omitempty"`
}

type BoundingPoly struct {
	NormalizedVertices []Vertex `json:"normalizedVertices"`
}

type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
