package models

// ContentInput is how annotators enter a label for a job.
type ContentInput string

const (
	ContentInputRadio    ContentInput = "radio"
	ContentInputCheckbox ContentInput = "checkbox"
)

// InputType is the modality of the assets a project labels.
type InputType string

const (
	InputTypeText  InputType = "TEXT"
	InputTypeImage InputType = "IMAGE"
)

// MLTask is the predictive objective of a labeling job.
type MLTask string

const (
	TaskClassification         MLTask = "CLASSIFICATION"
	TaskNamedEntityRecognition MLTask = "NAMED_ENTITIES_RECOGNITION"
	TaskObjectDetection        MLTask = "OBJECT_DETECTION"
)

type Tool string

const (
	ToolRectangle Tool = "rectangle"
	ToolPolygon   Tool = "polygon"
)

type ModelFramework string

const (
	PyTorch    ModelFramework = "pytorch"
	TensorFlow ModelFramework = "tensorflow"
)

// KnownFrameworks lists every framework the artifact layout can contain.
var KnownFrameworks = []ModelFramework{PyTorch, TensorFlow}

type ModelRepository string

const (
	HuggingFace ModelRepository = "huggingface"
	Ultralytics ModelRepository = "ultralytics"
)

// KnownRepositories lists every repository the artifact layout can contain.
var KnownRepositories = []ModelRepository{HuggingFace, Ultralytics}

type ModelName string

const (
	BertBaseMultilingualCased ModelName = "bert-base-multilingual-cased"
	BertBaseCased             ModelName = "bert-base-cased"
	YoloV5                    ModelName = "yolov5"
)

// JobDescriptor is one labeling job of a project, as configured on the
// labeling platform. It is read-only to the training core; unknown enum
// values are preserved so the dispatcher can report the job as unsupported
// instead of failing at ingestion.
type JobDescriptor struct {
	Name         string
	ContentInput ContentInput
	InputType    InputType
	MLTask       MLTask
	Tools        []Tool

	// Categories is the ordered list of category names configured for the
	// job. Classification labels are encoded as indices into this list.
	Categories []string
}

func (j JobDescriptor) HasTool(tool Tool) bool {
	for _, t := range j.Tools {
		if t == tool {
			return true
		}
	}
	return false
}
