package corpus

// Document is a single text awaiting classification or annotation.
type Document struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// LabeledDocument is a document with a human-assigned binary label.
// Unlabeled documents are represented by the plain Document type rather
// than a sentinel label value.
type LabeledDocument struct {
	Document
	Label int `json:"label"`
}
