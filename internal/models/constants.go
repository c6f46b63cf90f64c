package models

const (
	DefaultSeparator     = "\n"
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultNumCandidates = 200
	DefaultTopK          = 10
	DefaultMaxResults    = 50
	DefaultTemperature   = 0.5
	DefaultDimension     = 1536
	DefaultCollection    = "documents"

	UnknownSource = "Unknown Source"
	UnknownPage   = "Unknown Page"

	ContextSeparator = " "
	RefusalAnswer    = "Sorry, I don't know how to help with that."
)

// DefaultExtensions are the document types ingested when none are configured
var DefaultExtensions = []string{".pdf"}

var (
	// AnswerPromptTemplate is rendered as a Go template with the
	// "context" and "question" variables.
	AnswerPromptTemplate = `You are a chat bot who loves to help people! Given the following context sections, answer the
question using only the given context. If you are unsure and the answer is not
explicitly written in the documentation, say "` + RefusalAnswer + `"

Context sections:
{{.context}}

Question:
{{.question}}

Answer:
`
)
