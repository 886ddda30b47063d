package analysis

// MethodKeywordExtraction marks a result produced without the model.
const MethodKeywordExtraction = "keyword_extraction"

// MethodModel labels analyses where the model ran. It is only used for
// metrics; results carry tokens_analyzed instead.
const MethodModel = "model"

// AuthiVersion is the product string used in acknowledgments and health.
const AuthiVersion = "1.0"

type AnalyzeRequest struct {
	Text string `json:"text"`
}

// Result is returned once per analyze call and never stored. Exactly one of
// TokensAnalyzed and Method is set.
type Result struct {
	Success        bool     `json:"success"`
	Conditions     []string `json:"conditions"`
	TextLength     int      `json:"text_length"`
	TokensAnalyzed *int     `json:"tokens_analyzed,omitempty"`
	Method         string   `json:"method,omitempty"`
}

type AuthiRequest struct {
	Condition string `json:"condition"`
	Action    string `json:"action"`
}

type Acknowledgment struct {
	Success   bool   `json:"success"`
	Condition string `json:"condition"`
	Action    string `json:"action"`
	Message   string `json:"message"`
}

type Health struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
}
