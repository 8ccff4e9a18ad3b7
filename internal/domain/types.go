package domain

// QueueStatus tracks the lifecycle of one submitted file in the batch queue.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusComplete   QueueStatus = "complete"
	QueueStatusError      QueueStatus = "error"
)

// IsTerminal reports whether a status can no longer change.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusComplete || s == QueueStatusError
}

// TranscriptSegment is one timestamped span of transcribed text.
type TranscriptSegment struct {
	ID      string  `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	IsFinal bool    `json:"isFinal"`
}

// QueueItem stores one submitted file and its transcription state.
type QueueItem struct {
	ID           string              `json:"id"`
	DisplayName  string              `json:"displayName"`
	SourcePath   string              `json:"sourcePath"`
	Status       QueueStatus         `json:"status"`
	Progress     int                 `json:"progress"`
	Segments     []TranscriptSegment `json:"segments"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	HistoryID    string              `json:"historyId,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	MaxConcurrent        int      `json:"maxConcurrent"`
	Language             string   `json:"language"`
	OfflineModelPath     string   `json:"offlineModelPath"`
	PunctuationModelPath string   `json:"punctuationModelPath"`
	VADModelPath         string   `json:"vadModelPath"`
	CTCModelPath         string   `json:"ctcModelPath"`
	EnableITN            bool     `json:"enableITN"`
	EnabledITNModels     []string `json:"enabledITNModels"`
	ITNRulesOrder        []string `json:"itnRulesOrder"`
	EnableTimeline       bool     `json:"enableTimeline"`
}
