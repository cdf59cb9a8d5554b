package api

// Notebook is a notebook summary as returned by ListNotebooks.
type Notebook struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SourceCount int    `json:"sources"`
	Emoji       string `json:"emoji"`
}

// NotebookDetail is a notebook with its sources.
type NotebookDetail struct {
	ID      string   `json:"id,omitempty"`
	Title   string   `json:"title,omitempty"`
	Sources []Source `json:"sources"`
}

// SourceType names the kind of a source.
type SourceType string

const (
	SourceTypeURL     SourceType = "url"
	SourceTypeText    SourceType = "text"
	SourceTypeYouTube SourceType = "youtube"
	SourceTypePDF     SourceType = "pdf"
	SourceTypeAudio   SourceType = "audio"
	SourceTypeUnknown SourceType = "unknown"
)

// SourceTypeForCode maps the host's numeric source kind.
func SourceTypeForCode(code int) SourceType {
	switch code {
	case 1:
		return SourceTypeURL
	case 3:
		return SourceTypeText
	case 4:
		return SourceTypeYouTube
	case 7:
		return SourceTypePDF
	case 8:
		return SourceTypeAudio
	default:
		return SourceTypeUnknown
	}
}

// Source is one ingested item of a notebook.
type Source struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Type     SourceType `json:"type"`
	TypeCode int        `json:"typeCode"`
	URL      *string    `json:"url"`
	Status   int        `json:"status"`
}

// DeleteResult reports a DeleteSources call.
type DeleteResult struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}

const (
	// DefaultEmoji is used for notebooks that carry none.
	DefaultEmoji = "📔"
	// VideoEmoji marks notebooks created from YouTube links.
	VideoEmoji = "📺"
	// DefaultNotebookName is shown for notebooks without a name.
	DefaultNotebookName = "Untitled notebook"
	// DefaultSourceTitle is shown for sources without a title.
	DefaultSourceTitle = "Untitled"
	// DefaultTextTitle titles text sources and saved notebooks.
	DefaultTextTitle = "Imported content"
)
