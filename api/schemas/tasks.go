package schemas

// ActionType enumerates the in-page interaction steps a task may script.
type ActionType string

const (
	// ActionClick clicks the first element matching the selector.
	ActionClick ActionType = "click"
	// ActionTypeText types text into the first element matching the selector.
	ActionTypeText ActionType = "type"
	// ActionScroll scrolls the page. Count > 0 scrolls that many viewport
	// heights; Count == 0 scrolls to the bottom of the document.
	ActionScroll ActionType = "scroll"
	// ActionWait pauses for WaitMs milliseconds, bounded by the action timeout.
	ActionWait ActionType = "wait"
)

// Action is one interaction step inside a task script.
type Action struct {
	Type     ActionType `yaml:"type"`
	Selector string     `yaml:"selector,omitempty"`
	Value    string     `yaml:"value,omitempty"`
	Count    int        `yaml:"count,omitempty"`
	WaitMs   int        `yaml:"wait_ms,omitempty"`
}

// Task describes one page to load, interact with, and extract from.
// A Task is immutable once it has been handed to the pipeline.
type Task struct {
	ID      string   `yaml:"id"`
	URL     string   `yaml:"url"`
	Schema  string   `yaml:"schema"`
	Ready   string   `yaml:"ready,omitempty"` // selector that signals the page is rendered; defaults to "body"
	Actions []Action `yaml:"actions,omitempty"`
}

// Harvest describes a listing page whose matched hrefs are expanded into
// concrete tasks before the pipeline run starts. NextSelector, when set,
// points at a pagination control that is clicked between collection rounds.
type Harvest struct {
	ID           string `yaml:"id"`
	URL          string `yaml:"url"`
	Selector     string `yaml:"selector"`
	NextSelector string `yaml:"next_selector,omitempty"`
	MaxPages     int    `yaml:"max_pages,omitempty"`
	Schema       string `yaml:"schema"`
	Ready        string `yaml:"ready,omitempty"`
	Limit        int    `yaml:"limit,omitempty"`
}
