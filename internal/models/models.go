package models

import "time"

// DocStatus tags a document version as authoritative or superseded.
type DocStatus string

const (
	StatusCurrent  DocStatus = "current"
	StatusObsolete DocStatus = "obsolete"
)

// Valid reports whether s is one of the recognised status values.
// Records with any other status are rejected at the boundary.
func (s DocStatus) Valid() bool {
	return s == StatusCurrent || s == StatusObsolete
}

// Section is one structural unit of a document (title, abstract, body, ...).
type Section struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Document is a normalized source document with section boundaries.
// It is immutable once chunked for a given version.
type Document struct {
	DocID      string    `json:"doc_id"`
	SourcePath string    `json:"source_path"`
	Status     DocStatus `json:"status"`
	Version    int       `json:"version"`
	Priority   int       `json:"priority,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	Sections   []Section `json:"sections"`
}

// Chunk is the unit of retrieval and citation. ChunkID is positional
// (doc:section:ordinal) so reruns over unchanged input reproduce identical ids.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocID      string    `json:"doc_id"`
	SourcePath string    `json:"source"`
	Section    string    `json:"section"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Status     DocStatus `json:"status"`
	Version    int       `json:"version"`
	Priority   int       `json:"priority,omitempty"`
	Topic      string    `json:"topic,omitempty"`
}

// LengthStats summarises the chunk text length distribution in characters.
type LengthStats struct {
	Min    int `json:"min"`
	Median int `json:"median"`
	P90    int `json:"p90"`
	Max    int `json:"max"`
}

// QCReport is the immutable result of validating one chunk corpus snapshot.
type QCReport struct {
	Total        int            `json:"total"`
	EmptyText    int            `json:"empty_text"`
	DuplicateIDs int            `json:"duplicate_ids"`
	LengthStats  LengthStats    `json:"length_stats"`
	TooShort     int            `json:"too_short"`
	TooLong      int            `json:"too_long"`
	Sections     map[string]int `json:"sections"`
	Verdict      string         `json:"verdict"`
}

const (
	VerdictPass = "pass"
	VerdictFail = "fail"
)

// ChunkHit is one retrieval result, scored by similarity.
type ChunkHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// RuleDoc is one governance rule document: structured header plus free-text body.
type RuleDoc struct {
	ID       string    `json:"id"`
	Version  int       `json:"version"`
	Status   DocStatus `json:"status"`
	Priority int       `json:"priority,omitempty"`
	Topic    string    `json:"topic,omitempty"`
	Body     string    `json:"body"`
}

// Snapshot identifies one immutable extraction run of a corpus.
type Snapshot struct {
	SnapshotID string    `json:"snapshot_id"`
	CorpusID   string    `json:"corpus_id"`
	ChunkCount int       `json:"chunk_count"`
	Published  bool      `json:"published"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditRecord logs what was retrieved, what was used, and under which rule-set
// version, for a single finalised answer. Write-once.
type AuditRecord struct {
	RequestID      string     `json:"request_id"`
	SnapshotID     string     `json:"snapshot_id"`
	Query          string     `json:"query"`
	Retrieved      []ChunkHit `json:"retrieved"`
	UsedSources    []string   `json:"used_sources"`
	RuleSetVersion string     `json:"rule_set_version"`
	Outcome        string     `json:"outcome"`
	CreatedAt      time.Time  `json:"created_at"`
}
