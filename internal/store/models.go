// Package store implements the Record Store (C1): typed persistence of
// memories, waypoints, and analyzer reports, with atomic single-statement
// writes and lazy table creation.
package store

import "time"

// Sector is one of the five cognitive categories a Memory belongs to.
type Sector string

const (
	SectorSemantic   Sector = "semantic"
	SectorEpisodic   Sector = "episodic"
	SectorProcedural Sector = "procedural"
	SectorReflective Sector = "reflective"
	SectorEmotional  Sector = "emotional"
)

// Valid reports whether s is one of the five recognised sectors.
func (s Sector) Valid() bool {
	switch s {
	case SectorSemantic, SectorEpisodic, SectorProcedural, SectorReflective, SectorEmotional:
		return true
	}
	return false
}

// AllSectors lists every recognised sector, stable order.
func AllSectors() []Sector {
	return []Sector{SectorSemantic, SectorEpisodic, SectorProcedural, SectorReflective, SectorEmotional}
}

// Embedding is a fixed-dimension real vector.
type Embedding []float64

// Tags is an order-independent, duplicate-free set of short labels,
// persisted as a JSON array.
type Tags []string

// Has reports whether t contains tag.
func (t Tags) Has(tag string) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// Add returns t with tag appended if not already present.
func (t Tags) Add(tag string) Tags {
	if t.Has(tag) {
		return t
	}
	return append(t, tag)
}

// Meta is an opaque bag of structured attributes, persisted as JSON.
type Meta map[string]any

// Memory is the atomic unit of the HSG store.
type Memory struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Content       string    `gorm:"type:text" json:"content"`
	Embedding     Embedding `gorm:"serializer:json;type:text" json:"embedding,omitempty"`
	Tags          Tags      `gorm:"serializer:json;type:text" json:"tags"`
	Meta          Meta      `gorm:"serializer:json;type:text" json:"meta"`
	UserID        string    `gorm:"index;type:varchar(128)" json:"user_id"`
	PrimarySector string    `gorm:"index;type:varchar(32)" json:"primary_sector"`
	Salience      float64   `json:"salience"`
	Coactivations int64     `json:"coactivations"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// TableName pins the GORM table name regardless of package/struct renames.
func (Memory) TableName() string { return "memories" }

// Waypoint is a directed, weighted edge between two Memories. At most one
// edge exists per ordered (src,dst) pair — upsert semantics.
type Waypoint struct {
	SrcID     string    `gorm:"primaryKey;type:varchar(64)" json:"src_id"`
	DstID     string    `gorm:"primaryKey;type:varchar(64)" json:"dst_id"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Waypoint) TableName() string { return "waypoints" }

// AnalyzerReportRow is one append-only row in a single analyzer's report
// table. Every analyzer owns its own table, created lazily on first insert.
type AnalyzerReportRow struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectName   string    `gorm:"index" json:"project_name"`
	UserID        string    `gorm:"index" json:"user_id"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	HeadlineCount int       `json:"headline_count"`
	JSONBlob      string    `gorm:"type:text" json:"json_blob"`
}
