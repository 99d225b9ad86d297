// Package models defines the domain types for gridedit.
package models

import "time"

// Kind is the grid level a node directory represents.
type Kind string

const (
	KindTab  Kind = "tab"
	KindRow  Kind = "row"
	KindCell Kind = "cell"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTab, KindRow, KindCell:
		return true
	}
	return false
}

// Cell is one cell as seen in a tab view.
type Cell struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
	Weight  int    `json:"weight"`
	Title   string `json:"title"`
	Row     int    `json:"row,omitempty"`    // row component of the R<row>C<col> heading
	Column  int    `json:"column,omitempty"` // column component of the heading
}

// Row is one row and its cells in weight order.
type Row struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
	Weight  int    `json:"weight"`
	Title   string `json:"title"`
	Cells   []Cell `json:"cells"`
}

// Tab is a tab directory with its rows in weight order.
type Tab struct {
	Path string `json:"path"`
	Rows []Row  `json:"rows"`
}

// Shift records a node that was renamed by a renumbering pass.
type Shift struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is returned by every mutating grid operation.
type Result struct {
	DirName  string  `json:"dirName,omitempty"`
	Path     string  `json:"path,omitempty"`
	Position int     `json:"position,omitempty"`
	Checksum string  `json:"checksum,omitempty"`
	Shifted  []Shift `json:"shifted"`
}

// FileMetadata is a lightweight representation of a node's index file.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
