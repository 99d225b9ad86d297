package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gridedit/internal/grid"
	"github.com/starford/gridedit/internal/gridservice"
	"github.com/starford/gridedit/internal/index"
	"github.com/starford/gridedit/internal/models"
)

// InsertCellRequest is the request body for POST /api/insert-cell.
type InsertCellRequest struct {
	CellPath string `json:"cellPath" example:"content/tab1/row1/cell2/_index.md"`
	Weight   *int   `json:"weight" example:"2"`
}

// Validate validates the request.
func (r InsertCellRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CellPath, validation.Required),
		validation.Field(&r.Weight, validation.NotNil, validation.Min(0)),
	)
}

// DeleteCellRequest is the request body for POST /api/delete-cell.
type DeleteCellRequest struct {
	CellPath string `json:"cellPath" example:"content/tab1/row1/cell2/_index.md"`
	Weight   *int   `json:"weight" example:"2"`
}

// Validate validates the request.
func (r DeleteCellRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CellPath, validation.Required),
		validation.Field(&r.Weight, validation.NotNil, validation.Min(1)),
	)
}

// InsertRowRequest is the request body for POST /api/insert-row.
type InsertRowRequest struct {
	RowPath string `json:"rowPath" example:"content/tab1/row1/_index.md"`
	Weight  int    `json:"weight" example:"1"`
}

// Validate validates the request.
func (r InsertRowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RowPath, validation.Required),
		validation.Field(&r.Weight, validation.Min(0)),
	)
}

// DeleteRowRequest is the request body for POST /api/delete-row.
type DeleteRowRequest struct {
	RowPath string `json:"rowPath" example:"content/tab1/row2/_index.md"`
}

// Validate validates the request.
func (r DeleteRowRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RowPath, validation.Required),
	)
}

// SaveCellRequest is the request body for POST /api/save-cell.
type SaveCellRequest struct {
	FilePath string `json:"filePath" example:"content/tab1/row1/cell2/_index.md"`
	Content  string `json:"content" example:"## R1C2\n\nHello"`
}

// Validate validates the request.
func (r SaveCellRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FilePath, validation.Required),
		validation.Field(&r.Content, validation.Required),
	)
}

// NormalizeRequest is the request body for POST /api/normalize.
type NormalizeRequest struct {
	Path string `json:"path" example:"content/tab1/row1"`
	Kind string `json:"kind" example:"cell"`
}

// Validate validates the request.
func (r NormalizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Kind, validation.Required, validation.In(string(models.KindCell), string(models.KindRow))),
	)
}

// OperationResponse is returned by every successful grid mutation.
type OperationResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	DirName  string         `json:"dirName,omitempty"`
	Path     string         `json:"path,omitempty"`
	Position int            `json:"position,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
	Shifted  []models.Shift `json:"shifted"`
}

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status    string              `json:"status"`
	Message   string              `json:"message"`
	Endpoints []string            `json:"endpoints"`
	Index     *gridservice.Status `json:"index,omitempty"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// partialState is the body detail of a 500 partial failure.
type partialState struct {
	Op        string             `json:"op"`
	Dir       string             `json:"dir"`
	Committed []models.Shift     `json:"committed"`
	Pending   []grid.PendingMove `json:"pending"`
}
