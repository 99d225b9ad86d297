// Package gridservice coordinates the grid engine, the node index and live
// event publishing for the HTTP and MCP surfaces.
package gridservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/gridedit/internal/grid"
	"github.com/starford/gridedit/internal/index"
	"github.com/starford/gridedit/internal/models"
	"github.com/starford/gridedit/internal/sse"
	"github.com/starford/gridedit/internal/storage"
)

// Publisher receives grid events after each mutation. nodePath is the
// content-relative path the operation was addressed to.
type Publisher interface {
	PublishGridEvent(eventType, nodePath string, data any)
}

// Status summarises the indexed content tree.
type Status struct {
	Tabs  int `json:"tabs"`
	Rows  int `json:"rows"`
	Cells int `json:"cells"`
}

// Service wraps engine operations with index resync and event publishing.
type Service struct {
	engine *grid.Engine
	store  storage.Provider
	db     *index.DB
	pub    Publisher
	logger *slog.Logger
}

// NewService creates a new grid service. pub may be nil.
func NewService(engine *grid.Engine, store storage.Provider, db *index.DB, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, store: store, db: db, pub: pub, logger: logger}
}

// InsertCell inserts a cell after afterWeight in the row containing cellPath.
func (s *Service) InsertCell(ctx context.Context, cellPath string, afterWeight int) (*models.Result, error) {
	res, err := s.engine.InsertCell(ctx, cellPath, afterWeight)
	return s.finish(sse.EventCellCreated, cellPath, res, err)
}

// DeleteCell removes the cell at cellPath, whose stored weight must be weight.
func (s *Service) DeleteCell(ctx context.Context, cellPath string, weight int) (*models.Result, error) {
	res, err := s.engine.DeleteCell(ctx, cellPath, weight)
	return s.finish(sse.EventCellDeleted, cellPath, res, err)
}

// InsertRow inserts a row below rowPath.
func (s *Service) InsertRow(ctx context.Context, rowPath string, afterWeight int) (*models.Result, error) {
	res, err := s.engine.InsertRow(ctx, rowPath, afterWeight)
	return s.finish(sse.EventRowCreated, rowPath, res, err)
}

// DeleteRow removes the row at rowPath.
func (s *Service) DeleteRow(ctx context.Context, rowPath string) (*models.Result, error) {
	res, err := s.engine.DeleteRow(ctx, rowPath)
	return s.finish(sse.EventRowDeleted, rowPath, res, err)
}

// SaveCell replaces the body of a cell. See grid.Engine.SaveCell.
func (s *Service) SaveCell(ctx context.Context, cellPath, content, ifMatch string) (*models.Result, error) {
	res, err := s.engine.SaveCell(ctx, cellPath, content, ifMatch)
	return s.finish(sse.EventCellSaved, cellPath, res, err)
}

// Normalize renumbers the sibling group at dir.
func (s *Service) Normalize(ctx context.Context, dir string, kind models.Kind) (*models.Result, error) {
	res, err := s.engine.Normalize(ctx, dir, kind)
	return s.finish(sse.EventGroupNormalized, dir, res, err)
}

// Tab returns the live view of a tab read from disk.
func (s *Service) Tab(ctx context.Context, tabPath string) (*models.Tab, error) {
	return s.engine.Tab(ctx, tabPath)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return results, nil
}

// Status returns node counts from the index.
func (s *Service) Status(_ context.Context) (*Status, error) {
	counts, err := s.db.Counts()
	if err != nil {
		return nil, err
	}
	return &Status{
		Tabs:  counts[models.KindTab],
		Rows:  counts[models.KindRow],
		Cells: counts[models.KindCell],
	}, nil
}

// Resync brings the index up to date with the content tree.
func (s *Service) Resync() error {
	_, err := index.Sync(s.db, s.store, s.engine.IndexFile(), s.logger)
	return err
}

// finish resyncs the index after anything that may have touched the disk and
// publishes eventType on success.
func (s *Service) finish(eventType, nodePath string, res *models.Result, err error) (*models.Result, error) {
	var pe *grid.PartialError
	touched := err == nil || errors.As(err, &pe)
	if touched {
		if syncErr := s.Resync(); syncErr != nil {
			s.logger.Warn("gridservice: index resync failed", slog.String("error", syncErr.Error()))
		}
	}
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.PublishGridEvent(eventType, nodePath, res)
	}
	return res, nil
}
