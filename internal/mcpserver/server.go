// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes grid editing tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gridedit/internal/grid"
	"github.com/starford/gridedit/internal/gridservice"
	"github.com/starford/gridedit/internal/models"
)

// GridFormatURI is the resource URI of the grid format contract.
const GridFormatURI = "gridedit://grid-format"

// Server wraps the MCP server with grid tools.
type Server struct {
	mcp *server.MCPServer
	svc *gridservice.Service
}

// New creates a new MCP server with all grid tools registered. Paths given
// to the tools are relative to the content root.
func New(svc *gridservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gridedit",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("insert_cell",
		mcp.WithDescription("Insert a new cell after the cell with the given weight. "+
			"Later cells in the row shift one column right and are renamed, retitled and re-headed."),
		mcp.WithString("cellPath", mcp.Required(), mcp.Description("Any cell of the target row, e.g. tab1/row1/cell2")),
		mcp.WithNumber("weight", mcp.Required(), mcp.Description("Weight of the cell to insert after; 0 inserts at the front")),
	), s.insertCell)

	s.mcp.AddTool(mcp.NewTool("delete_cell",
		mcp.WithDescription("Delete a cell and shift later cells one column left. "+
			"The weight must match the weight stored on the cell."),
		mcp.WithString("cellPath", mcp.Required(), mcp.Description("Cell to delete, e.g. tab1/row1/cell2")),
		mcp.WithNumber("weight", mcp.Required(), mcp.Description("Current weight of the cell")),
	), s.deleteCell)

	s.mcp.AddTool(mcp.NewTool("insert_row",
		mcp.WithDescription("Insert a row with default cells directly below the given row. "+
			"Later rows shift down and the row number in their cell headings follows."),
		mcp.WithString("rowPath", mcp.Required(), mcp.Description("Anchor row, e.g. tab1/row1")),
		mcp.WithNumber("weight", mcp.Description("Weight of the anchor row")),
	), s.insertRow)

	s.mcp.AddTool(mcp.NewTool("delete_row",
		mcp.WithDescription("Delete a row with all its cells and shift later rows up."),
		mcp.WithString("rowPath", mcp.Required(), mcp.Description("Row to delete, e.g. tab1/row2")),
	), s.deleteRow)

	s.mcp.AddTool(mcp.NewTool("save_cell",
		mcp.WithDescription("Replace the body of a cell, keeping its front matter. "+
			"Read the contract first via get_grid_contract or the "+GridFormatURI+" resource."),
		mcp.WithString("cellPath", mcp.Required(), mcp.Description("Cell to write, e.g. tab1/row1/cell2")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown placed inside the cell shortcode")),
		mcp.WithString("checksum", mcp.Description("Optional SHA-256 of the current file for optimistic concurrency")),
	), s.saveCell)

	s.mcp.AddTool(mcp.NewTool("read_tab",
		mcp.WithDescription("List the rows and cells of a tab in weight order."),
		mcp.WithString("tabPath", mcp.Required(), mcp.Description("Tab directory, e.g. tab1")),
	), s.readTab)

	s.mcp.AddTool(mcp.NewTool("search_cells",
		mcp.WithDescription("Full-text search through cell titles and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCells)

	s.mcp.AddTool(mcp.NewTool("normalize_group",
		mcp.WithDescription("Renumber a row's cells or a tab's rows from their stored weights. "+
			"Use this to repair a group left inconsistent by an interrupted operation."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Row directory (kind cell) or tab directory (kind row)")),
		mcp.WithString("kind", mcp.Required(), mcp.Description("cell or row"), mcp.Enum("cell", "row")),
	), s.normalizeGroup)

	s.mcp.AddTool(mcp.NewTool("get_grid_contract",
		mcp.WithDescription("Returns the on-disk grid format contract. "+
			"Call this before editing cells to ensure correct structure."),
	), s.getGridContract)

	// Resource: grid format contract.
	s.mcp.AddResource(
		mcp.NewResource(GridFormatURI, "Grid Format Contract",
			mcp.WithResourceDescription("On-disk layout of tabs, rows and cells."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGridFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) insertCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cellPath, err := req.RequireString("cellPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	weight, err := req.RequireFloat("weight")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.InsertCell(ctx, cellPath, int(weight)))
}

func (s *Server) deleteCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cellPath, err := req.RequireString("cellPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	weight, err := req.RequireFloat("weight")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.DeleteCell(ctx, cellPath, int(weight)))
}

func (s *Server) insertRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rowPath, err := req.RequireString("rowPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	weight := 0
	if w, wErr := req.RequireFloat("weight"); wErr == nil {
		weight = int(w)
	}
	return resultJSON(s.svc.InsertRow(ctx, rowPath, weight))
}

func (s *Server) deleteRow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rowPath, err := req.RequireString("rowPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.DeleteRow(ctx, rowPath))
}

func (s *Server) saveCell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cellPath, err := req.RequireString("cellPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ifMatch := ""
	if cs, csErr := req.RequireString("checksum"); csErr == nil {
		ifMatch = cs
	}
	return resultJSON(s.svc.SaveCell(ctx, cellPath, content, ifMatch))
}

func (s *Server) readTab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabPath, err := req.RequireString("tabPath")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.Tab(ctx, tabPath))
}

func (s *Server) searchCells(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.Search(ctx, query, 20))
}

func (s *Server) normalizeGroup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return resultJSON(s.svc.Normalize(ctx, dir, models.Kind(kind)))
}

func (s *Server) getGridContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(GridFormatContract), nil
}

func (s *Server) readGridFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GridFormatURI,
			MIMEType: "text/markdown",
			Text:     GridFormatContract,
		},
	}, nil
}

// resultJSON renders v as indented JSON, or err as a tool error. A partial
// failure carries its committed and pending renames.
func resultJSON(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		var pe *grid.PartialError
		if errors.As(err, &pe) {
			state, _ := json.MarshalIndent(pe, "", "  ")
			return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, state)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
