package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	databasesURI      = "notedb://databases"
	databaseURIPrefix = "notedb://database/"
	schemaURISuffix   = "/schema"
)

func (s *Server) registerResources() {
	// ── notedb://databases ─────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		databasesURI,
		"All Databases",
		mcp.WithMIMEType("application/json"),
	), s.handleDatabasesResource)

	// ── notedb://database/{databaseId}/schema ──────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			databaseURIPrefix+"{databaseId}"+schemaURISuffix,
			"Database Schema",
		),
		s.handleSchemaResource,
	)
}

func (s *Server) handleDatabasesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	infos, err := s.databases.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(infos, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      databasesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	dbID := databaseIDFromURI(uri)
	if dbID == "" {
		return nil, fmt.Errorf("could not extract databaseId from URI: %s", uri)
	}

	db, err := s.databases.GetDatabase(ctx, dbID)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(db.Schema, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// databaseIDFromURI extracts the id from "notedb://database/{id}/schema".
func databaseIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, databaseURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, schemaURISuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
