// Package sync implements Catalog Sync (spec §4.7, C7): translating
// mutations of the MCP server catalog into minimal incremental updates
// against the Discovery Index.
package sync

import (
	"context"

	"github.com/mcpgw/authgw/internal/discovery"
	"github.com/mcpgw/authgw/internal/gwlog"
)

// CollectionTools is the single collection tool documents live in.
// CollectionServers holds the synthesized documents of tool-less servers and
// agents; both kinds share it and are told apart by entity_type (spec §4.6:
// "one collection per document kind").
const (
	CollectionTools   = "tools"
	CollectionServers = "servers"
)

// Tool is the catalog's view of one MCP tool, the input to Diff (spec §3.12).
type Tool struct {
	Name        string
	Description string
	ArgsDoc     string
	ReturnsDoc  string
	InputSchema string
	Tags        []string
}

// Server is the catalog's view of one MCP server or A2A agent.
type Server struct {
	ID          string
	Path        string
	Name        string
	Description string
	Tags        []string
	Enabled     bool
	Tools       []Tool // empty for a tool-less A2A agent
}

// Diff is the name-keyed comparison of an old and new tool list (spec §3.12).
type Diff struct {
	ToAdd    []Tool
	ToUpdate []Tool
	ToDelete []Tool
}

// ComputeDiff implements the Tool Diff computation (spec §3.12): name-keyed
// comparison, a tool is "to update" only when its description changed.
func ComputeDiff(oldTools, newTools []Tool) Diff {
	oldByName := make(map[string]Tool, len(oldTools))
	for _, t := range oldTools {
		oldByName[t.Name] = t
	}
	newByName := make(map[string]Tool, len(newTools))
	for _, t := range newTools {
		newByName[t.Name] = t
	}

	var d Diff
	for _, nt := range newTools {
		ot, existed := oldByName[nt.Name]
		if !existed {
			d.ToAdd = append(d.ToAdd, nt)
			continue
		}
		if ot.Description != nt.Description {
			d.ToUpdate = append(d.ToUpdate, nt)
		}
	}
	for _, ot := range oldTools {
		if _, stillPresent := newByName[ot.Name]; !stillPresent {
			d.ToDelete = append(d.ToDelete, ot)
		}
	}
	return d
}

// Syncer applies catalog mutations to the Discovery Index with the minimum
// necessary work (spec §4.7). Operations are idempotent and restartable:
// repeating the same input produces the same index state.
type Syncer struct {
	index *discovery.Index
}

// New builds a Syncer bound to the Discovery Index.
func New(index *discovery.Index) *Syncer {
	return &Syncer{index: index}
}

func toolDocument(s Server, t Tool) discovery.Document {
	return discovery.Prepare(discovery.Document{
		ToolName:           t.Name,
		ServerName:         s.Name,
		ServerPath:         s.Path,
		ServerID:           s.ID,
		EntityType:         discovery.EntityMCPTool,
		MainDescription:    t.Description,
		ArgsDescription:    t.ArgsDoc,
		ReturnsDescription: t.ReturnsDoc,
		InputSchema:        t.InputSchema,
		Tags:               t.Tags,
		IsEnabled:          s.Enabled,
	})
}

// virtualServerDocument synthesizes the single document representing a
// tool-less server — typically an A2A agent (spec §4.7: "If the server has
// no tools ... synthesize one virtual document from server name/description/
// skills").
func virtualServerDocument(s Server) discovery.Document {
	return discovery.Prepare(discovery.Document{
		ServerName:      s.Name,
		ServerPath:      s.Path,
		ServerID:        s.ID,
		EntityType:      discovery.EntityA2AAgent,
		MainDescription: s.Description,
		Tags:            s.Tags,
		IsEnabled:       s.Enabled,
	})
}

// serverFilter scopes operations to one server by its stable ID.
func serverFilter(serverID string) discovery.Filter {
	return discovery.Filter{"server_id": serverID}
}

func serverPathFilter(path string) discovery.Filter {
	return discovery.Filter{"server_path": path}
}

// UpsertServer implements "Enable / upsert of a server" (spec §4.7): diffs
// old against new tools and applies the minimal add/update/delete set. A
// tool-less server gets one synthesized virtual document instead.
func (s *Syncer) UpsertServer(ctx context.Context, oldServer, newServer Server) error {
	if len(newServer.Tools) == 0 {
		return s.upsertVirtualServerDoc(ctx, newServer)
	}

	diff := ComputeDiff(oldServer.Tools, newServer.Tools)
	gwlog.Infow("catalog sync: upserting server",
		"server_id", newServer.ID, "to_add", len(diff.ToAdd), "to_update", len(diff.ToUpdate), "to_delete", len(diff.ToDelete))

	if len(diff.ToAdd) > 0 {
		docs := make([]discovery.Document, 0, len(diff.ToAdd))
		for _, t := range diff.ToAdd {
			docs = append(docs, toolDocument(newServer, t))
		}
		if _, err := s.index.Store().BulkInsert(ctx, CollectionTools, docs); err != nil {
			return err
		}
	}

	for _, t := range diff.ToUpdate {
		// Description change means the embedded content changed: this must
		// be a delete-and-reinsert, not an in-place metadata patch (spec
		// §3.11, §4.7 "description change requires re-embedding").
		if err := s.deleteToolByName(ctx, newServer, t.Name); err != nil {
			return err
		}
		if _, err := s.index.Store().Insert(ctx, CollectionTools, toolDocument(newServer, t)); err != nil {
			return err
		}
	}

	for _, t := range diff.ToDelete {
		if err := s.deleteToolByName(ctx, newServer, t.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) upsertVirtualServerDoc(ctx context.Context, server Server) error {
	if _, err := s.index.Store().DeleteByFilter(ctx, CollectionServers, serverFilter(server.ID)); err != nil {
		return err
	}
	_, err := s.index.Store().Insert(ctx, CollectionServers, virtualServerDocument(server))
	return err
}

func (s *Syncer) deleteToolByName(ctx context.Context, server Server, toolName string) error {
	_, err := s.index.Store().DeleteByFilter(ctx, CollectionTools, discovery.Filter{
		"$and": []discovery.Filter{
			{"server_id": server.ID},
			{"tool_name": toolName},
		},
	})
	return err
}

// Disable implements "Disable" (spec §4.7): delete every document belonging
// to the server, tools and any virtual server document alike.
func (s *Syncer) Disable(ctx context.Context, serverID string) error {
	if _, err := s.index.Store().DeleteByFilter(ctx, CollectionTools, serverFilter(serverID)); err != nil {
		return err
	}
	_, err := s.index.Store().DeleteByFilter(ctx, CollectionServers, serverFilter(serverID))
	return err
}

// UpdateMetadataOnly implements the "Metadata-only change" path (spec
// §4.7): tags, enabled flag, or display name, applied via
// batch_update_properties against {server_path: path} with no re-embedding.
func (s *Syncer) UpdateMetadataOnly(ctx context.Context, serverPath string, patch map[string]any) error {
	toolDocs, err := s.index.Store().Filter(ctx, CollectionTools, serverPathFilter(serverPath), 0, 0)
	if err != nil {
		return err
	}
	ids := idsOf(toolDocs)
	if len(ids) > 0 {
		if err := s.index.Store().BatchUpdateProperties(ctx, CollectionTools, ids, patch); err != nil {
			return err
		}
	}

	serverDocs, err := s.index.Store().Filter(ctx, CollectionServers, serverPathFilter(serverPath), 0, 0)
	if err != nil {
		return err
	}
	serverIDs := idsOf(serverDocs)
	if len(serverIDs) > 0 {
		return s.index.Store().BatchUpdateProperties(ctx, CollectionServers, serverIDs, patch)
	}
	return nil
}

// Toggle implements the enabled/disabled metadata flip specifically (spec §4.7,
// scenario S6): a thin convenience over UpdateMetadataOnly.
func (s *Syncer) Toggle(ctx context.Context, serverPath string, enabled bool) error {
	return s.UpdateMetadataOnly(ctx, serverPath, map[string]any{"is_enabled": enabled})
}

// FullRebuild implements "Full rebuild" (spec §4.7): delete by server_id,
// then bulk-insert fresh documents. Used on initial sync and after
// unrecoverable drift.
func (s *Syncer) FullRebuild(ctx context.Context, server Server) error {
	if _, err := s.index.Store().DeleteByFilter(ctx, CollectionTools, serverFilter(server.ID)); err != nil {
		return err
	}
	if _, err := s.index.Store().DeleteByFilter(ctx, CollectionServers, serverFilter(server.ID)); err != nil {
		return err
	}
	if len(server.Tools) == 0 {
		_, err := s.index.Store().Insert(ctx, CollectionServers, virtualServerDocument(server))
		return err
	}
	docs := make([]discovery.Document, 0, len(server.Tools))
	for _, t := range server.Tools {
		docs = append(docs, toolDocument(server, t))
	}
	_, err := s.index.Store().BulkInsert(ctx, CollectionTools, docs)
	return err
}

func idsOf(docs []discovery.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
