package noteservice

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/starford/zettel/internal/store"
)

// Graph is the force-graph view of an owner's captures.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type GraphNode struct {
	ID       string        `json:"id"`
	Data     GraphNodeData `json:"data"`
	Position Position      `json:"position"`
}

type GraphNodeData struct {
	Label       string        `json:"label"`
	Tags        []string      `json:"tags"`
	CaptureID   int64         `json:"captureId"`
	Slug        string        `json:"slug"`
	Content     string        `json:"content"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Status      string        `json:"status"`
	StatusColor *string       `json:"statusColor"`
	Type        *string       `json:"type"`
	TypeSymbol  *string       `json:"typeSymbol"`
	ProjectID   *int64        `json:"project_id"`
	Project     *ProjectBrief `json:"project"`
	ProjectX    *float64      `json:"project_x"`
	ProjectY    *float64      `json:"project_y"`
}

type ProjectBrief struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	LinkID int64  `json:"linkId"`
}

// gridStep spaces nodes that have no stored position, ten per row.
const gridStep = 200

// Graph builds nodes and edges for every capture of the owner, in creation order.
func (s *Service) Graph(ctx context.Context, owner int64) (*Graph, error) {
	r := s.db.Reader()
	notes, err := r.ListNotes(ctx, owner)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(notes, func(a, b store.Note) int { return cmp.Compare(a.ID, b.ID) })
	tags, err := r.OwnerNoteTags(ctx, owner)
	if err != nil {
		return nil, err
	}
	links, err := r.OwnerLinks(ctx, owner)
	if err != nil {
		return nil, err
	}
	types, err := r.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := r.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := r.ListProjects(ctx, owner)
	if err != nil {
		return nil, err
	}

	typeByID := make(map[int64]store.CaptureType, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
	}
	statusByID := make(map[int64]store.CaptureStatus, len(statuses))
	for _, st := range statuses {
		statusByID[st.ID] = st
	}
	projectByID := make(map[int64]store.Project, len(projects))
	for _, p := range projects {
		projectByID[p.ID] = p
	}

	g := &Graph{Nodes: make([]GraphNode, 0, len(notes)), Edges: make([]GraphEdge, 0, len(links))}
	for i, n := range notes {
		data := GraphNodeData{
			Label:     n.Title,
			Tags:      nonNilSlice(tags[n.ID]),
			CaptureID: n.ID,
			Slug:      n.Slug,
			Content:   n.Content,
			UpdatedAt: n.UpdatedAt,
			Status:    store.StatusFleeting,
			ProjectID: n.ProjectID,
			ProjectX:  n.ProjectX,
			ProjectY:  n.ProjectY,
		}
		if data.Label == "" {
			data.Label = truncateRunes(n.Content, 50)
		}
		if n.StatusID != nil {
			if st, ok := statusByID[*n.StatusID]; ok {
				data.Status, data.StatusColor = st.Name, &st.Color
			}
		}
		if n.TypeID != nil {
			if t, ok := typeByID[*n.TypeID]; ok {
				data.Type, data.TypeSymbol = &t.Name, &t.Symbol
			}
		}
		if n.ProjectID != nil {
			if p, ok := projectByID[*n.ProjectID]; ok {
				data.Project = &ProjectBrief{ID: p.ID, Name: p.Name}
			}
		}

		pos := Position{X: float64(i%10) * gridStep, Y: float64(i/10) * gridStep}
		if n.GraphX != nil && n.GraphY != nil {
			pos = Position{X: *n.GraphX, Y: *n.GraphY}
		}
		g.Nodes = append(g.Nodes, GraphNode{ID: strconv.FormatInt(n.ID, 10), Data: data, Position: pos})
	}
	for i, l := range links {
		g.Edges = append(g.Edges, GraphEdge{
			ID:     fmt.Sprintf("e%d", i+1),
			Source: strconv.FormatInt(l.SourceID, 10),
			Target: strconv.FormatInt(l.TargetID, 10),
			LinkID: l.ID,
		})
	}
	return g, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
