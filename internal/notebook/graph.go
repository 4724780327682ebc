package notebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// Graph stores notes as OneNote pages through Microsoft Graph.
type Graph struct {
	baseURL string
	owner   string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewGraph returns a Graph store for the notebooks owned by owner ("me" or
// "users/<id>"). Requests are authorized with tokens from ts.
func NewGraph(ctx context.Context, baseURL, owner string, ts oauth2.TokenSource, logger *slog.Logger) *Graph {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if owner == "" {
		owner = "me"
	}
	// NewClient may hand back a shared client; copy before setting a timeout.
	client := *oauth2.NewClient(ctx, ts)
	client.Timeout = 30 * time.Second
	return &Graph{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   strings.Trim(owner, "/"),
		client:  &client,
		logger:  logger,
		now:     time.Now,
	}
}

func (g *Graph) Name() string { return "remote" }

type graphEntity struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

type graphList struct {
	Value []graphEntity `json:"value"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Graph) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return g.baseURL + "/" + g.owner + "/onenote/" + strings.Join(escaped, "/")
}

func (g *Graph) do(ctx context.Context, method, endpoint, contentType string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge graphErrorBody
		if json.Unmarshal(respBody, &ge) == nil && ge.Error.Code != "" {
			return fmt.Errorf("graph error %d: %s: %s", resp.StatusCode, ge.Error.Code, ge.Error.Message)
		}
		return fmt.Errorf("graph error %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (g *Graph) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	var list graphList
	if err := g.do(ctx, http.MethodGet, g.endpoint("notebooks"), "", nil, &list); err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	out := make([]Notebook, 0, len(list.Value))
	for _, e := range list.Value {
		out = append(out, Notebook{ID: e.ID, Name: e.DisplayName, Created: e.CreatedDateTime})
	}
	return out, nil
}

// GetOrCreateNotebook returns the ID of the notebook named name, creating it
// when no notebook of that name exists.
func (g *Graph) GetOrCreateNotebook(ctx context.Context, name string) (string, error) {
	notebooks, err := g.ListNotebooks(ctx)
	if err != nil {
		return "", err
	}
	for _, nb := range notebooks {
		if nb.Name == name {
			return nb.ID, nil
		}
	}

	body, _ := json.Marshal(map[string]string{"displayName": name})
	var created graphEntity
	if err := g.do(ctx, http.MethodPost, g.endpoint("notebooks"), "application/json", body, &created); err != nil {
		return "", fmt.Errorf("create notebook %q: %w", name, err)
	}
	g.logger.Info("notebook created", "notebook", name, "id", created.ID)
	return created.ID, nil
}

func (g *Graph) ListSections(ctx context.Context, notebookID string) ([]Section, error) {
	var list graphList
	if err := g.do(ctx, http.MethodGet, g.endpoint("notebooks", notebookID, "sections"), "", nil, &list); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	out := make([]Section, 0, len(list.Value))
	for _, e := range list.Value {
		out = append(out, Section{ID: e.ID, Name: e.DisplayName})
	}
	return out, nil
}

func (g *Graph) GetOrCreateSection(ctx context.Context, notebookID, name string) (string, error) {
	sections, err := g.ListSections(ctx, notebookID)
	if err != nil {
		return "", err
	}
	for _, s := range sections {
		if s.Name == name {
			return s.ID, nil
		}
	}

	body, _ := json.Marshal(map[string]string{"displayName": name})
	var created graphEntity
	if err := g.do(ctx, http.MethodPost, g.endpoint("notebooks", notebookID, "sections"), "application/json", body, &created); err != nil {
		return "", fmt.Errorf("create section %q: %w", name, err)
	}
	g.logger.Info("section created", "section", name, "id", created.ID)
	return created.ID, nil
}

// CreatePage renders the note as page markup and returns the new page ID.
func (g *Graph) CreatePage(ctx context.Context, sectionID string, in NoteInput) (string, error) {
	if in.Created.IsZero() {
		in.Created = g.now()
	}
	page, err := RenderPage(in)
	if err != nil {
		return "", err
	}
	var created graphEntity
	if err := g.do(ctx, http.MethodPost, g.endpoint("sections", sectionID, "pages"), "text/html", []byte(page), &created); err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create page: response carried no page id")
	}
	return created.ID, nil
}

// CreateTranscriptionNote files the note under the default notebook and
// section and returns the page ID. Any failed step fails the whole call; a
// partially created hierarchy is left in place and reused next time.
func (g *Graph) CreateTranscriptionNote(ctx context.Context, in NoteInput) (string, error) {
	if in.Title == "" {
		in.Title = "AI Transcription " + g.now().Format(fileLayout)
	}
	pageID, err := g.createTranscriptionNote(ctx, in)
	if err != nil {
		g.logger.Error("failed to create onenote page", "title", in.Title, "error", err)
		return "", err
	}
	g.logger.Info("onenote page created", "title", in.Title, "page_id", pageID)
	return pageID, nil
}

func (g *Graph) createTranscriptionNote(ctx context.Context, in NoteInput) (string, error) {
	nbID, err := g.GetOrCreateNotebook(ctx, DefaultNotebook)
	if err != nil {
		return "", err
	}
	secID, err := g.GetOrCreateSection(ctx, nbID, DefaultSection)
	if err != nil {
		return "", err
	}
	return g.CreatePage(ctx, secID, in)
}

// Search is not offered for OneNote pages.
func (g *Graph) Search(ctx context.Context, query string) ([]SearchMatch, error) {
	return nil, ErrSearchUnsupported
}
