package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ContentTypeError reports a response whose content type is neither JSON
// nor plain text. Wekan answers with an HTML page when authentication
// failed or a redirect was followed; continuing would only produce decode
// noise, so this error is fatal to the run.
type ContentTypeError struct {
	URL         string
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unexpected content type %q from %s (authentication failure?)", e.ContentType, e.URL)
}

// Board is a Wekan board.
type Board struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
}

// Swimlane is a horizontal grouping within a board, used for product
// categories.
type Swimlane struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
}

// List is a board column, used for workflow stages.
type List struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
}

// CardCustomField is a custom field value attached to a card. Only the
// field id and value are stored on the card; the definition lives on the
// board.
type CardCustomField struct {
	ID    string `json:"_id"`
	Value any    `json:"value"`
}

// Card is a Wekan card.
type Card struct {
	ID           string            `json:"_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	BoardID      string            `json:"boardId"`
	ListID       string            `json:"listId"`
	SwimlaneID   string            `json:"swimlaneId"`
	ParentID     string            `json:"parentId"`
	Color        string            `json:"color"`
	Archived     bool              `json:"archived"`
	CustomFields []CardCustomField `json:"customFields"`
}

// CustomField is a board-level custom field definition.
type CustomField struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// WekanClient talks to the Wekan REST API. Login must be called before any
// other method; subsequent calls carry the bearer token.
type WekanClient struct {
	baseURL  string
	username string
	password string
	token    string
	userID   string
	client   *http.Client
}

// NewWekanClient creates a client for the given Wekan base URL.
func NewWekanClient(baseURL, username, password string) *WekanClient {
	return &WekanClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{},
	}
}

// Login authenticates and stores the bearer token and user id.
func (w *WekanClient) Login() error {
	payload := map[string]string{"username": w.username, "password": w.password}
	body, err := w.call("POST", "/users/login", payload)
	if err != nil {
		return fmt.Errorf("wekan login: %w", err)
	}

	var data struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}

	w.token = data.Token
	w.userID = data.ID
	return nil
}

// call performs an HTTP round-trip and validates status and content type.
// A non-2xx status is returned as *RequestError including the response body
// so the caller can log it.
func (w *WekanClient) call(method, path string, payload any) ([]byte, error) {
	requestURL := w.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload for %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, requestURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	debugLog("%s %s", method, requestURL)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Method: method, URL: requestURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"), strings.Contains(contentType, "text/plain"), contentType == "":
		return body, nil
	default:
		return nil, &ContentTypeError{URL: requestURL, ContentType: contentType}
	}
}

// get performs a GET and decodes the JSON response into out.
func (w *WekanClient) get(path string, out any) error {
	body, err := w.call("GET", path, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for %s: %w", path, err)
	}
	return nil
}

// post performs a POST and decodes the JSON response into out when given.
func (w *WekanClient) post(path string, payload, out any) error {
	body, err := w.call("POST", path, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for %s: %w", path, err)
	}
	return nil
}

// put performs a PUT and discards the response body.
func (w *WekanClient) put(path string, payload any) error {
	_, err := w.call("PUT", path, payload)
	return err
}

// Boards fetches all boards of the authenticated user.
func (w *WekanClient) Boards() ([]Board, error) {
	var boards []Board
	if err := w.get(fmt.Sprintf("/api/users/%s/boards", w.userID), &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// Swimlanes fetches all swimlanes of a board.
func (w *WekanClient) Swimlanes(boardID string) ([]Swimlane, error) {
	var swimlanes []Swimlane
	if err := w.get(fmt.Sprintf("/api/boards/%s/swimlanes", boardID), &swimlanes); err != nil {
		return nil, err
	}
	return swimlanes, nil
}

// Lists fetches all lists of a board.
func (w *WekanClient) Lists(boardID string) ([]List, error) {
	var lists []List
	if err := w.get(fmt.Sprintf("/api/boards/%s/lists", boardID), &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// SwimlaneCards fetches all cards of a swimlane.
func (w *WekanClient) SwimlaneCards(boardID, swimlaneID string) ([]Card, error) {
	var cards []Card
	if err := w.get(fmt.Sprintf("/api/boards/%s/swimlanes/%s/cards", boardID, swimlaneID), &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// FindBoard returns the first board with the given title, or nil. Boards
// are addressed by title across runs; the collection is re-fetched on every
// lookup so external edits are picked up mid-run.
func (w *WekanClient) FindBoard(title string) (*Board, error) {
	boards, err := w.Boards()
	if err != nil {
		return nil, err
	}
	for _, board := range boards {
		if board.Title == title {
			return &board, nil
		}
	}
	return nil, nil
}

// FindSwimlane returns the first swimlane with the given title, or nil.
func (w *WekanClient) FindSwimlane(boardID, title string) (*Swimlane, error) {
	swimlanes, err := w.Swimlanes(boardID)
	if err != nil {
		return nil, err
	}
	for _, swimlane := range swimlanes {
		if swimlane.Title == title {
			return &swimlane, nil
		}
	}
	return nil, nil
}

// FindList returns the first list with the given title, or nil.
func (w *WekanClient) FindList(boardID, title string) (*List, error) {
	lists, err := w.Lists(boardID)
	if err != nil {
		return nil, err
	}
	for _, list := range lists {
		if list.Title == title {
			return &list, nil
		}
	}
	return nil, nil
}

// GetCard fetches the full card record.
func (w *WekanClient) GetCard(boardID, listID, cardID string) (*Card, error) {
	var card Card
	if err := w.get(fmt.Sprintf("/api/boards/%s/lists/%s/cards/%s", boardID, listID, cardID), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// CreateCard creates a card in the given list and returns its id. The
// creation endpoint accepts neither color nor checklists; those are applied
// by follow-up calls.
func (w *WekanClient) CreateCard(boardID, listID string, payload map[string]any) (string, error) {
	var created struct {
		ID string `json:"_id"`
	}
	path := fmt.Sprintf("/api/boards/%s/lists/%s/cards", boardID, listID)
	if err := w.post(path, payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateCard updates the given fields of a card.
func (w *WekanClient) UpdateCard(boardID, listID, cardID string, fields map[string]any) error {
	return w.put(fmt.Sprintf("/api/boards/%s/lists/%s/cards/%s", boardID, listID, cardID), fields)
}

// BoardCustomFields fetches all custom field definitions of a board.
func (w *WekanClient) BoardCustomFields(boardID string) ([]CustomField, error) {
	var fields []CustomField
	if err := w.get(fmt.Sprintf("/api/boards/%s/custom-fields", boardID), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// CustomFieldDetail fetches the full definition of a single custom field.
func (w *WekanClient) CustomFieldDetail(boardID, fieldID string) (*CustomField, error) {
	var field CustomField
	if err := w.get(fmt.Sprintf("/api/boards/%s/custom-fields/%s", boardID, fieldID), &field); err != nil {
		return nil, err
	}
	return &field, nil
}

// CreateCustomField creates a board-level custom field definition.
func (w *WekanClient) CreateCustomField(boardID string, payload map[string]any) (*CustomField, error) {
	var field CustomField
	if err := w.post(fmt.Sprintf("/api/boards/%s/custom-fields", boardID), payload, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

// AddChecklist attaches a checklist to a card.
func (w *WekanClient) AddChecklist(boardID, cardID string, checklist ChecklistTemplate) error {
	return w.post(fmt.Sprintf("/api/boards/%s/cards/%s/checklists", boardID, cardID), checklist, nil)
}
