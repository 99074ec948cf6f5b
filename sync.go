package main

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var debugEnabled bool

// SetDebugMode enables or disables debug logging
func SetDebugMode(enabled bool) {
	debugEnabled = enabled
}

func debugLog(format string, args ...any) {
	if debugEnabled {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func progressLog(format string, args ...any) {
	log.Printf("\033[92m"+format+"\033[0m", args...)
}

func warnLog(format string, args ...any) {
	log.Printf("\033[91m"+format+"\033[0m", args...)
}

// apiPathPattern matches the API part of a publication _href so it can be
// rewritten to the human workflow URL.
var apiPathPattern = regexp.MustCompile(`/api/v1/.*$`)

// journalName derives the journal short name from the OJS base URL: the
// last path segment, uppercased.
func journalName(ojsURL string) string {
	parsed, err := url.Parse(ojsURL)
	if err != nil {
		return strings.ToUpper(path.Base(ojsURL))
	}
	return strings.ToUpper(path.Base(parsed.Path))
}

// cardTitle generates the card title for a submission. Creation and linking
// must produce identical titles, so both use this function.
func cardTitle(journal, section string, submissionID int, authors string) string {
	return fmt.Sprintf("%s: %s #%d %s", journal, section, submissionID, authors)
}

// issueCardTitle generates the card title for an issue.
func issueCardTitle(journal string, volume, year int) string {
	return fmt.Sprintf("%s Heft %d (%d)", journal, volume, year)
}

// workflowURL rewrites a publication API href to the submission workflow
// page in the OJS backend.
func workflowURL(href string, submissionID, stageID int) string {
	return apiPathPattern.ReplaceAllString(href, fmt.Sprintf("/workflow/index/%d/%d", submissionID, stageID))
}

// CardRequest describes the desired state of a single card.
type CardRequest struct {
	Swimlane    string
	List        string
	Title       string
	Description string
	// TitleValue is stored in the "Title" custom field and carries the
	// publication's full title.
	TitleValue string
	// SourceRef is the idempotency key stored in the hidden "Source ID"
	// custom field, e.g. "ojs:submission:101". Card lookup prefers it over
	// title equality; title matching remains the fallback for boards
	// synchronized before the field existed.
	SourceRef string
	Color     string
	Checklist *ChecklistTemplate
}

// Synchronizer mirrors the OJS snapshot onto a Wekan board.
type Synchronizer struct {
	settings  *Settings
	ojs       *OJSClient
	wekan     *WekanClient
	converter *md.Converter
	journal   string
}

// NewSynchronizer creates a synchronizer for one run.
func NewSynchronizer(settings *Settings, ojs *OJSClient, wekan *WekanClient, ojsURL string) *Synchronizer {
	return &Synchronizer{
		settings:  settings,
		ojs:       ojs,
		wekan:     wekan,
		converter: md.NewConverter("", true, nil),
		journal:   journalName(ojsURL),
	}
}

// Run executes one full synchronization: journal card, issue cards,
// submission cards, then the linking pass. Cards must all exist before
// linking starts, so the order is fixed.
func (s *Synchronizer) Run() (*SyncResult, error) {
	result := &SyncResult{}

	if err := s.wekan.Login(); err != nil {
		return nil, err
	}

	log.Printf("→ Loading issues and sections")
	if err := s.ojs.LoadIssuesAndSections(); err != nil {
		return nil, err
	}
	progressLog("Collected %d unique sections from issues.", s.ojs.SectionCount())

	// The journal itself gets a card in the inbox; submissions without an
	// issue are linked to it later.
	journalCard, outcome, err := s.synchronizeCard(CardRequest{
		Swimlane:    s.settings.Swimlanes.Journals,
		List:        s.settings.Lists.Inbox,
		Title:       s.journal,
		Description: fmt.Sprintf("Zeitschrift %s", s.journal),
		TitleValue:  s.journal,
		SourceRef:   fmt.Sprintf("ojs:journal:%s", s.journal),
		Color:       "blue",
		Checklist:   s.checklist("journal"),
	})
	if err != nil {
		return nil, err
	}
	result.record(outcome)

	if err := s.syncIssues(result); err != nil {
		return nil, err
	}
	if err := s.syncSubmissions(result); err != nil {
		return nil, err
	}
	if err := s.linkCards(journalCard, result); err != nil {
		return nil, err
	}

	return result, nil
}

// syncIssues creates or updates one card per unpublished issue.
func (s *Synchronizer) syncIssues(result *SyncResult) error {
	for _, issue := range s.ojs.FutureIssues() {
		progressLog("Found future issue: %s", issue.Identification)

		locale := issue.Locale
		if locale == "" {
			locale = s.settings.DefaultLocale
		}
		titleValue, err := issue.Title.Resolve(locale, s.settings.DefaultLocale)
		if err != nil {
			warnLog("Skipping issue %d: %v", issue.ID, err)
			result.record(OutcomeSkipped)
			continue
		}

		progressLog("Synchronizing issue ID %d with number '%d' and year '%d'", issue.ID, issue.Volume, issue.Year)

		_, outcome, err := s.synchronizeCard(CardRequest{
			Swimlane:    s.settings.Swimlanes.Journals,
			List:        s.settings.Lists.Inbox,
			Title:       issueCardTitle(s.journal, issue.Volume, issue.Year),
			Description: fmt.Sprintf("Heft %d (%d)", issue.Volume, issue.Year),
			TitleValue:  titleValue,
			SourceRef:   fmt.Sprintf("ojs:issue:%d", issue.ID),
			Color:       "green",
			Checklist:   s.checklist("issue"),
		})
		if err != nil {
			return err
		}
		result.record(outcome)
	}
	return nil
}

// syncSubmissions creates or updates one card per queued submission in the
// list matching its workflow stage.
func (s *Synchronizer) syncSubmissions(result *SyncResult) error {
	submissions, err := s.ojs.ActiveSubmissions()
	if err != nil {
		return err
	}

	for _, sub := range submissions {
		pub, err := s.ojs.CurrentPublication(sub)
		if err != nil {
			return err
		}

		title, err := pub.FullTitle.Resolve(sub.Locale, s.settings.DefaultLocale)
		if err != nil {
			warnLog("Skipping submission %d: %v", sub.ID, err)
			result.record(OutcomeSkipped)
			continue
		}

		progressLog("Synchronizing submission ID %d with title '%s'", sub.ID, title)

		authors := pub.AuthorsStringShort
		if authors == "" {
			authors = "No Authors"
		}

		_, outcome, err := s.synchronizeCard(CardRequest{
			Swimlane:    s.settings.Swimlanes.Journals,
			List:        s.listForStage(sub.StageID),
			Title:       cardTitle(s.journal, s.sectionName(pub, sub.Locale), sub.ID, authors),
			Description: s.submissionDescription(sub, pub, title, authors),
			TitleValue:  title,
			SourceRef:   fmt.Sprintf("ojs:submission:%d", sub.ID),
			Checklist:   s.checklist("submission"),
		})
		if err != nil {
			return err
		}
		result.record(outcome)
	}
	return nil
}

// submissionDescription builds the card body: workflow link, title and
// authors, plus the abstract rendered as markdown when one exists.
func (s *Synchronizer) submissionDescription(sub Submission, pub *Publication, title, authors string) string {
	link := workflowURL(pub.Href, sub.ID, sub.StageID)
	description := fmt.Sprintf("URL: %s Title: %s\n\n\nAuthors: %s\n\n", link, title, authors)

	if abstract, err := pub.Abstract.Resolve(sub.Locale, s.settings.DefaultLocale); err == nil {
		if markdown, err := s.converter.ConvertString(abstract); err == nil && markdown != "" {
			description += markdown + "\n"
		}
	}

	return description
}

// listForStage maps an OJS workflow stage to the target list title. Both
// review stages share one list. Unrecognized stages land in the inbox.
func (s *Synchronizer) listForStage(stageID int) string {
	switch stageID {
	case StageSubmission:
		return s.settings.Lists.Inbox
	case StageInternalReview, StageExternalReview:
		return s.settings.Lists.Proof
	case StageEditing:
		return s.settings.Lists.Copyediting
	case StageProduction:
		return s.settings.Lists.Production
	default:
		return s.settings.Lists.Inbox
	}
}

// sectionName resolves the section title of a publication via the
// deduplicated section index. An unknown section falls back to the
// configured default name, or to "Section #<id>".
func (s *Synchronizer) sectionName(pub *Publication, locale string) string {
	if section, ok := s.ojs.SectionByID(pub.SectionID); ok {
		if name, err := section.Title.Resolve(locale, s.settings.DefaultLocale); err == nil {
			return name
		}
	}
	if s.settings.DefaultSectionName != "" {
		return s.settings.DefaultSectionName
	}
	return fmt.Sprintf("Section #%d", pub.SectionID)
}

// checklist returns the configured template for a card category, or nil.
func (s *Synchronizer) checklist(category string) *ChecklistTemplate {
	tmpl, ok := s.settings.Checklists[category]
	if !ok {
		return nil
	}
	return &tmpl
}

// synchronizeCard creates or updates a single card. A missing board,
// swimlane or list is a warning and skips the card; everything else is
// propagated. Returns the freshly re-fetched card state.
//
// Color and checklist are create-time only: an update never reapplies them,
// even when the template changed. This mirrors the original behavior and
// avoids clobbering edits made on the board; whether that asymmetry is
// intentional is an open question, do not unify it without checking with
// the editorial office.
func (s *Synchronizer) synchronizeCard(req CardRequest) (*Card, CardOutcome, error) {
	board, err := s.wekan.FindBoard(s.settings.Board)
	if err != nil {
		return nil, OutcomeSkipped, err
	}
	if board == nil {
		warnLog("Board '%s' not found.", s.settings.Board)
		return nil, OutcomeSkipped, nil
	}

	swimlane, err := s.wekan.FindSwimlane(board.ID, req.Swimlane)
	if err != nil {
		return nil, OutcomeSkipped, err
	}
	if swimlane == nil {
		warnLog("Swimlane '%s' not found in board '%s'.", req.Swimlane, s.settings.Board)
		return nil, OutcomeSkipped, nil
	}

	targetList, err := s.wekan.FindList(board.ID, req.List)
	if err != nil {
		return nil, OutcomeSkipped, err
	}
	if targetList == nil {
		warnLog("List '%s' not found in board '%s'.", req.List, s.settings.Board)
		return nil, OutcomeSkipped, nil
	}

	cards, err := s.wekan.SwimlaneCards(board.ID, swimlane.ID)
	if err != nil {
		return nil, OutcomeSkipped, err
	}
	existing := matchCard(cards, req.SourceRef, req.Title)

	var cardID string
	var outcome CardOutcome

	if existing != nil {
		log.Printf("Card '%s' already exists. Updating...", req.Title)
		// Moving the card to the target list covers workflow-stage
		// transitions; unarchiving resurrects cards archived on the board.
		err := s.wekan.UpdateCard(board.ID, existing.ListID, existing.ID, map[string]any{
			"newBoardId":    board.ID,
			"newSwimlaneId": swimlane.ID,
			"listId":        targetList.ID,
			"archive":       "false",
			"title":         req.Title,
			"description":   req.Description,
		})
		if err != nil {
			return nil, OutcomeSkipped, err
		}
		cardID = existing.ID
		outcome = OutcomeUpdated
	} else {
		log.Printf("Creating new card '%s'...", req.Title)
		cardID, err = s.wekan.CreateCard(board.ID, targetList.ID, map[string]any{
			"authorId":    s.wekan.userID,
			"title":       req.Title,
			"description": req.Description,
			"swimlaneId":  swimlane.ID,
		})
		if err != nil {
			return nil, OutcomeSkipped, err
		}

		// The creation endpoint does not accept a color; set it with a
		// second update.
		if req.Color != "" {
			err := s.wekan.UpdateCard(board.ID, targetList.ID, cardID, map[string]any{"color": req.Color})
			if err != nil {
				return nil, OutcomeSkipped, err
			}
		}
		if req.Checklist != nil {
			if err := s.wekan.AddChecklist(board.ID, cardID, *req.Checklist); err != nil {
				return nil, OutcomeSkipped, err
			}
		}
		outcome = OutcomeCreated
	}

	card, err := s.wekan.GetCard(board.ID, targetList.ID, cardID)
	if err != nil {
		return nil, OutcomeSkipped, err
	}

	if err := s.setCustomFields(board.ID, card, targetList.ID, req); err != nil {
		return nil, OutcomeSkipped, err
	}

	card, err = s.wekan.GetCard(board.ID, targetList.ID, cardID)
	if err != nil {
		return nil, OutcomeSkipped, err
	}
	return card, outcome, nil
}

// matchCard finds the card a request refers to. A "Source ID" custom field
// value equal to the request's source ref wins; otherwise the first card
// with an equal title is used. At most one card per (swimlane, title) pair
// is assumed to exist.
func matchCard(cards []Card, sourceRef, title string) *Card {
	if sourceRef != "" {
		for i := range cards {
			for _, field := range cards[i].CustomFields {
				if value, ok := field.Value.(string); ok && value == sourceRef {
					return &cards[i]
				}
			}
		}
	}
	for i := range cards {
		if cards[i].Title == title {
			return &cards[i]
		}
	}
	return nil
}

// setCustomFields provisions the "Title" and "Source ID" custom fields and
// writes both values in one update.
func (s *Synchronizer) setCustomFields(boardID string, card *Card, listID string, req CardRequest) error {
	titleField, err := s.provisionCustomField(boardID, card, "Title", true)
	if err != nil {
		return err
	}

	values := []map[string]any{
		{"_id": titleField, "value": req.TitleValue},
	}

	if req.SourceRef != "" {
		sourceField, err := s.provisionCustomField(boardID, card, "Source ID", false)
		if err != nil {
			return err
		}
		values = append(values, map[string]any{"_id": sourceField, "value": req.SourceRef})
	}

	return s.wekan.UpdateCard(boardID, listID, card.ID, map[string]any{"customFields": values})
}

// provisionCustomField returns the id of the board-level custom field with
// the given name, creating it if it exists neither among the card's
// attached fields nor in the board catalog.
func (s *Synchronizer) provisionCustomField(boardID string, card *Card, name string, showLabel bool) (string, error) {
	for _, attached := range card.CustomFields {
		detail, err := s.wekan.CustomFieldDetail(boardID, attached.ID)
		if err != nil {
			return "", err
		}
		if detail.Name == name {
			return detail.ID, nil
		}
	}

	fields, err := s.wekan.BoardCustomFields(boardID)
	if err != nil {
		return "", err
	}
	for _, field := range fields {
		if field.Name == name {
			return field.ID, nil
		}
	}

	warnLog("Custom field '%s' not found. Creating it...", name)
	created, err := s.wekan.CreateCustomField(boardID, map[string]any{
		"name":                name,
		"type":                "text",
		"settings":            map[string]any{},
		"showOnCard":          false,
		"automaticallyOnCard": true,
		"alwaysOnCard":        true,
		"showLabelOnMiniCard": showLabel,
		"showSumAtTopOfList":  false,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// linkCards assigns each submission card its parent: the card of the issue
// its current publication is assigned to, or the default journal card when
// no issue is assigned yet. Runs against a single card snapshot taken after
// all cards exist.
func (s *Synchronizer) linkCards(journalCard *Card, result *SyncResult) error {
	board, err := s.wekan.FindBoard(s.settings.Board)
	if err != nil {
		return err
	}
	if board == nil {
		warnLog("Board '%s' not found.", s.settings.Board)
		return nil
	}

	swimlane, err := s.wekan.FindSwimlane(board.ID, s.settings.Swimlanes.Journals)
	if err != nil {
		return err
	}
	if swimlane == nil {
		warnLog("Swimlane '%s' not found.", s.settings.Swimlanes.Journals)
		return nil
	}

	cards, err := s.wekan.SwimlaneCards(board.ID, swimlane.ID)
	if err != nil {
		return err
	}

	submissions, err := s.ojs.ActiveSubmissions()
	if err != nil {
		return err
	}

	for _, sub := range submissions {
		pub, err := s.ojs.CurrentPublication(sub)
		if err != nil {
			return err
		}

		issueID := 0
		if pub.IssueID != nil {
			issueID = *pub.IssueID
		}
		progressLog("Processing card linking information for submission ID %d with current publication issueId = %d", sub.ID, issueID)

		authors := pub.AuthorsStringShort
		if authors == "" {
			authors = "No Authors"
		}
		submissionTitle := cardTitle(s.journal, s.sectionName(pub, sub.Locale), sub.ID, authors)

		var parent *Card
		if issueID != 0 {
			issue, ok := s.ojs.IssueByID(issueID)
			if !ok {
				warnLog("Issue %d not found for submission %d", issueID, sub.ID)
				continue
			}
			parent = findCardByTitle(cards, issueCardTitle(s.journal, issue.Volume, issue.Year))
			if parent == nil {
				warnLog("Issue card for issue %d not found, cannot link submission %d", issueID, sub.ID)
				continue
			}
			progressLog("Linking submission ID %d to issue ID %d", sub.ID, issueID)
		} else {
			if journalCard == nil {
				warnLog("No default journal card, cannot link submission %d", sub.ID)
				continue
			}
			log.Printf("Submission ID %d has no issue assigned, linking to default journal card '%s'.", sub.ID, journalCard.Title)
			parent = journalCard
		}

		submissionCard := findCardByTitle(cards, submissionTitle)
		if submissionCard == nil {
			warnLog("Submission card '%s' not found in swimlane", submissionTitle)
			continue
		}

		// TODO(ronste): remove a stale parent link when the issue
		// assignment changes or is cleared; blocked on OJS sometimes
		// reporting an issueId for submissions not yet assigned to one.
		if submissionCard.ParentID == parent.ID {
			continue
		}

		log.Printf("Updating parentId of submission card '%s' to '%s'", submissionCard.Title, parent.Title)
		err = s.wekan.UpdateCard(board.ID, submissionCard.ListID, submissionCard.ID, map[string]any{
			"parentId": parent.ID,
		})
		if err != nil {
			return err
		}
		result.Linked++
	}

	return nil
}

// findCardByTitle scans a card snapshot for an exact title match.
func findCardByTitle(cards []Card, title string) *Card {
	for i := range cards {
		if cards[i].Title == title {
			return &cards[i]
		}
	}
	return nil
}
