package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// OJS exposes its submission lifecycle and publication status as numeric
// constants, see https://docs.pkp.sfu.ca/dev/api/ojs/3.3
const (
	StageSubmission     = 1
	StageInternalReview = 2
	StageExternalReview = 3
	StageEditing        = 4
	StageProduction     = 5

	StatusQueued    = 1
	StatusPublished = 3
	StatusDeclined  = 4
	StatusScheduled = 5
)

// pageSize is the fixed page size for paginated OJS endpoints
const pageSize = 50

// RequestError represents a non-success HTTP response from a remote system
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// LocaleMap is a per-locale string mapping as returned by OJS for
// translatable fields.
type LocaleMap map[string]string

// Resolve returns the value for locale, falling back to the configured
// default locale. A missing translation is an explicit error rather than an
// empty string so callers can skip the affected entity with a warning.
func (m LocaleMap) Resolve(locale, fallback string) (string, error) {
	if v, ok := m[locale]; ok && v != "" {
		return v, nil
	}
	if v, ok := m[fallback]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no translation for locale %q (fallback %q)", locale, fallback)
}

// Submission is an entry of the OJS submissions feed. The embedded
// publication is a stub; CurrentPublication fetches the full record.
type Submission struct {
	ID                   int    `json:"id"`
	StageID              int    `json:"stageId"`
	Status               int    `json:"status"`
	Locale               string `json:"locale"`
	CurrentPublicationID int    `json:"currentPublicationId"`
}

// Publication is the full metadata record of a submission version.
type Publication struct {
	ID                 int       `json:"id"`
	FullTitle          LocaleMap `json:"fullTitle"`
	Abstract           LocaleMap `json:"abstract"`
	AuthorsStringShort string    `json:"authorsStringShort"`
	SectionID          int       `json:"sectionId"`
	IssueID            *int      `json:"issueId"`
	Href               string    `json:"_href"`
}

// Issue is an OJS journal issue. Sections are embedded redundantly per
// issue; the aggregator merges them into one index.
type Issue struct {
	ID             int       `json:"id"`
	Volume         int       `json:"volume"`
	Number         string    `json:"number"`
	Year           int       `json:"year"`
	Locale         string    `json:"locale"`
	Identification string    `json:"identification"`
	Title          LocaleMap `json:"title"`
	Sections       []Section `json:"sections"`
}

// Section is a journal section such as "Articles" or "Reviews".
type Section struct {
	ID    int       `json:"id"`
	Title LocaleMap `json:"title"`
}

// Collection is the result of fetching an OJS collection endpoint. For
// paginated endpoints Items holds the concatenated pages and ItemsMax the
// server-reported total. Endpoints that do not paginate (detail endpoints)
// return their payload unchanged in Raw.
type Collection struct {
	Items    []json.RawMessage
	ItemsMax int
	Raw      json.RawMessage
}

// OJSClient fetches the source snapshot from an OJS installation. It caches
// the fetched submissions, issues and the deduplicated section index for
// the lifetime of one synchronization run.
type OJSClient struct {
	baseURL       string
	token         string
	maxConcurrent int
	client        *http.Client

	submissions  []Submission
	issues       []Issue
	futureIssues []Issue
	sections     map[int]Section
}

// NewOJSClient creates a client for the given OJS base URL and API token.
func NewOJSClient(baseURL, token string, maxConcurrent int) *OJSClient {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &OJSClient{
		baseURL:       baseURL,
		token:         token,
		maxConcurrent: maxConcurrent,
		client:        &http.Client{},
		sections:      make(map[int]Section),
	}
}

type ojsPage struct {
	Items    []json.RawMessage `json:"items"`
	ItemsMax *int              `json:"itemsMax"`
}

// fetchCollection fetches a collection endpoint page by page until the
// reported total is reached. A first page without an itemsMax field means
// the endpoint does not paginate; its payload is returned unchanged.
// An empty page terminates early in case the reported total is inconsistent.
func (c *OJSClient) fetchCollection(endpoint string, query url.Values) (*Collection, error) {
	result := &Collection{}
	offset := 0
	itemsMax := -1

	for {
		raw, err := c.fetchPage(endpoint, query, offset)
		if err != nil {
			return nil, err
		}

		var page ojsPage
		if err := json.Unmarshal(raw, &page); err != nil || (itemsMax < 0 && page.ItemsMax == nil) {
			// Not a paginated response, return the payload as-is.
			return &Collection{Raw: raw}, nil
		}
		if itemsMax < 0 {
			itemsMax = *page.ItemsMax
		}

		result.Items = append(result.Items, page.Items...)

		if len(result.Items) >= itemsMax || len(page.Items) == 0 {
			break
		}
		offset += pageSize
	}

	result.ItemsMax = itemsMax
	return result, nil
}

// fetchPage performs a single GET against an API endpoint.
func (c *OJSClient) fetchPage(endpoint string, query url.Values, offset int) (json.RawMessage, error) {
	params := url.Values{}
	for key, values := range query {
		params[key] = values
	}
	params.Set("apiToken", c.token)
	params.Set("count", fmt.Sprint(pageSize))
	params.Set("offset", fmt.Sprint(offset))

	endpointURL := fmt.Sprintf("%s/api/v1/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequest("GET", endpointURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{Method: "GET", URL: endpointURL, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// decodeItems unmarshals every item of a paginated collection.
func decodeItems[T any](col *Collection) ([]T, error) {
	items := make([]T, 0, len(col.Items))
	for _, raw := range col.Items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decoding collection item: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// ActiveSubmissions fetches all queued submissions once and caches them. The
// cached slice is re-iterated by the linking pass without re-fetching.
func (c *OJSClient) ActiveSubmissions() ([]Submission, error) {
	if c.submissions != nil {
		return c.submissions, nil
	}

	query := url.Values{"status": {fmt.Sprint(StatusQueued)}}
	col, err := c.fetchCollection("submissions", query)
	if err != nil {
		return nil, fmt.Errorf("fetching active submissions: %w", err)
	}

	submissions, err := decodeItems[Submission](col)
	if err != nil {
		return nil, err
	}

	c.submissions = submissions
	return c.submissions, nil
}

// CurrentPublication fetches the full publication record for a submission.
// The publication embedded in the submissions feed is a stub and lacks the
// title, author, section and issue fields.
func (c *OJSClient) CurrentPublication(sub Submission) (*Publication, error) {
	endpoint := fmt.Sprintf("submissions/%d/publications/%d", sub.ID, sub.CurrentPublicationID)
	col, err := c.fetchCollection(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching publication for submission %d: %w", sub.ID, err)
	}
	if col.Raw == nil {
		return nil, fmt.Errorf("unexpected paginated response for publication of submission %d", sub.ID)
	}

	var pub Publication
	if err := json.Unmarshal(col.Raw, &pub); err != nil {
		return nil, fmt.Errorf("decoding publication for submission %d: %w", sub.ID, err)
	}
	return &pub, nil
}

// LoadIssuesAndSections fetches all issues, the detail record of every
// issue, and the unpublished ("future") issues. The sections embedded in
// each issue detail are merged into a section index keyed by id.
//
// The per-issue detail fetch is a fan-out; it is bounded by maxConcurrent
// in-flight requests. All cards are created only after this returns, so the
// create-before-link ordering is unaffected.
func (c *OJSClient) LoadIssuesAndSections() error {
	col, err := c.fetchCollection("issues", nil)
	if err != nil {
		return fmt.Errorf("fetching issues: %w", err)
	}
	issues, err := decodeItems[Issue](col)
	if err != nil {
		return err
	}
	c.issues = issues

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		semaphore = make(chan struct{}, c.maxConcurrent)
	)

	for _, issue := range c.issues {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(issueID int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			detail, err := c.issueDetail(issueID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			c.mergeSections(detail.Sections)
		}(issue.ID)
	}

	wg.Wait()
	close(semaphore)
	if firstErr != nil {
		return firstErr
	}

	futureCol, err := c.fetchCollection("issues", url.Values{"isPublished": {"0"}})
	if err != nil {
		return fmt.Errorf("fetching future issues: %w", err)
	}
	future, err := decodeItems[Issue](futureCol)
	if err != nil {
		return err
	}
	c.futureIssues = future

	// Future issues may not appear in the published issue feed; their
	// embedded sections belong in the index too. The index must hold the
	// union of sections across all issues.
	for _, issue := range c.futureIssues {
		c.mergeSections(issue.Sections)
	}

	return nil
}

// mergeSections adds sections to the index, keeping the first occurrence of
// each id.
func (c *OJSClient) mergeSections(sections []Section) {
	for _, section := range sections {
		if section.ID == 0 {
			continue
		}
		if _, ok := c.sections[section.ID]; !ok {
			c.sections[section.ID] = section
		}
	}
}

// issueDetail fetches the full record of a single issue.
func (c *OJSClient) issueDetail(issueID int) (*Issue, error) {
	col, err := c.fetchCollection(fmt.Sprintf("issues/%d", issueID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %d: %w", issueID, err)
	}
	if col.Raw == nil {
		return nil, fmt.Errorf("unexpected paginated response for issue %d", issueID)
	}

	var issue Issue
	if err := json.Unmarshal(col.Raw, &issue); err != nil {
		return nil, fmt.Errorf("decoding issue %d: %w", issueID, err)
	}
	return &issue, nil
}

// Issues returns the cached issue list.
func (c *OJSClient) Issues() []Issue {
	return c.issues
}

// FutureIssues returns the cached unpublished issues.
func (c *OJSClient) FutureIssues() []Issue {
	return c.futureIssues
}

// IssueByID looks up an issue in the cached issue list.
func (c *OJSClient) IssueByID(id int) (Issue, bool) {
	for _, issue := range c.issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return Issue{}, false
}

// SectionByID looks up a section in the deduplicated section index.
func (c *OJSClient) SectionByID(id int) (Section, bool) {
	section, ok := c.sections[id]
	return section, ok
}

// SectionCount returns the size of the deduplicated section index.
func (c *OJSClient) SectionCount() int {
	return len(c.sections)
}
