package jira

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

// searchFields are the issue fields requested from the search endpoint.
var searchFields = []string{"summary", "description", "status", "priority", "assignee", "reporter", "created", "updated"}

// Issue represents a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self,omitempty"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains Jira issue field data.
type IssueFields struct {
	Summary     string           `json:"summary"`
	Description DescriptionField `json:"description"`
	Status      *Status          `json:"status,omitempty"`
	Priority    *Priority        `json:"priority,omitempty"`
	Assignee    *User            `json:"assignee,omitempty"`
	Reporter    *User            `json:"reporter,omitempty"`
	Created     string           `json:"created,omitempty"`
	Updated     string           `json:"updated,omitempty"`
}

type Status struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type User struct {
	AccountID   string `json:"accountId,omitempty"`
	DisplayName string `json:"displayName"`
	Email       string `json:"emailAddress,omitempty"`
}

// SearchResult contains JQL search results.
type SearchResult struct {
	Total      int     `json:"total"`
	MaxResults int     `json:"maxResults"`
	StartAt    int     `json:"startAt"`
	Issues     []Issue `json:"issues"`
}

// Comment is a single issue comment. Bodies are documents in API v3.
type Comment struct {
	Body    DescriptionField `json:"body"`
	Created string           `json:"created"`
	Author  *User            `json:"author,omitempty"`
}

type commentsResponse struct {
	Comments []Comment `json:"comments"`
}

// GetIssue fetches an issue by key. A 404 from Jira yields (nil, nil).
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*Issue, error) {
	var issue Issue
	err := c.getJSON(ctx, "/rest/api/3/issue/"+url.PathEscape(issueKey), nil, &issue)
	if errors.Is(err, perrors.ErrNotFound) {
		c.logger.Info().Str("key", issueKey).Msg("issue not found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting issue %s: %w", issueKey, err)
	}
	return &issue, nil
}

// SearchIssues performs a JQL search returning at most maxResults issues.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("fields", strings.Join(searchFields, ","))

	var result SearchResult
	if err := c.getJSON(ctx, "/rest/api/3/search", q, &result); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	return &result, nil
}

// GetComments returns the comments on an issue in creation order.
func (c *Client) GetComments(ctx context.Context, issueKey string) ([]Comment, error) {
	var result commentsResponse
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/comment"
	if err := c.getJSON(ctx, path, nil, &result); err != nil {
		return nil, fmt.Errorf("getting comments for %s: %w", issueKey, err)
	}
	return result.Comments, nil
}

// Myself returns the authenticated user. Used as a connectivity probe.
func (c *Client) Myself(ctx context.Context) (*User, error) {
	var u User
	if err := c.getJSON(ctx, "/rest/api/3/myself", nil, &u); err != nil {
		return nil, fmt.Errorf("checking credentials: %w", err)
	}
	return &u, nil
}

// JoinComments concatenates comment bodies, each followed by a newline.
func JoinComments(comments []Comment) string {
	var b strings.Builder
	for _, cm := range comments {
		if text, ok := ExtractText(cm.Body.Value); ok {
			b.WriteString(text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// TextSearchJQL builds the free-text query used by ticket search.
func TextSearchJQL(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	return `text ~ "` + escaped + `" ORDER BY updated DESC`
}

// RecentJQL builds the query for issues updated in the last days days.
func RecentJQL(days int) string {
	return fmt.Sprintf("updated >= -%dd ORDER BY updated DESC", days)
}
