// Package labelapi is the client for the labeling platform's GraphQL API:
// project/job retrieval, labeled-asset listing, and asset content download.
package labelapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"automl-backend/pkg/api"
)

// defaultPageSize is the platform's maximum assets page.
const defaultPageSize = 1000

type Client struct {
	http     *resty.Client
	apiKey   string
	pageSize int
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		http:     resty.New().SetBaseURL(endpoint),
		apiKey:   apiKey,
		pageSize: defaultPageSize,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

const projectQuery = `query ($projectID: ID!) {
  projects(where: { id: $projectID }, first: 1) {
    id
    title
    inputType
    jsonInterface
  }
}`

// GetProject fetches a project's title, input type, and labeling jobs. Jobs
// are returned in the order they are configured on the platform.
func (c *Client) GetProject(ctx context.Context, projectID string) (api.Project, error) {
	var resp struct {
		Data struct {
			Projects []struct {
				ID            string          `json:"id"`
				Title         string          `json:"title"`
				InputType     string          `json:"inputType"`
				JSONInterface json.RawMessage `json:"jsonInterface"`
			} `json:"projects"`
		} `json:"data"`
		Errors []graphqlError `json:"errors"`
	}

	if err := c.post(ctx, projectQuery, map[string]any{"projectID": projectID}, &resp); err != nil {
		return api.Project{}, err
	}
	if len(resp.Errors) > 0 {
		return api.Project{}, fmt.Errorf("labelapi: fetching project %s: %s", projectID, resp.Errors[0].Message)
	}
	if len(resp.Data.Projects) == 0 {
		return api.Project{}, fmt.Errorf("labelapi: project %s not found", projectID)
	}

	p := resp.Data.Projects[0]
	jobs, err := parseJobInterface(p.JSONInterface)
	if err != nil {
		return api.Project{}, fmt.Errorf("labelapi: parsing job interface of project %s: %w", projectID, err)
	}

	return api.Project{
		ID:        p.ID,
		Title:     p.Title,
		InputType: p.InputType,
		Jobs:      jobs,
	}, nil
}

const assetsQuery = `query ($projectID: ID!, $labelTypes: [LabelType!], $statuses: [Status!], $first: Int!, $skip: Int!) {
  assets(
    where: { project: { id: $projectID }, label: { typeIn: $labelTypes }, statusIn: $statuses }
    first: $first
    skip: $skip
  ) {
    id
    content
    externalId
    labels { authorId labelType jsonResponse }
  }
}`

// GetAssets lists a project's assets filtered by label type and labeling
// status, paging through the full listing; a short page ends the scan.
// Callers reach this through the memoization layer; the listing itself
// always hits the platform.
func (c *Client) GetAssets(ctx context.Context, projectID string, labelTypes, statuses []string) ([]api.Asset, error) {
	var all []api.Asset
	for skip := 0; ; skip += c.pageSize {
		var resp struct {
			Data struct {
				Assets []api.Asset `json:"assets"`
			} `json:"data"`
			Errors []graphqlError `json:"errors"`
		}

		variables := map[string]any{
			"projectID":  projectID,
			"labelTypes": labelTypes,
			"statuses":   statuses,
			"first":      c.pageSize,
			"skip":       skip,
		}
		if err := c.post(ctx, assetsQuery, variables, &resp); err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("labelapi: fetching assets of project %s: %s", projectID, resp.Errors[0].Message)
		}

		all = append(all, resp.Data.Assets...)
		if len(resp.Data.Assets) < c.pageSize {
			return all, nil
		}
	}
}

// DownloadContent fetches an asset's raw content. Asset URLs point at the
// platform's asset store, which authenticates with the same API key.
func (c *Client) DownloadContent(ctx context.Context, url string) ([]byte, error) {
	// An absolute URL bypasses the client's GraphQL base URL.
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "X-API-Key: "+c.apiKey).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("labelapi: downloading %s: %w", url, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("labelapi: downloading %s: status %s", url, res.Status())
	}
	return res.Body(), nil
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any, out any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "X-API-Key: "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(graphqlRequest{Query: query, Variables: variables}).
		SetResult(out).
		Post("")
	if err != nil {
		return fmt.Errorf("labelapi: request failed: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("labelapi: request failed: status %s", res.Status())
	}
	return nil
}
