// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/blinklabs-io/ratify"
	"github.com/blinklabs-io/ratify/campaign"
)

const (
	DefaultListCount = 100
	MaxListCount     = 100
	DefaultListPage  = 1
	ListOrderAsc     = "asc"
	ListOrderDesc    = "desc"
)

var ErrInvalidListParameters = errors.New(
	"invalid list parameters",
)

// ListParams selects a page of campaigns. The filters are optional and
// combine with AND.
type ListParams struct {
	Count    int
	Page     int
	Order    string
	State    campaign.State
	Category string
	Query    string
}

// ParseListParams parses the count, page, order, state, category and q
// query parameters, applying defaults and clamping the page bounds
func ParseListParams(r *http.Request) (ListParams, error) {
	params := ListParams{
		Count: DefaultListCount,
		Page:  DefaultListPage,
		Order: ListOrderAsc,
	}
	query := r.URL.Query()
	if countParam := query.Get("count"); countParam != "" {
		count, err := strconv.Atoi(countParam)
		if err != nil {
			return ListParams{}, ErrInvalidListParameters
		}
		params.Count = min(max(count, 1), MaxListCount)
	}
	if pageParam := query.Get("page"); pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		if err != nil {
			return ListParams{}, ErrInvalidListParameters
		}
		params.Page = max(page, 1)
	}
	if orderParam := query.Get("order"); orderParam != "" {
		switch order := strings.ToLower(orderParam); order {
		case ListOrderAsc, ListOrderDesc:
			params.Order = order
		default:
			return ListParams{}, ErrInvalidListParameters
		}
	}
	if stateParam := query.Get("state"); stateParam != "" {
		state := campaign.State(strings.ToLower(stateParam))
		switch state {
		case campaign.StateUnknown,
			campaign.StateActive,
			campaign.StateGoalMet,
			campaign.StateCancelled,
			campaign.StateWithdrawn:
			params.State = state
		default:
			return ListParams{}, ErrInvalidListParameters
		}
	}
	params.Category = strings.TrimSpace(query.Get("category"))
	params.Query = strings.ToLower(strings.TrimSpace(query.Get("q")))
	return params, nil
}

// Match reports whether the campaign passes the filters
func (p ListParams) Match(status ratify.CampaignStatus) bool {
	if p.State != "" && status.State != p.State {
		return false
	}
	if p.Category == "" && p.Query == "" {
		return true
	}
	if status.Entry == nil {
		return false
	}
	if p.Category != "" && !strings.EqualFold(status.Entry.Category, p.Category) {
		return false
	}
	if p.Query != "" &&
		!strings.Contains(strings.ToLower(status.Entry.Title), p.Query) {
		return false
	}
	return true
}

// ListCampaigns filters and orders the campaigns and returns the selected
// page along with the number of campaigns that matched
func ListCampaigns(
	statuses []ratify.CampaignStatus,
	params ListParams,
) ([]ratify.CampaignStatus, int) {
	matched := make([]ratify.CampaignStatus, 0, len(statuses))
	for _, status := range statuses {
		if params.Match(status) {
			matched = append(matched, status)
		}
	}
	if params.Order == ListOrderDesc {
		slices.Reverse(matched)
	}
	count := max(params.Count, 1)
	start := (max(params.Page, 1) - 1) * count
	if start >= len(matched) {
		return []ratify.CampaignStatus{}, len(matched)
	}
	return matched[start:min(start+count, len(matched))], len(matched)
}

// setListHeaders sets the total item and page count headers
func setListHeaders(w http.ResponseWriter, total int, params ListParams) {
	count := max(params.Count, 1)
	// ceil(total/count)
	pages := (total + count - 1) / count
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(total))
	w.Header().Set("X-Pagination-Page-Total", strconv.Itoa(pages))
}
