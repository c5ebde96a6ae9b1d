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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blinklabs-io/ratify"
	"github.com/blinklabs-io/ratify/campaign"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListParamsDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v0/campaigns", nil)
	params, err := ParseListParams(req)
	require.NoError(t, err)
	assert.Equal(
		t,
		ListParams{Count: DefaultListCount, Page: DefaultListPage, Order: ListOrderAsc},
		params,
	)
}

func TestParseListParams(t *testing.T) {
	req := httptest.NewRequest(
		http.MethodGet,
		"/api/v0/campaigns?count=999&page=0&order=DESC&state=Goal-Met&category=%20Energy%20&q=Solar",
		nil,
	)
	params, err := ParseListParams(req)
	require.NoError(t, err)
	assert.Equal(t, MaxListCount, params.Count)
	assert.Equal(t, 1, params.Page)
	assert.Equal(t, ListOrderDesc, params.Order)
	assert.Equal(t, campaign.StateGoalMet, params.State)
	assert.Equal(t, "Energy", params.Category)
	assert.Equal(t, "solar", params.Query)
}

func TestParseListParamsRejectsMalformed(t *testing.T) {
	for _, query := range []string{
		"count=abc",
		"page=1.5",
		"order=sideways",
		"state=paused",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v0/campaigns?"+query, nil)
		_, err := ParseListParams(req)
		require.True(t, errors.Is(err, ErrInvalidListParameters), query)
	}
}

func testStatuses() []ratify.CampaignStatus {
	categories := []string{"energy", "art", "Energy", "food", "energy"}
	states := []campaign.State{
		campaign.StateActive,
		campaign.StateActive,
		campaign.StateGoalMet,
		campaign.StateCancelled,
		campaign.StateActive,
	}
	ret := make([]ratify.CampaignStatus, 0, len(categories))
	for i := range categories {
		ret = append(ret, ratify.CampaignStatus{
			Entry: &models.Campaign{
				Address:  fmt.Sprintf("addr%d", i),
				Title:    fmt.Sprintf("Solar Roof %d", i),
				Category: categories[i],
			},
			State: states[i],
		})
	}
	return ret
}

func TestListCampaignsFilters(t *testing.T) {
	page, total := ListCampaigns(
		testStatuses(),
		ListParams{Count: 10, Page: 1, Order: ListOrderAsc, Category: "ENERGY"},
	)
	assert.Equal(t, 3, total)
	require.Len(t, page, 3)
	assert.Equal(t, "addr2", page[1].Entry.Address)

	page, total = ListCampaigns(
		testStatuses(),
		ListParams{
			Count:    10,
			Page:     1,
			Order:    ListOrderAsc,
			State:    campaign.StateActive,
			Category: "energy",
		},
	)
	assert.Equal(t, 2, total)
	assert.Equal(t, "addr4", page[1].Entry.Address)

	_, total = ListCampaigns(
		testStatuses(),
		ListParams{Count: 10, Page: 1, Query: "roof 3"},
	)
	assert.Equal(t, 1, total)

	// Filters that need an index entry never match one without it
	page, total = ListCampaigns(
		[]ratify.CampaignStatus{{State: campaign.StateUnknown}},
		ListParams{Count: 10, Page: 1, Category: "energy"},
	)
	assert.Equal(t, 0, total)
	assert.NotNil(t, page)
}

func TestListCampaignsPages(t *testing.T) {
	statuses := testStatuses()
	page, total := ListCampaigns(
		statuses,
		ListParams{Count: 2, Page: 2, Order: ListOrderDesc},
	)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "addr2", page[0].Entry.Address)
	assert.Equal(t, "addr1", page[1].Entry.Address)
	// The input is left in place
	assert.Equal(t, "addr0", statuses[0].Entry.Address)

	page, _ = ListCampaigns(statuses, ListParams{Count: 2, Page: 9})
	assert.Empty(t, page)
	assert.NotNil(t, page)
}

func TestSetListHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	setListHeaders(rec, 0, ListParams{Count: 10})
	assert.Equal(t, "0", rec.Header().Get("X-Pagination-Count-Total"))
	assert.Equal(t, "0", rec.Header().Get("X-Pagination-Page-Total"))

	rec = httptest.NewRecorder()
	setListHeaders(rec, 21, ListParams{Count: 10})
	assert.Equal(t, "21", rec.Header().Get("X-Pagination-Count-Total"))
	assert.Equal(t, "3", rec.Header().Get("X-Pagination-Page-Total"))
}
