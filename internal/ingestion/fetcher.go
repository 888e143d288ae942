package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"recruitbase_backend/platform/config"
	"recruitbase_backend/platform/logger"
)

// detailFields is the field selection requested from the remote lead API.
const detailFields = "created_time,ad_id,form_id,field_data,custom_disclaimer_responses"

// LeadDetail is the full lead record fetched from the remote API when the
// webhook payload was only a stub.
type LeadDetail struct {
	ID          string       `json:"id"`
	CreatedTime string       `json:"created_time"`
	AdID        string       `json:"ad_id"`
	FormID      string       `json:"form_id"`
	FieldData   []FieldEntry `json:"field_data"`
}

// GraphFetcher retrieves lead detail from the provider's Graph API. Every
// failure mode degrades to nil so the pipeline continues with whatever the
// webhook payload itself carried.
type GraphFetcher struct {
	endpoint string
	token    string
	version  string
	client   *http.Client
	log      *logger.Logger
}

// NewGraphFetcher creates a fetcher from the Graph configuration.
func NewGraphFetcher(cfg config.GraphConfig, log *logger.Logger) *GraphFetcher {
	return &GraphFetcher{
		endpoint: cfg.GetGraphEndpoint(),
		token:    cfg.GetGraphAccessToken(),
		version:  cfg.GetGraphAPIVersion(),
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Fetch returns the lead detail, or nil when no credential is configured or
// the call fails. Failures are logged, never propagated.
func (f *GraphFetcher) Fetch(ctx context.Context, externalLeadID string) *LeadDetail {
	if f.token == "" {
		return nil
	}

	query := url.Values{}
	query.Set("access_token", f.token)
	query.Set("fields", detailFields)
	endpoint := f.endpoint + "/" + f.version + "/" + url.PathEscape(externalLeadID) + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		f.log.RemoteFetchFailed(externalLeadID, err.Error())
		return nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.RemoteFetchFailed(externalLeadID, err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.log.RemoteFetchFailed(externalLeadID, "status "+strconv.Itoa(resp.StatusCode))
		return nil
	}

	var detail LeadDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		f.log.RemoteFetchFailed(externalLeadID, err.Error())
		return nil
	}
	return &detail
}
